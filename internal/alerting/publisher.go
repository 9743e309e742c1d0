package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/logging"
)

// Event is the JSON record published for every emitted alert.
type Event struct {
	EventID   uuid.UUID  `json:"event_id"`
	CycleID   string     `json:"cycle_id,omitempty"`
	Channel   string     `json:"channel"`
	Rule      string     `json:"rule,omitempty"`
	Value     int        `json:"value,omitempty"`
	Direction string     `json:"direction,omitempty"`
	ReadingAt *time.Time `json:"reading_at,omitempty"`
	Message   string     `json:"message"`
	FiredAt   time.Time  `json:"fired_at"`
	Delivered int        `json:"delivered"`
	Muted     int        `json:"muted"`
}

// NewEvent describes alert and the outcome of its dispatch.
func NewEvent(eventID uuid.UUID, cycleID string, alert gate.Alert, report Report) Event {
	ev := Event{
		EventID:   eventID,
		CycleID:   cycleID,
		Channel:   string(alert.Channel),
		Rule:      alert.Rule,
		Message:   alert.Message,
		FiredAt:   alert.FiredAt.UTC(),
		Delivered: report.Delivered,
		Muted:     report.Muted,
	}
	if alert.Channel == gate.ChannelPoint {
		at := alert.Reading.Time()
		ev.Value = alert.Reading.Value
		ev.Direction = string(alert.Reading.Direction)
		ev.ReadingAt = &at
	}
	return ev
}

// EventPublisher forwards alert events to an external stream.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements EventPublisher.
func (NopPublisher) Close() error { return nil }

// KafkaOptions configure the Kafka publisher.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaPublisher writes events to a Kafka topic keyed by channel.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaPublisher constructs a synchronous Kafka writer.
func NewKafkaPublisher(opts KafkaOptions, logger zerolog.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(opts.Brokers))
	for _, b := range opts.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(opts.Topic) == "" {
		return nil, errors.New("kafka topic is required")
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: timeout,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logging.Component(logger, "alert_kafka"),
	}, nil
}

// Publish writes ev to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	p.logger.Debug().Str("event_id", ev.EventID.String()).Str("channel", ev.Channel).Msg("alert event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(ev Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode alert event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Channel),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID.String())},
			{Key: "channel", Value: []byte(ev.Channel)},
		},
		Time: ev.FiredAt,
	}, nil
}

var (
	_ EventPublisher = NopPublisher{}
	_ EventPublisher = (*KafkaPublisher)(nil)
)
