package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cgm-alerts/internal/alerting"
	"cgm-alerts/internal/fetcher"
	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/logging"
	"cgm-alerts/internal/metrics"
	"cgm-alerts/internal/rules"
	"cgm-alerts/internal/scheduler"
	"cgm-alerts/internal/storage"
)

// Deps are the collaborators of a Service. Dispatcher, Alerts, Locker and
// Publisher are optional.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Source     fetcher.Source
	Gate       *gate.Gate
	Evaluator  *rules.Evaluator
	Dispatcher *alerting.Dispatcher
	Alerts     storage.AlertStore
	Locker     storage.AdvisoryLocker
	Publisher  alerting.EventPublisher
}

// Options tune a Service.
type Options struct {
	FetchCount    int
	LockKey       int64
	AlertsEnabled bool
}

// Cycle is the outcome of one evaluation.
type Cycle struct {
	ID         string
	At         time.Time
	Window     glucose.Window
	Evaluation rules.Evaluation
	Matched    bool
	Alerts     []gate.Alert
}

// Service orchestrates fetching, evaluation, and alerting.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger

	mu        sync.RWMutex
	window    glucose.Window
	hasWindow bool
}

// New constructs the monitoring service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if opts.FetchCount <= 0 {
		opts.FetchCount = 16
	}
	if deps.Evaluator == nil {
		deps.Evaluator = rules.NewDefaultEvaluator()
	}
	if deps.Publisher == nil {
		deps.Publisher = alerting.NopPublisher{}
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logging.Component(logger, "service"),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle runs one polling cycle and delivers the alerts it produces.
func (s *Service) ProcessCycle(ctx context.Context, now time.Time) error {
	started := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(started).Seconds()) }()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	if !proceed {
		metrics.CyclesTotal.WithLabelValues("skipped_lock").Inc()
		s.logger.Debug().Time("now", now).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	cycle, err := s.Evaluate(ctx, now)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("fetch_failed").Inc()
		return err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()

	logger := s.logger.With().Str("cycle_id", cycle.ID).Logger()
	for _, alert := range cycle.Alerts {
		s.emit(ctx, logger, cycle.ID, alert, now)
	}
	return nil
}

// Evaluate fetches fresh data and runs both gate channels without delivering
// anything. A fetch failure leaves the gate untouched.
func (s *Service) Evaluate(ctx context.Context, now time.Time) (Cycle, error) {
	cycle := Cycle{ID: uuid.NewString(), At: now}
	logger := s.logger.With().Str("cycle_id", cycle.ID).Logger()

	readings, err := s.deps.Source.FetchReadings(ctx, s.opts.FetchCount)
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues("readings").Inc()
		return cycle, fmt.Errorf("fetch readings: %w", err)
	}
	treatments, err := s.deps.Source.FetchTreatments(ctx, s.opts.FetchCount)
	if err != nil {
		metrics.FetchFailuresTotal.WithLabelValues("treatments").Inc()
		return cycle, fmt.Errorf("fetch treatments: %w", err)
	}

	w := glucose.NewWindow(readings, treatments)
	newest, ok := w.Newest()
	if !ok {
		metrics.FetchFailuresTotal.WithLabelValues("readings").Inc()
		return cycle, fmt.Errorf("fetch readings: %w", fetcher.ErrNoReadings)
	}
	cycle.Window = w
	s.mu.Lock()
	s.window = w
	s.hasWindow = true
	s.mu.Unlock()
	metrics.LatestGlucose.Set(float64(newest.Value))
	metrics.LatestReadingAge.Set(float64(newest.AgeSeconds(now)))

	if alert, fire := s.deps.Gate.CheckPoint(newest, now); fire {
		cycle.Alerts = append(cycle.Alerts, alert)
	}

	ev, matched := s.deps.Evaluator.Evaluate(w, now)
	cycle.Evaluation, cycle.Matched = ev, matched
	if alert, fire := s.deps.Gate.CheckRule(ev, now); fire {
		cycle.Alerts = append(cycle.Alerts, alert)
	}

	logger.Info().
		Int("readings", w.Len()).
		Int("treatments", len(treatments)).
		Int("latest", newest.Value).
		Str("trend", string(newest.Direction)).
		Str("rule", ev.Rule).
		Int("alerts", len(cycle.Alerts)).
		Msg("cycle evaluated")
	return cycle, nil
}

func (s *Service) emit(ctx context.Context, logger zerolog.Logger, cycleID string, alert gate.Alert, now time.Time) {
	metrics.AlertsTotal.WithLabelValues(string(alert.Channel), alert.Rule).Inc()

	var report alerting.Report
	if s.opts.AlertsEnabled && s.deps.Dispatcher != nil {
		report = s.deps.Dispatcher.Dispatch(ctx, alert, now)
		metrics.DeliveriesTotal.WithLabelValues(string(alert.Channel), "delivered").Add(float64(report.Delivered))
		metrics.DeliveriesTotal.WithLabelValues(string(alert.Channel), "muted").Add(float64(report.Muted))
		metrics.DeliveriesTotal.WithLabelValues(string(alert.Channel), "failed").Add(float64(report.Failed))
	} else {
		logger.Info().Str("channel", string(alert.Channel)).Str("message", alert.Message).Msg("alerting disabled, alert not delivered")
	}

	eventID := uuid.New()
	if s.deps.Alerts != nil {
		if _, err := s.deps.Alerts.InsertAlert(ctx, auditRecord(eventID, alert, report)); err != nil {
			logger.Error().Err(err).Str("channel", string(alert.Channel)).Msg("failed to persist alert record")
		}
	}

	if err := s.deps.Publisher.Publish(ctx, alerting.NewEvent(eventID, cycleID, alert, report)); err != nil {
		metrics.EventPublishTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Str("event_id", eventID.String()).Msg("failed to publish alert event")
		return
	}
	metrics.EventPublishTotal.WithLabelValues("success").Inc()
}

func auditRecord(eventID uuid.UUID, alert gate.Alert, report alerting.Report) storage.AlertRecord {
	rec := storage.AlertRecord{
		EventID:   eventID,
		Channel:   string(alert.Channel),
		Rule:      alert.Rule,
		Message:   alert.Message,
		Delivered: report.Delivered,
		Muted:     report.Muted,
	}
	if alert.Channel == gate.ChannelPoint {
		value := alert.Reading.Value
		ts := alert.Reading.Time().UTC()
		rec.GlucoseValue = &value
		rec.ReadingTS = &ts
	}
	return rec
}

// LastReading returns the newest reading seen by the point channel.
func (s *Service) LastReading() (glucose.Reading, bool) {
	return s.deps.Gate.LastReading()
}

// LastWindow returns the window built by the most recent successful fetch.
func (s *Service) LastWindow() (glucose.Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window, s.hasWindow
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
