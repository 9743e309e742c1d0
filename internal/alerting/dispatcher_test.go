package alerting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/mute"
	"cgm-alerts/internal/storage"
)

type staticRecipients []storage.Subscriber

func (s staticRecipients) Subscribers() []storage.Subscriber { return s }

type recordingSender struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[int64][]string), failFor: make(map[int64]bool)}
}

func (r *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[chatID] {
		return errors.New("boom")
	}
	r.sent[chatID] = append(r.sent[chatID], text)
	return nil
}

var (
	dispatchNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	subscribers = staticRecipients{
		{Username: "ana", ChatID: 1},
		{Username: "bia", ChatID: 2},
	}
)

func pointAlert(value int) gate.Alert {
	return gate.Alert{
		Channel: gate.ChannelPoint,
		Reading: glucose.Reading{Timestamp: dispatchNow.UnixMilli(), Value: value, Direction: glucose.TrendFlat},
		Message: "Hiperglicemia: 250 mg/dL →",
		FiredAt: dispatchNow,
	}
}

func ruleAlert() gate.Alert {
	return gate.Alert{Channel: gate.ChannelRule, Rule: "fast_rising", Message: "Subindo rápido", FiredAt: dispatchNow}
}

func TestMuteSuppressionWithRuleOverride(t *testing.T) {
	mutes := mute.NewRegistry()
	mutes.Init("ana")
	mutes.Init("bia")
	require.True(t, mutes.MuteFor("ana", 19, dispatchNow))

	sender := newRecordingSender()
	d := NewDispatcher(subscribers, mutes, sender, true, testLogger())

	point := d.Dispatch(context.Background(), pointAlert(250), dispatchNow)
	assert.Equal(t, Report{Recipients: 2, Delivered: 1, Muted: 1}, point)
	assert.Empty(t, sender.sent[1])
	require.Len(t, sender.sent[2], 1)

	rule := d.Dispatch(context.Background(), ruleAlert(), dispatchNow)
	assert.Equal(t, Report{Recipients: 2, Delivered: 2}, rule)
	require.Len(t, sender.sent[1], 1)
	assert.True(t, strings.HasPrefix(sender.sent[1][0], "Subindo rápido\n/silencia20"))
}

func TestRuleAlertHonoursMuteWithoutOverride(t *testing.T) {
	mutes := mute.NewRegistry()
	mutes.Init("ana")
	require.True(t, mutes.MuteFor("ana", 19, dispatchNow))

	sender := newRecordingSender()
	d := NewDispatcher(subscribers, mutes, sender, false, testLogger())

	report := d.Dispatch(context.Background(), ruleAlert(), dispatchNow)
	assert.Equal(t, 1, report.Muted)
	assert.Equal(t, 1, report.Delivered)
}

func TestMuteExpires(t *testing.T) {
	mutes := mute.NewRegistry()
	mutes.Init("ana")
	require.True(t, mutes.MuteFor("ana", 19, dispatchNow))

	sender := newRecordingSender()
	d := NewDispatcher(subscribers, mutes, sender, true, testLogger())

	report := d.Dispatch(context.Background(), pointAlert(250), dispatchNow.Add(19*time.Minute+time.Second))
	assert.Equal(t, 2, report.Delivered)
}

func TestDeliveryFailureDoesNotAbort(t *testing.T) {
	sender := newRecordingSender()
	sender.failFor[1] = true
	d := NewDispatcher(subscribers, nil, sender, true, testLogger())

	report := d.Dispatch(context.Background(), pointAlert(250), dispatchNow)
	assert.Equal(t, Report{Recipients: 2, Delivered: 1, Failed: 1}, report)
	assert.Len(t, sender.sent[2], 1)
}

func TestNewEvent(t *testing.T) {
	id := uuid.New()
	ev := NewEvent(id, "cycle-1", pointAlert(250), Report{Delivered: 1, Muted: 1})
	assert.Equal(t, id, ev.EventID)
	assert.Equal(t, "point", ev.Channel)
	assert.Equal(t, 250, ev.Value)
	assert.Equal(t, "Flat", ev.Direction)
	require.NotNil(t, ev.ReadingAt)
	assert.True(t, ev.ReadingAt.Equal(dispatchNow))

	rule := NewEvent(id, "", ruleAlert(), Report{})
	assert.Equal(t, "fast_rising", rule.Rule)
	assert.Nil(t, rule.ReadingAt)
	assert.Zero(t, rule.Value)
}
