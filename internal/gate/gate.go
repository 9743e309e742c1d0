// Package gate decides, per polling cycle, which alerts may be emitted.
//
// Two channels are tracked independently. Point alerts fire when the newest
// reading changed since the last check and is out of range. Rule alerts fire when
// a rule matched and the shared cooldown has elapsed.
package gate

import (
	"fmt"
	"sync"
	"time"

	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/rules"
)

// Channel tags an alert so dispatch can apply its mute policy.
type Channel string

const (
	ChannelPoint Channel = "point"
	ChannelRule  Channel = "rule"
)

// Alert is one message ready for dispatch.
type Alert struct {
	Channel Channel
	Rule    string
	Reading glucose.Reading
	Message string
	FiredAt time.Time
}

// Thresholds bound the point alert. A reading alerts at or beyond either limit.
type Thresholds struct {
	High int
	Low  int
}

// Triggers reports whether value is out of range.
func (t Thresholds) Triggers(value int) bool {
	return value >= t.High || value <= t.Low
}

// Options configure a Gate.
type Options struct {
	Thresholds Thresholds
	Cooldown   time.Duration
	// Format renders the point alert text; defaults to a plain one-liner.
	Format func(r glucose.Reading, t Thresholds) string
}

// Gate holds the cross-cycle suppression state.
type Gate struct {
	mu            sync.RWMutex
	opts          Options
	last          glucose.Reading
	hasLast       bool
	cooldownUntil time.Time
}

// New constructs a Gate with no history.
func New(opts Options) *Gate {
	if opts.Format == nil {
		opts.Format = func(r glucose.Reading, _ Thresholds) string {
			return fmt.Sprintf("%d mg/dL %s", r.Value, r.Direction.Arrow())
		}
	}
	return &Gate{opts: opts}
}

// CheckPoint records newest as the last seen reading and returns a point alert
// when it differs from the previous one and is out of range.
func (g *Gate) CheckPoint(newest glucose.Reading, now time.Time) (Alert, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasLast && g.last == newest {
		return Alert{}, false
	}
	g.last = newest
	g.hasLast = true

	if !g.opts.Thresholds.Triggers(newest.Value) {
		return Alert{}, false
	}
	return Alert{
		Channel: ChannelPoint,
		Reading: newest,
		Message: g.opts.Format(newest, g.opts.Thresholds),
		FiredAt: now,
	}, true
}

// CheckRule turns a rule evaluation into an alert when the cooldown allows it,
// and restarts the cooldown from now.
func (g *Gate) CheckRule(ev rules.Evaluation, now time.Time) (Alert, bool) {
	if !ev.Matches {
		return Alert{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.cooldownUntil) {
		return Alert{}, false
	}
	g.cooldownUntil = now.Add(g.opts.Cooldown)

	return Alert{
		Channel: ChannelRule,
		Rule:    ev.Rule,
		Message: ev.Message,
		FiredAt: now,
	}, true
}

// LastReading returns the reading seen by the most recent CheckPoint.
func (g *Gate) LastReading() (glucose.Reading, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last, g.hasLast
}

// CooldownUntil returns the instant rule alerts are permitted again.
func (g *Gate) CooldownUntil() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cooldownUntil
}
