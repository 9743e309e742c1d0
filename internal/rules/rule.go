// Package rules evaluates clinical heuristics over a glucose window.
//
// A rule is data: a name, an ordered guard chain and a pure predicate. Guards run
// before the predicate and may narrow the window; the first failing guard ends the
// evaluation with no match.
package rules

import (
	"time"

	"cgm-alerts/internal/glucose"
)

// Result is the outcome of one rule. Message is empty unless Matches is set.
type Result struct {
	Matches bool
	Message string
}

// NoMatch is the zero Result.
func NoMatch() Result { return Result{} }

// Match builds a matching Result carrying msg.
func Match(msg string) Result { return Result{Matches: true, Message: msg} }

// Predicate is a rule's own logic, run after its guards pass.
type Predicate func(w glucose.Window, now time.Time) Result

// Guard is a shared precondition. It returns the window the next step should see
// and whether evaluation may continue.
type Guard struct {
	Name  string
	Apply func(w glucose.Window, now time.Time) (glucose.Window, bool)
}

// Recent restricts the window to the last n readings and treatments. Fewer than n
// readings is insufficient data.
func Recent(n int) Guard {
	return Guard{
		Name: "recent",
		Apply: func(w glucose.Window, _ time.Time) (glucose.Window, bool) {
			sub := w.Latest(n)
			return sub, sub.Len() >= n
		},
	}
}

// MaxGap fails when any two consecutive readings are further apart than minutes.
func MaxGap(minutes int) Guard {
	limit := float64(60 * minutes)
	return Guard{
		Name: "max_gap",
		Apply: func(w glucose.Window, _ time.Time) (glucose.Window, bool) {
			gap, ok := w.MaxElapsedSeconds()
			if !ok {
				return w, false
			}
			return w, gap <= limit
		},
	}
}

// MaxStale fails when the newest reading is older than minutes.
func MaxStale(minutes int) Guard {
	limit := int64(60 * minutes)
	return Guard{
		Name: "max_stale",
		Apply: func(w glucose.Window, now time.Time) (glucose.Window, bool) {
			newest, ok := w.Newest()
			if !ok {
				return w, false
			}
			return w, newest.AgeSeconds(now) <= limit
		},
	}
}

// Limits declares the guards of a rule. Zero disables a guard.
type Limits struct {
	Recent          int
	MaxGapMinutes   int
	MaxStaleMinutes int
}

// Chain expands the limits into guards in evaluation order: windowing, sampling gap, staleness.
func (l Limits) Chain() []Guard {
	var guards []Guard
	if l.Recent > 0 {
		guards = append(guards, Recent(l.Recent))
	}
	if l.MaxGapMinutes > 0 {
		guards = append(guards, MaxGap(l.MaxGapMinutes))
	}
	if l.MaxStaleMinutes > 0 {
		guards = append(guards, MaxStale(l.MaxStaleMinutes))
	}
	return guards
}

// Rule is one named heuristic.
type Rule struct {
	Name   string
	Guards []Guard
	Check  Predicate
}

// New composes a rule from its limits and predicate.
func New(name string, limits Limits, check Predicate) Rule {
	return Rule{Name: name, Guards: limits.Chain(), Check: check}
}

// Evaluate runs the guard chain and then the predicate.
func (r Rule) Evaluate(w glucose.Window, now time.Time) Result {
	for _, g := range r.Guards {
		var ok bool
		w, ok = g.Apply(w, now)
		if !ok {
			return NoMatch()
		}
	}
	res := r.Check(w, now)
	if !res.Matches {
		return NoMatch()
	}
	return res
}
