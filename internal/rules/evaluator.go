package rules

import (
	"time"

	"cgm-alerts/internal/glucose"
)

// Evaluation is a Result tagged with the rule that produced it.
type Evaluation struct {
	Rule string
	Result
}

// Evaluator runs rules in priority order, first match wins.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator builds an evaluator; rules are consulted in the order given.
func NewEvaluator(rules ...Rule) *Evaluator {
	rs := make([]Rule, len(rules))
	copy(rs, rules)
	return &Evaluator{rules: rs}
}

// Evaluate returns the first matching rule's result. ok is false when nothing matched.
func (e *Evaluator) Evaluate(w glucose.Window, now time.Time) (Evaluation, bool) {
	for _, r := range e.rules {
		res := r.Evaluate(w, now)
		if res.Matches {
			return Evaluation{Rule: r.Name, Result: res}, true
		}
	}
	return Evaluation{}, false
}

// Explain evaluates every rule without short-circuiting. Used for diagnostics only.
func (e *Evaluator) Explain(w glucose.Window, now time.Time) []Evaluation {
	out := make([]Evaluation, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, Evaluation{Rule: r.Name, Result: r.Evaluate(w, now)})
	}
	return out
}

// Names lists the rules in priority order.
func (e *Evaluator) Names() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}
