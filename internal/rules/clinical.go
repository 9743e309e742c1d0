package rules

import (
	"sort"
	"time"

	"cgm-alerts/internal/glucose"
)

// Rule names, in priority order.
const (
	NameImminentHypoglycemia = "imminent_hypoglycemia"
	NameFastRising           = "fast_rising"
	NameStableHyperglycemia  = "stable_hyperglycemia"
	NameStaleSignal          = "stale_signal"
)

// Messages delivered when a rule matches.
const (
	MessageImminentHypoglycemia = "Glicose em rota iminente de hipoglicemia, último carboidrato há mais de 25 minutos. Considerar comer algo."
	MessageFastRising           = "Glicose subindo rapidamente, última aplicação de insulina há mais de 30 minutos. Considerar aplicar insulina."
	MessageStableHyperglycemia  = "Glicose estável acima de 180, última aplicação de insulina há mais de 40 minutos. Considerar aplicar insulina."
	MessageStaleSignal          = "Sinal do sensor perdido. Última medida há mais de 25 minutos. Considerar verificar o dispositivo e a conexão com a internet."
)

// Default returns the clinical rule set in priority order.
func Default() []Rule {
	return []Rule{
		New(NameImminentHypoglycemia, Limits{Recent: 6, MaxGapMinutes: 12, MaxStaleMinutes: 10}, imminentHypoglycemia),
		New(NameFastRising, Limits{Recent: 7, MaxGapMinutes: 12, MaxStaleMinutes: 10}, fastRising),
		New(NameStableHyperglycemia, Limits{Recent: 10, MaxGapMinutes: 12, MaxStaleMinutes: 10}, stableHyperglycemia),
		New(NameStaleSignal, Limits{}, staleSignal),
	}
}

var messages = map[string]string{
	NameImminentHypoglycemia: MessageImminentHypoglycemia,
	NameFastRising:           MessageFastRising,
	NameStableHyperglycemia:  MessageStableHyperglycemia,
	NameStaleSignal:          MessageStaleSignal,
}

// MessageFor returns the alert text of a default rule.
func MessageFor(name string) (string, bool) {
	msg, ok := messages[name]
	return msg, ok
}

// NewDefaultEvaluator wires Default into an Evaluator.
func NewDefaultEvaluator() *Evaluator {
	return NewEvaluator(Default()...)
}

func imminentHypoglycemia(w glucose.Window, now time.Time) Result {
	readings := w.Readings()
	if len(readings) < 4 || readings[0].Value > 106 {
		return NoMatch()
	}

	if countValues(readings, func(v int) bool { return v <= 75 }) > 0 {
		return NoMatch()
	}
	if countValues(readings[len(readings)-4:], func(v int) bool { return v >= 106 }) >= 2 {
		return NoMatch()
	}

	if !olderThan(w.NewestCarb, now, 25) {
		return NoMatch()
	}

	deltas, ok := w.Deltas()
	if !ok {
		return NoMatch()
	}
	avg, ok := trimmedMean(deltas, dropLargest)
	if !ok || avg > -2.7 {
		return NoMatch()
	}

	return Match(MessageImminentHypoglycemia)
}

func fastRising(w glucose.Window, now time.Time) Result {
	readings := w.Readings()
	min, max := valueRange(readings)
	if len(readings) == 0 || min < 135 || max >= 220 {
		return NoMatch()
	}

	deltas, ok := w.Deltas()
	if !ok || len(deltas) < 2 {
		return NoMatch()
	}
	avg, ok := trimmedMean(deltas, dropSmallest)
	if !ok || avg < 6 {
		return NoMatch()
	}

	// Stabilising: both recent deltas well below the average.
	last, prev := deltas[len(deltas)-1], deltas[len(deltas)-2]
	if last < avg*0.7 && prev < avg*0.85 {
		return NoMatch()
	}

	if !olderThan(w.NewestInsulin, now, 30) {
		return NoMatch()
	}

	return Match(MessageFastRising)
}

func stableHyperglycemia(w glucose.Window, now time.Time) Result {
	readings := w.Readings()
	newest, ok := w.Newest()
	if !ok || newest.Value < 175 {
		return NoMatch()
	}

	above180 := countValues(readings, func(v int) bool { return v > 180 })
	atMost175 := countValues(readings, func(v int) bool { return v <= 175 })
	atLeast220 := countValues(readings, func(v int) bool { return v >= 220 })
	if above180 < 6 || atMost175 >= 5 || atLeast220 != 0 {
		return NoMatch()
	}

	if !olderThan(w.NewestInsulin, now, 40) {
		return NoMatch()
	}

	return Match(MessageStableHyperglycemia)
}

func staleSignal(w glucose.Window, now time.Time) Result {
	newest, ok := w.Newest()
	if !ok || newest.AgeSeconds(now) < 60*25 {
		return NoMatch()
	}
	return Match(MessageStaleSignal)
}

// olderThan reports whether the newest treatment returned by pick is at least
// minutes old. A missing treatment cannot satisfy the requirement.
func olderThan(pick func() (glucose.Treatment, bool), now time.Time, minutes int64) bool {
	t, ok := pick()
	if !ok {
		return false
	}
	return t.AgeSeconds(now) >= 60*minutes
}

type trim int

const (
	dropLargest trim = iota
	dropSmallest
)

// trimmedMean sorts a copy of values, discards one extreme and averages the rest
// over the reduced count.
func trimmedMean(values []float64, which trim) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if which == dropLargest {
		sorted = sorted[:len(sorted)-1]
	} else {
		sorted = sorted[1:]
	}

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted)), true
}

func countValues(readings []glucose.Reading, pred func(int) bool) int {
	n := 0
	for _, r := range readings {
		if pred(r.Value) {
			n++
		}
	}
	return n
}

func valueRange(readings []glucose.Reading) (min, max int) {
	for i, r := range readings {
		if i == 0 || r.Value < min {
			min = r.Value
		}
		if i == 0 || r.Value > max {
			max = r.Value
		}
	}
	return min, max
}
