package glucose

import (
	"math"
	"sort"
	"strconv"
)

// Window is the sorted, derived view of one polling cycle's readings and treatments.
// It is immutable once built; every accessor returns fresh slices.
type Window struct {
	readings   []Reading
	treatments []Treatment
	elapsed    []float64
	deltas     []float64
}

// NewWindow sorts the inputs by timestamp and derives elapsed time and delta sequences.
// With fewer than two readings the derived sequences are empty.
func NewWindow(readings []Reading, treatments []Treatment) Window {
	rs := make([]Reading, len(readings))
	copy(rs, readings)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Timestamp < rs[j].Timestamp })

	ts := make([]Treatment, len(treatments))
	copy(ts, treatments)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Timestamp < ts[j].Timestamp })

	w := Window{readings: rs, treatments: ts}
	if len(rs) < 2 {
		return w
	}

	w.elapsed = make([]float64, len(rs)-1)
	w.deltas = make([]float64, len(rs)-1)
	for i := 0; i < len(rs)-1; i++ {
		w.elapsed[i] = secondsElapsed(rs[i], rs[i+1])
		w.deltas[i] = delta(rs[i], rs[i+1])
	}
	return w
}

// secondsElapsed is the gap between two readings in seconds.
func secondsElapsed(older, newer Reading) float64 {
	return float64(newer.Timestamp-older.Timestamp) / 1000
}

// delta is the glucose change normalised to a 5-minute step, rounded to 3 places.
// NaN marks a zero-length interval.
func delta(older, newer Reading) float64 {
	seconds := secondsElapsed(older, newer)
	if seconds == 0 {
		return math.NaN()
	}
	minutes := seconds / 60
	diff := float64(newer.Value - older.Value)
	return round3(diff / minutes * 5)
}

// round3 rounds the exact binary value to 3 decimal places, ties to even.
func round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

// Len is the number of readings in the window.
func (w Window) Len() int { return len(w.readings) }

// Readings returns the readings in ascending timestamp order.
func (w Window) Readings() []Reading {
	out := make([]Reading, len(w.readings))
	copy(out, w.readings)
	return out
}

// Treatments returns the treatments in ascending timestamp order.
func (w Window) Treatments() []Treatment {
	out := make([]Treatment, len(w.treatments))
	copy(out, w.treatments)
	return out
}

// ElapsedSeconds returns the gaps between consecutive readings.
func (w Window) ElapsedSeconds() []float64 {
	out := make([]float64, len(w.elapsed))
	copy(out, w.elapsed)
	return out
}

// Deltas returns the per-5-minute rates of change. ok is false when any
// interval has zero elapsed time and the sequence must not be evaluated.
func (w Window) Deltas() (deltas []float64, ok bool) {
	out := make([]float64, len(w.deltas))
	ok = true
	for i, d := range w.deltas {
		if math.IsNaN(d) {
			ok = false
		}
		out[i] = d
	}
	return out, ok
}

// MaxElapsedSeconds returns the largest gap between consecutive readings.
func (w Window) MaxElapsedSeconds() (float64, bool) {
	if len(w.elapsed) == 0 {
		return 0, false
	}
	max := w.elapsed[0]
	for _, e := range w.elapsed[1:] {
		if e > max {
			max = e
		}
	}
	return max, true
}

// Oldest returns the earliest reading.
func (w Window) Oldest() (Reading, bool) {
	if len(w.readings) == 0 {
		return Reading{}, false
	}
	return w.readings[0], true
}

// Newest returns the latest reading.
func (w Window) Newest() (Reading, bool) {
	if len(w.readings) == 0 {
		return Reading{}, false
	}
	return w.readings[len(w.readings)-1], true
}

// CarbEvents returns the treatments that recorded carbs.
func (w Window) CarbEvents() []Treatment {
	return w.filterTreatments(Treatment.HasCarbs)
}

// InsulinEvents returns the treatments that recorded insulin.
func (w Window) InsulinEvents() []Treatment {
	return w.filterTreatments(Treatment.HasInsulin)
}

// NewestCarb returns the latest carb event.
func (w Window) NewestCarb() (Treatment, bool) {
	return last(w.CarbEvents())
}

// NewestInsulin returns the latest insulin event.
func (w Window) NewestInsulin() (Treatment, bool) {
	return last(w.InsulinEvents())
}

// Latest returns a new window over the last n readings and the last n treatments.
func (w Window) Latest(n int) Window {
	return NewWindow(tail(w.readings, n), tail(w.treatments, n))
}

func (w Window) filterTreatments(keep func(Treatment) bool) []Treatment {
	out := make([]Treatment, 0, len(w.treatments))
	for _, t := range w.treatments {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func last(ts []Treatment) (Treatment, bool) {
	if len(ts) == 0 {
		return Treatment{}, false
	}
	return ts[len(ts)-1], true
}

func tail[T any](items []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
