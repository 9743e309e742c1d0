package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cgm-alerts/internal/glucose"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// series lays values out oldest first, spaced by step, with the newest reading
// newestAge before testNow.
func series(newestAge, step time.Duration, values ...int) []glucose.Reading {
	newest := testNow.Add(-newestAge)
	out := make([]glucose.Reading, len(values))
	for i, v := range values {
		at := newest.Add(-time.Duration(len(values)-1-i) * step)
		out[i] = glucose.Reading{Timestamp: at.UnixMilli(), Value: v, Direction: glucose.TrendFlat}
	}
	return out
}

func carbAgo(d time.Duration) glucose.Treatment {
	return glucose.CarbTreatment(testNow.Add(-d).UnixMilli(), 30)
}

func insulinAgo(d time.Duration) glucose.Treatment {
	return glucose.InsulinTreatment(testNow.Add(-d).UnixMilli(), 4)
}

func evaluate(t *testing.T, rs []glucose.Reading, ts ...glucose.Treatment) (Evaluation, bool) {
	t.Helper()
	return NewDefaultEvaluator().Evaluate(glucose.NewWindow(rs, ts), testNow)
}

func TestImminentHypoglycemiaMatches(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78)

	ev, ok := evaluate(t, rs, carbAgo(40*time.Minute))
	require.True(t, ok)
	assert.Equal(t, NameImminentHypoglycemia, ev.Rule)
	assert.Equal(t, MessageImminentHypoglycemia, ev.Message)
}

func TestImminentHypoglycemiaRecentCarbsSuppress(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78)

	_, ok := evaluate(t, rs, carbAgo(10*time.Minute))
	assert.False(t, ok)
}

func TestImminentHypoglycemiaWithoutCarbHistoryDoesNotMatch(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78)

	_, ok := evaluate(t, rs, insulinAgo(2*time.Hour))
	assert.False(t, ok)
}

func TestImminentHypoglycemiaRequiresLowOldestReading(t *testing.T) {
	// Falling fast, but the oldest of the six is above 106 so the trend has not
	// yet reached the hypoglycemia approach band.
	rs := series(time.Minute, 5*time.Minute, 140, 130, 120, 108, 102, 96)

	_, ok := evaluate(t, rs, carbAgo(40*time.Minute))
	assert.False(t, ok)
}

func TestImminentHypoglycemiaFilters(t *testing.T) {
	cases := map[string][]glucose.Reading{
		"already low":          series(time.Minute, 5*time.Minute, 104, 98, 92, 86, 80, 75),
		"two recent above 106": series(time.Minute, 5*time.Minute, 100, 104, 110, 108, 100, 90),
		"gentle slope":         series(time.Minute, 5*time.Minute, 100, 98, 96, 94, 92, 90),
		"sampling gap":         append(series(14*time.Minute, 5*time.Minute, 106, 100, 94, 88, 82), series(time.Minute, 0, 78)...),
		"stale newest":         series(11*time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78),
		"insufficient data":    series(time.Minute, 5*time.Minute, 100, 90, 80),
	}
	for name, rs := range cases {
		t.Run(name, func(t *testing.T) {
			res := Default()[0].Evaluate(glucose.NewWindow(rs, []glucose.Treatment{carbAgo(time.Hour)}), testNow)
			assert.False(t, res.Matches)
			assert.Empty(t, res.Message)
		})
	}
}

func TestImminentHypoglycemiaDiscardsLargestDelta(t *testing.T) {
	// Deltas -6,-6,-6,-6,+8: the single rebound is dropped before averaging.
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 90)

	res := Default()[0].Evaluate(glucose.NewWindow(rs, []glucose.Treatment{carbAgo(time.Hour)}), testNow)
	assert.True(t, res.Matches)
}

func TestZeroElapsedDeltaDoesNotMatch(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78)
	rs[4].Timestamp = rs[3].Timestamp

	res := Default()[0].Evaluate(glucose.NewWindow(rs, []glucose.Treatment{carbAgo(time.Hour)}), testNow)
	assert.False(t, res.Matches)
}

func TestFastRisingMatches(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 140, 150, 160, 170, 180, 190, 200)

	ev, ok := evaluate(t, rs, insulinAgo(45*time.Minute))
	require.True(t, ok)
	assert.Equal(t, NameFastRising, ev.Rule)
	assert.Equal(t, MessageFastRising, ev.Message)
}

func TestFastRisingSuppressed(t *testing.T) {
	rising := series(time.Minute, 5*time.Minute, 140, 150, 160, 170, 180, 190, 200)
	cases := map[string]struct {
		readings   []glucose.Reading
		treatments []glucose.Treatment
	}{
		"decelerating":   {series(time.Minute, 5*time.Minute, 140, 155, 170, 185, 200, 204, 206), []glucose.Treatment{insulinAgo(time.Hour)}},
		"recent insulin": {rising, []glucose.Treatment{insulinAgo(20 * time.Minute)}},
		"no insulin":     {rising, []glucose.Treatment{carbAgo(time.Hour)}},
		"starts too low": {series(time.Minute, 5*time.Minute, 130, 150, 160, 170, 180, 190, 200), []glucose.Treatment{insulinAgo(time.Hour)}},
		"already high":   {series(time.Minute, 5*time.Minute, 160, 170, 180, 190, 200, 210, 220), []glucose.Treatment{insulinAgo(time.Hour)}},
		"slow rise":      {series(time.Minute, 5*time.Minute, 140, 144, 148, 152, 156, 160, 164), []glucose.Treatment{insulinAgo(time.Hour)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Default()[1].Evaluate(glucose.NewWindow(tc.readings, tc.treatments), testNow)
			assert.False(t, res.Matches)
		})
	}
}

func TestFastRisingOnlyOneDeceleratingDeltaStillMatches(t *testing.T) {
	// Last delta is below 70% of the average, the one before is not.
	rs := series(time.Minute, 5*time.Minute, 140, 150, 160, 170, 180, 190, 194)

	res := Default()[1].Evaluate(glucose.NewWindow(rs, []glucose.Treatment{insulinAgo(time.Hour)}), testNow)
	assert.True(t, res.Matches)
}

func TestStableHyperglycemiaMatches(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 190, 185, 188, 192, 186, 190, 183, 181, 176, 178)

	ev, ok := evaluate(t, rs, insulinAgo(50*time.Minute))
	require.True(t, ok)
	assert.Equal(t, NameStableHyperglycemia, ev.Rule)
	assert.Equal(t, MessageStableHyperglycemia, ev.Message)
}

func TestStableHyperglycemiaSuppressed(t *testing.T) {
	stable := series(time.Minute, 5*time.Minute, 190, 185, 188, 192, 186, 190, 183, 181, 176, 178)
	cases := map[string]struct {
		readings   []glucose.Reading
		treatments []glucose.Treatment
	}{
		"recent insulin":  {stable, []glucose.Treatment{insulinAgo(35 * time.Minute)}},
		"no insulin":      {stable, nil},
		"latest below":    {series(time.Minute, 5*time.Minute, 190, 185, 188, 192, 186, 190, 183, 181, 176, 174), []glucose.Treatment{insulinAgo(time.Hour)}},
		"too few above":   {series(time.Minute, 5*time.Minute, 190, 185, 188, 192, 186, 180, 180, 180, 176, 178), []glucose.Treatment{insulinAgo(time.Hour)}},
		"touches 220":     {series(time.Minute, 5*time.Minute, 220, 185, 188, 192, 186, 190, 183, 181, 176, 178), []glucose.Treatment{insulinAgo(time.Hour)}},
		"too many at 175": {series(time.Minute, 5*time.Minute, 175, 175, 175, 175, 175, 190, 183, 181, 186, 188), []glucose.Treatment{insulinAgo(time.Hour)}},
		"only nine":       {series(time.Minute, 5*time.Minute, 185, 188, 192, 186, 190, 183, 181, 176, 178), []glucose.Treatment{insulinAgo(time.Hour)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Default()[2].Evaluate(glucose.NewWindow(tc.readings, tc.treatments), testNow)
			assert.False(t, res.Matches)
		})
	}
}

func TestStaleSignal(t *testing.T) {
	rs := series(30*time.Minute, 5*time.Minute, 120, 121, 119)

	ev, ok := evaluate(t, rs)
	require.True(t, ok)
	assert.Equal(t, NameStaleSignal, ev.Rule)
	assert.Equal(t, MessageStaleSignal, ev.Message)

	_, ok = evaluate(t, series(24*time.Minute, 5*time.Minute, 120, 121, 119))
	assert.False(t, ok)

	_, ok = evaluate(t, nil)
	assert.False(t, ok)
}

func TestStaleSignalBoundaryIsInclusive(t *testing.T) {
	ev, ok := evaluate(t, series(25*time.Minute, 0, 120))
	require.True(t, ok)
	assert.Equal(t, NameStaleSignal, ev.Rule)
}

func TestPriorityFirstMatchWins(t *testing.T) {
	// Satisfies both fast rising and stable hyperglycemia.
	rs := series(time.Minute, 5*time.Minute, 181, 181, 181, 183, 189, 195, 201, 207, 213, 219)
	w := glucose.NewWindow(rs, []glucose.Treatment{insulinAgo(50 * time.Minute)})
	e := NewDefaultEvaluator()

	explained := e.Explain(w, testNow)
	require.Len(t, explained, 4)
	assert.True(t, explained[1].Matches)
	assert.True(t, explained[2].Matches)

	ev, ok := e.Evaluate(w, testNow)
	require.True(t, ok)
	assert.Equal(t, NameFastRising, ev.Rule)
}

func TestEvaluatorStopsAtFirstMatch(t *testing.T) {
	var laterCalls int
	first := New("first", Limits{}, func(glucose.Window, time.Time) Result { return Match("A") })
	second := New("second", Limits{}, func(glucose.Window, time.Time) Result {
		laterCalls++
		return Match("B")
	})

	ev, ok := NewEvaluator(first, second).Evaluate(glucose.Window{}, testNow)
	require.True(t, ok)
	assert.Equal(t, "A", ev.Message)
	assert.Zero(t, laterCalls)
}

func TestEvaluationIsIdempotent(t *testing.T) {
	rs := series(time.Minute, 5*time.Minute, 106, 100, 94, 88, 82, 78)
	w := glucose.NewWindow(rs, []glucose.Treatment{carbAgo(40 * time.Minute)})
	e := NewDefaultEvaluator()

	first, ok1 := e.Evaluate(w, testNow)
	second, ok2 := e.Evaluate(w, testNow)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
	assert.Equal(t, rs, w.Readings())
}

func TestGuardOrderWindowsBeforeGap(t *testing.T) {
	// An old gap outside the last three readings does not fail the gap guard.
	rs := append(series(40*time.Minute, 0, 100), series(time.Minute, 5*time.Minute, 100, 101, 102)...)
	seen := 0
	r := New("probe", Limits{Recent: 3, MaxGapMinutes: 12, MaxStaleMinutes: 10}, func(w glucose.Window, _ time.Time) Result {
		seen = w.Len()
		return Match("ok")
	})

	res := r.Evaluate(glucose.NewWindow(rs, nil), testNow)
	assert.True(t, res.Matches)
	assert.Equal(t, 3, seen)

	res = New("probe", Limits{MaxGapMinutes: 12}, r.Check).Evaluate(glucose.NewWindow(rs, nil), testNow)
	assert.False(t, res.Matches)
}

func TestTrimmedMeanUsesReducedCount(t *testing.T) {
	avg, ok := trimmedMean([]float64{-3, -3, 9}, dropLargest)
	require.True(t, ok)
	assert.Equal(t, -3.0, avg)

	avg, ok = trimmedMean([]float64{-30, 6, 6}, dropSmallest)
	require.True(t, ok)
	assert.Equal(t, 6.0, avg)

	_, ok = trimmedMean([]float64{1}, dropSmallest)
	assert.False(t, ok)
}

func TestMessageFor(t *testing.T) {
	for _, name := range NewDefaultEvaluator().Names() {
		msg, ok := MessageFor(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, msg)
	}
	_, ok := MessageFor("unknown")
	assert.False(t, ok)
}
