package glucose

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minute = int64(60 * 1000)

func readingsAt(start int64, step int64, values ...int) []Reading {
	out := make([]Reading, len(values))
	for i, v := range values {
		out[i] = Reading{Timestamp: start + int64(i)*step, Value: v, Direction: TrendFlat}
	}
	return out
}

func TestNewWindowSortsAndDerives(t *testing.T) {
	rs := readingsAt(0, 5*minute, 100, 110, 105)
	shuffled := []Reading{rs[2], rs[0], rs[1]}

	w := NewWindow(shuffled, nil)

	assert.Equal(t, rs, w.Readings())
	assert.Equal(t, []float64{300, 300}, w.ElapsedSeconds())
	deltas, ok := w.Deltas()
	require.True(t, ok)
	assert.Equal(t, []float64{10, -5}, deltas)
}

func TestDeltaNormalisesIrregularIntervals(t *testing.T) {
	rs := []Reading{
		{Timestamp: 0, Value: 100},
		{Timestamp: 10 * minute, Value: 110},
		{Timestamp: 13 * minute, Value: 117},
	}
	w := NewWindow(rs, nil)

	deltas, ok := w.Deltas()
	require.True(t, ok)
	assert.Equal(t, 5.0, deltas[0])
	assert.Equal(t, 11.667, deltas[1])
}

func TestDeltaRoundingMatchesExactBinaryValue(t *testing.T) {
	assert.Equal(t, 2.675, round3(2.6749999))
	assert.Equal(t, -0.333, round3(-1.0/3))
	assert.Equal(t, 0.001, round3(0.0005000001))
}

func TestDeltasIndependentOfLaterReadings(t *testing.T) {
	first := readingsAt(0, 5*minute, 120, 112, 90)
	second := readingsAt(0, 5*minute, 120, 112, 200)
	second[2].Timestamp += 2 * minute

	d1, _ := NewWindow(first, nil).Deltas()
	d2, _ := NewWindow(second, nil).Deltas()

	assert.Equal(t, d1[0], d2[0])
	assert.NotEqual(t, d1[1], d2[1])
}

func TestZeroElapsedMarksDeltasUndefined(t *testing.T) {
	rs := []Reading{
		{Timestamp: 1000, Value: 100},
		{Timestamp: 1000, Value: 104},
		{Timestamp: 1000 + 5*minute, Value: 108},
	}
	w := NewWindow(rs, nil)

	_, ok := w.Deltas()
	assert.False(t, ok)
	assert.Equal(t, []float64{0, 300}, w.ElapsedSeconds())
}

func TestFewerThanTwoReadingsYieldsEmptySequences(t *testing.T) {
	for _, rs := range [][]Reading{nil, readingsAt(0, minute, 100)} {
		w := NewWindow(rs, nil)
		deltas, ok := w.Deltas()
		assert.True(t, ok)
		assert.Empty(t, deltas)
		assert.Empty(t, w.ElapsedSeconds())
		_, hasMax := w.MaxElapsedSeconds()
		assert.False(t, hasMax)
	}
}

func TestTreatmentViews(t *testing.T) {
	both, err := NewTreatment(30*minute,
		decimal.NewNullDecimal(decimal.NewFromInt(20)),
		decimal.NewNullDecimal(decimal.NewFromFloat(2.5)))
	require.NoError(t, err)

	w := NewWindow(nil, []Treatment{
		InsulinTreatment(20*minute, 4),
		CarbTreatment(10*minute, 30),
		both,
		{Timestamp: 40 * minute},
	})

	assert.Len(t, w.CarbEvents(), 2)
	assert.Len(t, w.InsulinEvents(), 2)

	carb, ok := w.NewestCarb()
	require.True(t, ok)
	assert.Equal(t, both, carb)

	insulin, ok := w.NewestInsulin()
	require.True(t, ok)
	assert.Equal(t, both, insulin)

	_, ok = NewWindow(nil, []Treatment{CarbTreatment(0, 10)}).NewestInsulin()
	assert.False(t, ok)
}

func TestNewTreatmentRejectsNegativeAmounts(t *testing.T) {
	_, err := NewTreatment(0, decimal.NewNullDecimal(decimal.NewFromInt(-1)), decimal.NullDecimal{})
	assert.Error(t, err)
	_, err = NewTreatment(0, decimal.NullDecimal{}, decimal.NewNullDecimal(decimal.NewFromInt(-2)))
	assert.Error(t, err)
}

func TestLatestRestrictsReadingsAndTreatments(t *testing.T) {
	rs := readingsAt(0, 5*minute, 1, 2, 3, 4, 5)
	ts := []Treatment{CarbTreatment(0, 1), CarbTreatment(minute, 2), InsulinTreatment(2*minute, 3)}
	w := NewWindow(rs, ts)

	sub := w.Latest(3)

	assert.Equal(t, rs[2:], sub.Readings())
	assert.Equal(t, ts, sub.Treatments())
	assert.Len(t, sub.ElapsedSeconds(), 2)
	assert.Equal(t, rs, w.Readings(), "parent window is untouched")

	assert.Equal(t, ts[1:], w.Latest(2).Treatments())
}

func TestReadingAgeFloorsToWholeSeconds(t *testing.T) {
	now := time.UnixMilli(100_999)
	assert.Equal(t, int64(100), Reading{Timestamp: 0}.AgeSeconds(now))
	assert.Equal(t, int64(-1), Reading{Timestamp: 101_500}.AgeSeconds(now))
}

func TestParseTrend(t *testing.T) {
	assert.Equal(t, TrendDoubleDown, ParseTrend("DoubleDown"))
	assert.Equal(t, TrendUnknown, ParseTrend("NOT COMPUTABLE"))
	assert.Equal(t, "↘", TrendFortyFiveDown.Arrow())
	assert.Equal(t, "?", TrendUnknown.Arrow())
}
