package glucose

import (
	"fmt"
	"time"
)

// Trend is the symbolic direction reported by the sensor for a reading.
type Trend string

// Trend codes emitted by the telemetry feed.
const (
	TrendTripleUp      Trend = "TripleUp"
	TrendDoubleUp      Trend = "DoubleUp"
	TrendSingleUp      Trend = "SingleUp"
	TrendFortyFiveUp   Trend = "FortyFiveUp"
	TrendFlat          Trend = "Flat"
	TrendFortyFiveDown Trend = "FortyFiveDown"
	TrendSingleDown    Trend = "SingleDown"
	TrendDoubleDown    Trend = "DoubleDown"
	TrendTripleDown    Trend = "TripleDown"
	TrendUnknown       Trend = ""
)

var trendArrows = map[Trend]string{
	TrendTripleUp:      "↑↑↑",
	TrendDoubleUp:      "↑↑",
	TrendSingleUp:      "↑",
	TrendFortyFiveUp:   "↗",
	TrendFlat:          "→",
	TrendFortyFiveDown: "↘",
	TrendSingleDown:    "↓",
	TrendDoubleDown:    "↓↓",
	TrendTripleDown:    "↓↓↓",
}

// ParseTrend maps a feed direction string onto a Trend, falling back to TrendUnknown.
func ParseTrend(raw string) Trend {
	t := Trend(raw)
	if _, ok := trendArrows[t]; ok {
		return t
	}
	return TrendUnknown
}

// Arrow renders the trend as an arrow glyph, or "?" when unknown.
func (t Trend) Arrow() string {
	if arrow, ok := trendArrows[t]; ok {
		return arrow
	}
	return "?"
}

// Reading is a single sensor glucose value. Comparable with ==.
type Reading struct {
	Timestamp int64 // epoch milliseconds
	Value     int   // mg/dL
	Direction Trend
}

// Time returns the reading timestamp as a time.Time.
func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// AgeSeconds is the whole number of seconds between the reading and now, floored.
func (r Reading) AgeSeconds(now time.Time) int64 {
	return ageSeconds(r.Timestamp, now)
}

func (r Reading) String() string {
	return fmt.Sprintf("Reading(%d, %d, %q)", r.Timestamp, r.Value, string(r.Direction))
}

func ageSeconds(tsMillis int64, now time.Time) int64 {
	diff := now.UnixMilli() - tsMillis
	q := diff / 1000
	if diff%1000 != 0 && diff < 0 {
		q--
	}
	return q
}
