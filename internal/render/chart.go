// Package render draws the current glucose window as a PNG chart.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
)

// ErrNotEnoughData is returned when the window holds fewer than two readings.
var ErrNotEnoughData = errors.New("render: at least two readings are required")

// WindowPNG renders the window readings with the alert thresholds as
// reference lines.
func WindowPNG(w glucose.Window, t gate.Thresholds, loc *time.Location) ([]byte, error) {
	readings := w.Readings()
	if len(readings) < 2 {
		return nil, ErrNotEnoughData
	}
	if loc == nil {
		loc = time.UTC
	}

	x := make([]time.Time, len(readings))
	y := make([]float64, len(readings))
	for i, r := range readings {
		x[i] = r.Time()
		y[i] = float64(r.Value)
	}
	bounds := []time.Time{x[0], x[len(x)-1]}

	timeFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return time.Unix(0, int64(f)).In(loc).Format("15:04")
		}
		return ""
	}
	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}

	graph := chart.Chart{
		Width:  960,
		Height: 540,
		XAxis: chart.XAxis{
			ValueFormatter: timeFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "mg/dL",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Glicemia",
				XValues: x,
				YValues: y,
			},
			chart.TimeSeries{
				Name:    fmt.Sprintf("Limite alto (%d)", t.High),
				XValues: bounds,
				YValues: []float64{float64(t.High), float64(t.High)},
				Style: chart.Style{
					StrokeColor:     chart.ColorRed,
					StrokeDashArray: []float64{5, 5},
				},
			},
			chart.TimeSeries{
				Name:    fmt.Sprintf("Limite baixo (%d)", t.Low),
				XValues: bounds,
				YValues: []float64{float64(t.Low), float64(t.Low)},
				Style: chart.Style{
					StrokeColor:     chart.ColorOrange,
					StrokeDashArray: []float64{5, 5},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes a PNG payload to path, creating parent directories.
func WriteFile(path string, png []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
