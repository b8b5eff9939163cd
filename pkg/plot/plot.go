package plot

import (
	"bytes"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/ocupoint/salogger/pkg/spectrum"
)

const (
	DefaultWidth  = 960
	DefaultHeight = 420
)

// Trace is one spectrum trace ready to draw.
type Trace struct {
	Title  string
	Freqs  []float64 // already scaled to Unit
	Unit   spectrum.Unit
	Levels []float64
}

// Renderer draws traces as PNG images.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a renderer, falling back to the default size for
// non-positive dimensions.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Renderer{Width: width, Height: height}
}

// Render writes the trace as a PNG to w.
func (r *Renderer) Render(w io.Writer, t Trace) error {
	if len(t.Freqs) != len(t.Levels) {
		return fmt.Errorf("plot: %d frequencies for %d levels", len(t.Freqs), len(t.Levels))
	}
	if len(t.Freqs) == 0 {
		return fmt.Errorf("plot: empty trace")
	}

	xs, ys := t.Freqs, t.Levels
	// go-chart needs a non-zero x range
	if len(xs) == 1 {
		xs = []float64{xs[0], xs[0] + 1}
		ys = []float64{ys[0], ys[0]}
	}

	yAxis := chart.YAxis{Name: spectrum.YLabel}
	if lo, hi := bounds(ys); lo == hi {
		// flat traces also need a non-zero y range
		yAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}

	ch := chart.Chart{
		Title:      t.Title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           t.Unit.XLabel(),
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.6g", v) },
		},
		YAxis: yAxis,
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "trace",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("1f77b4"),
					StrokeWidth: 1.5,
				},
			},
		},
	}

	return ch.Render(chart.PNG, w)
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// PNG renders the trace and returns the encoded image.
func (r *Renderer) PNG(t Trace) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
