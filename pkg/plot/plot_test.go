package plot

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocupoint/salogger/pkg/spectrum"
)

func TestRenderGHzTrace(t *testing.T) {
	freqs, unit := spectrum.ScaledAxis(9.9995e9, 10.0005e9, 401)
	levels := make([]float64, len(freqs))
	for i := range levels {
		levels[i] = -90
	}
	levels[200] = -23.5

	r := NewRenderer(640, 320)
	data, err := r.PNG(Trace{Title: "1/2, max: -23.50 dBm", Freqs: freqs, Unit: unit, Levels: levels})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 320, img.Bounds().Dy())
}

func TestRenderSinglePoint(t *testing.T) {
	r := NewRenderer(0, 0)
	assert.Equal(t, DefaultWidth, r.Width)

	_, err := r.PNG(Trace{Freqs: []float64{1.5}, Unit: spectrum.GHz, Levels: []float64{-40}})
	assert.NoError(t, err)
}

func TestRenderMismatch(t *testing.T) {
	r := NewRenderer(0, 0)
	_, err := r.PNG(Trace{Freqs: []float64{1, 2}, Levels: []float64{-40}})
	assert.Error(t, err)

	_, err = r.PNG(Trace{})
	assert.Error(t, err)
}

func TestRenderFlatTrace(t *testing.T) {
	freqs, unit := spectrum.ScaledAxis(1e6, 2e6, 11)
	levels := make([]float64, 11)

	_, err := NewRenderer(0, 0).PNG(Trace{Freqs: freqs, Unit: unit, Levels: levels})
	assert.NoError(t, err)
}
