package spectrum

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaledAxisGHz(t *testing.T) {
	start, stop := 9.9995e9, 10.0005e9

	axis, unit := ScaledAxis(start, stop, 401)
	require.Len(t, axis, 401)
	assert.Equal(t, GHz, unit)
	assert.Equal(t, "Freq [GHz]", unit.XLabel())

	raw := Axis(start, stop, 401)
	assert.Equal(t, start, raw[0])
	assert.Equal(t, stop, raw[400])

	step := (stop - start) / 400
	for i := 1; i < len(raw); i++ {
		assert.InDelta(t, step, raw[i]-raw[i-1], 1e-3)
		assert.InDelta(t, raw[i]/1e9, axis[i], 1e-12)
	}
}

func TestUnitFor(t *testing.T) {
	tests := []struct {
		start float64
		want  Unit
	}{
		{500, Hz},
		{1e3, Hz},
		{1e3 + 1, KHz},
		{2.5e6, MHz},
		{1e9, MHz},
		{9.9995e9, GHz},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UnitFor(tt.start), "start=%g", tt.start)
	}
}

func TestAxisEdgeCases(t *testing.T) {
	assert.Nil(t, Axis(1, 2, 0))
	assert.Equal(t, []float64{1e6}, Axis(1e6, 2e6, 1))
	assert.Equal(t, []float64{1e6, 2e6}, Axis(1e6, 2e6, 2))
}

func TestParseTrace(t *testing.T) {
	values, err := ParseTrace("-85.1,-84.9E+00, -20.5 ,-90\n", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{-85.1, -84.9, -20.5, -90}, values)
	assert.Equal(t, -20.5, Peak(values))
}

func TestParseTraceErrors(t *testing.T) {
	_, err := ParseTrace("-85.1,abc,-20", 3)
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseTrace("-85.1,-20", 3)
	assert.ErrorIs(t, err, ErrTraceLength)

	_, err = ParseTrace(strings.Repeat("-1,", 401)+"-1", 401)
	assert.ErrorIs(t, err, ErrTraceLength)

	for _, resp := range []string{"NaN,NaN,-Inf", "-80,+Inf,-80", "-80,-80,infinity"} {
		_, err = ParseTrace(resp, 3)
		assert.ErrorIs(t, err, ErrParse, resp)
	}
}

func TestParseScalars(t *testing.T) {
	f, err := ParseFloat("+9.99950000000E+009\n")
	require.NoError(t, err)
	assert.Equal(t, 9.9995e9, f)

	n, err := ParseInt("401")
	require.NoError(t, err)
	assert.Equal(t, 401, n)

	n, err = ParseInt("+4.01000000E+002")
	require.NoError(t, err)
	assert.Equal(t, 401, n)

	_, err = ParseInt("40.5")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseFloat("ERR")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseFloat("NaN")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseFloat("-Inf")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseInt("+Inf")
	assert.ErrorIs(t, err, ErrParse)
}

func TestPeakEmpty(t *testing.T) {
	assert.True(t, math.IsInf(Peak(nil), -1))
}
