// Package spectrum holds the trace math shared by the acquisition loop and
// the plot: parsing analyzer responses, the frequency axis and display units.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrParse       = errors.New("malformed numeric response")
	ErrTraceLength = errors.New("trace length mismatch")
)

// Unit is a frequency display unit.
type Unit struct {
	Name  string
	Scale float64
}

var (
	Hz  = Unit{Name: "Hz", Scale: 1}
	KHz = Unit{Name: "kHz", Scale: 1e3}
	MHz = Unit{Name: "MHz", Scale: 1e6}
	GHz = Unit{Name: "GHz", Scale: 1e9}
)

// XLabel is the plot x-axis label for the unit.
func (u Unit) XLabel() string {
	return fmt.Sprintf("Freq [%s]", u.Name)
}

// YLabel is the plot y-axis label; trace levels are always dBm.
const YLabel = "Level [dBm]"

// UnitFor picks the display unit from the start frequency.
func UnitFor(startHz float64) Unit {
	switch {
	case startHz > 1e9:
		return GHz
	case startHz > 1e6:
		return MHz
	case startHz > 1e3:
		return KHz
	default:
		return Hz
	}
}

// Axis returns points evenly spaced frequencies from start to stop inclusive.
func Axis(startHz, stopHz float64, points int) []float64 {
	if points <= 0 {
		return nil
	}
	if points == 1 {
		return []float64{startHz}
	}

	step := (stopHz - startHz) / float64(points-1)
	axis := make([]float64, points)
	for i := range axis {
		axis[i] = startHz + float64(i)*step
	}
	axis[points-1] = stopHz
	return axis
}

// ScaledAxis returns the axis in the unit chosen for startHz.
func ScaledAxis(startHz, stopHz float64, points int) ([]float64, Unit) {
	unit := UnitFor(startHz)
	axis := Axis(startHz, stopHz, points)
	for i := range axis {
		axis[i] /= unit.Scale
	}
	return axis, unit
}

// ParseFloat parses a single numeric instrument response. NaN and infinities
// are not measurements and are rejected.
func ParseFloat(resp string) (float64, error) {
	v, ok := parseFinite(resp)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrParse, resp)
	}
	return v, nil
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseInt parses an integer instrument response. Instruments may echo
// integers in float notation (e.g. "+4.01000000E+002").
func ParseInt(resp string) (int, error) {
	s := strings.TrimSpace(resp)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, ok := parseFinite(s)
	if !ok || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q", ErrParse, resp)
	}
	return int(v), nil
}

// ParseTrace parses a comma separated trace into exactly points values.
func ParseTrace(resp string, points int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(resp), ",")
	if len(fields) != points {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrTraceLength, len(fields), points)
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, ok := parseFinite(f)
		if !ok {
			return nil, fmt.Errorf("%w: field %d %q", ErrParse, i, f)
		}
		values[i] = v
	}
	return values, nil
}

// Peak returns the maximum level of a trace.
func Peak(values []float64) float64 {
	peak := math.Inf(-1)
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	return peak
}
