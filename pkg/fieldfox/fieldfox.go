package fieldfox

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ocupoint/salogger/pkg/scpi"
	"github.com/ocupoint/salogger/pkg/spectrum"
)

// Transport is the command/response channel to the instrument.
type Transport interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	Close() error
}

// SweepConfig is the analyzer frequency sweep setup.
type SweepConfig struct {
	StartHz float64 `json:"start_freq"`
	StopHz  float64 `json:"stop_freq"`
	Points  int     `json:"n_points"`
}

// Analyzer drives a FieldFox in spectrum-analyzer (SA) mode.
type Analyzer struct {
	t        Transport
	identity string

	// last values read back from the instrument; NaN / -1 until first applied
	confirmed SweepConfig
}

// New wraps an open transport. Call Init before use.
func New(t Transport) *Analyzer {
	return &Analyzer{
		t: t,
		confirmed: SweepConfig{
			StartHz: math.NaN(),
			StopHz:  math.NaN(),
			Points:  -1,
		},
	}
}

// Open dials the instrument and runs Init.
func Open(ctx context.Context, address string, timeout time.Duration) (*Analyzer, error) {
	conn, err := scpi.Dial(ctx, address, timeout)
	if err != nil {
		return nil, err
	}

	a := New(conn)
	if _, err := a.Init(); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// Init clears the error queue, reads the identity string and switches the
// instrument into SA mode, waiting for operation complete.
func (a *Analyzer) Init() (string, error) {
	if err := a.t.Write("*CLS"); err != nil {
		return "", fmt.Errorf("clear status: %w", err)
	}

	identity, err := a.t.Query("*IDN?")
	if err != nil {
		return "", fmt.Errorf("failed to identify instrument: %w", err)
	}

	opc, err := a.t.Query("INST:SEL 'SA'; *OPC?")
	if err != nil {
		return "", fmt.Errorf("failed to select SA mode: %w", err)
	}
	if opc != "1" && opc != "+1" {
		return "", fmt.Errorf("select SA mode: %w: *OPC? replied %q", spectrum.ErrParse, opc)
	}

	a.identity = identity
	return identity, nil
}

// Identity returns the *IDN? string recorded by Init.
func (a *Analyzer) Identity() string {
	return a.identity
}

// ApplyIfChanged writes only the sweep fields that differ from the last
// confirmed values, reading each one back. logf receives one line per
// applied field and may be nil.
func (a *Analyzer) ApplyIfChanged(req SweepConfig, logf func(format string, args ...interface{})) (SweepConfig, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	if a.confirmed.StartHz != req.StartHz {
		v, err := a.applyFloat("SENS:FREQ:STAR", req.StartHz)
		if err != nil {
			return a.confirmed, fmt.Errorf("start frequency: %w", err)
		}
		a.confirmed.StartHz = v
		logf("Start frequency: %s", formatFloat(v))
	}

	if a.confirmed.StopHz != req.StopHz {
		v, err := a.applyFloat("SENS:FREQ:STOP", req.StopHz)
		if err != nil {
			return a.confirmed, fmt.Errorf("stop frequency: %w", err)
		}
		a.confirmed.StopHz = v
		logf("Stop frequency: %s", formatFloat(v))
	}

	if a.confirmed.Points != req.Points {
		if err := a.t.Write("SENS:SWE:POIN " + strconv.Itoa(req.Points)); err != nil {
			return a.confirmed, fmt.Errorf("points: %w", err)
		}
		resp, err := a.t.Query("SENS:SWE:POIN?")
		if err != nil {
			return a.confirmed, fmt.Errorf("points: %w", err)
		}
		n, err := spectrum.ParseInt(resp)
		if err != nil {
			return a.confirmed, fmt.Errorf("points: %w", err)
		}
		a.confirmed.Points = n
		logf("# points: %d", n)
	}

	return a.confirmed, nil
}

func (a *Analyzer) applyFloat(header string, value float64) (float64, error) {
	if err := a.t.Write(header + " " + formatFloat(value)); err != nil {
		return 0, err
	}
	resp, err := a.t.Query(header + "?")
	if err != nil {
		return 0, err
	}
	return spectrum.ParseFloat(resp)
}

// Trace fetches the current trace and checks it has points values.
func (a *Analyzer) Trace(points int) ([]float64, error) {
	resp, err := a.t.Query("TRACE:DATA?")
	if err != nil {
		return nil, fmt.Errorf("trace data: %w", err)
	}
	return spectrum.ParseTrace(resp, points)
}

// Close releases the transport.
func (a *Analyzer) Close() error {
	return a.t.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
