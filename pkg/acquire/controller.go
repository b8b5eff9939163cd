package acquire

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ocupoint/salogger/pkg/archive"
	"github.com/ocupoint/salogger/pkg/fieldfox"
	"github.com/ocupoint/salogger/pkg/metrics"
	"github.com/ocupoint/salogger/pkg/record"
	"github.com/ocupoint/salogger/pkg/scpi"
	"github.com/ocupoint/salogger/pkg/spectrum"
)

const (
	DefaultDataDir     = "measurement_data"
	DefaultEventBuffer = 256
)

// maxInterval is the longest pause, in seconds, a time.Duration can hold.
var maxInterval = time.Duration(math.MaxInt64).Seconds()

// Instrument is the analyzer surface the controller needs.
type Instrument interface {
	Identity() string
	ApplyIfChanged(req fieldfox.SweepConfig, logf func(format string, args ...interface{})) (fieldfox.SweepConfig, error)
	Trace(points int) ([]float64, error)
	Close() error
}

type DialFunc func(ctx context.Context, address string, timeout time.Duration) (Instrument, error)

// DialFieldFox opens a FieldFox over its SCPI socket and switches it to SA mode.
func DialFieldFox(ctx context.Context, address string, timeout time.Duration) (Instrument, error) {
	a, err := fieldfox.Open(ctx, address, timeout)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type Config struct {
	DataDir     string
	Timeout     time.Duration
	Parquet     bool
	Archiver    archive.Archiver
	EventBuffer int
	Dial        DialFunc
	// Start is the reference for log time stamps, normally process start.
	Start time.Time
}

// Request holds the run inputs as typed by the operator.
type Request struct {
	Site      string `json:"site"`
	StartFreq string `json:"start_freq"`
	StopFreq  string `json:"stop_freq"`
	Points    string `json:"n_points"`
	Samples   string `json:"n_samples"`
	Interval  string `json:"interval"`
}

type Params struct {
	Site     string
	Sweep    fieldfox.SweepConfig
	Samples  int
	Interval time.Duration
}

// Parse validates the inputs. Every failure wraps ErrInvalidInput.
func (r Request) Parse() (Params, error) {
	var p Params

	p.Site = strings.TrimSpace(r.Site)
	if p.Site == "" || p.Site == "." || p.Site == ".." || strings.ContainsAny(p.Site, `/\`) {
		return p, fmt.Errorf("%w: site name %q", ErrInvalidInput, r.Site)
	}

	var err error
	if p.Sweep.StartHz, err = parseFloat("start frequency", r.StartFreq); err != nil {
		return p, err
	}
	if p.Sweep.StopHz, err = parseFloat("stop frequency", r.StopFreq); err != nil {
		return p, err
	}
	if p.Sweep.Points, err = parseInt("# points", r.Points); err != nil {
		return p, err
	}
	if p.Samples, err = parseInt("# samples", r.Samples); err != nil {
		return p, err
	}

	interval, err := parseFloat("interval", r.Interval)
	if err != nil {
		return p, err
	}
	if interval < 0 {
		return p, fmt.Errorf("%w: interval must be >= 0, got %v", ErrInvalidInput, interval)
	}
	if interval > maxInterval {
		return p, fmt.Errorf("%w: interval must be <= %.0f s, got %v", ErrInvalidInput, maxInterval, interval)
	}
	p.Interval = time.Duration(interval * float64(time.Second))

	return p, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidInput, name, s)
	}
	return v, nil
}

func parseInt(name, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrInvalidInput, name, s)
	}
	if v < 1 {
		return 0, fmt.Errorf("%w: %s must be >= 1, got %d", ErrInvalidInput, name, v)
	}
	return v, nil
}

// MeasurementRun is one acquisition of Samples traces into Path.
type MeasurementRun struct {
	ID       uuid.UUID
	Site     string
	Sweep    fieldfox.SweepConfig
	Samples  int
	Interval time.Duration
	Path     string

	inst Instrument
}

// Controller owns the instrument connection and runs one measurement at a
// time. Everything the UI needs to know is published on Events.
type Controller struct {
	cfg    Config
	log    *Logger
	events chan Event

	closeOnce sync.Once
	done      chan struct{}

	mu         sync.Mutex
	inst       Instrument
	address    string
	connecting bool
	running    bool
	run        *MeasurementRun
	progress   int
}

func New(cfg Config) *Controller {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = scpi.DefaultTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Dial == nil {
		cfg.Dial = DialFieldFox
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}

	c := &Controller{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	c.log = NewLogger(cfg.Start, c.emit)
	return c
}

// Events must be drained by exactly one consumer; emitters block when the
// buffer is full.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) Logger() *Logger {
	return c.log
}

func (c *Controller) DataDir() string {
	return c.cfg.DataDir
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		Connected:      c.inst != nil,
		Address:        c.address,
		ConnectLabel:   "Connect",
		ConnectEnabled: c.inst == nil && !c.connecting,
		Running:        c.running,
		StartLabel:     "Start",
		StartEnabled:   c.inst != nil && !c.running,
		Progress:       c.progress,
	}
	if c.inst != nil {
		s.ConnectLabel = "Connected"
		s.Identity = c.inst.Identity()
	}
	if c.running {
		s.StartLabel = "Wait"
		s.RunID = c.run.ID.String()
		s.Site = c.run.Site
		s.Total = c.run.Samples
	}
	return s
}

// Connect opens the instrument at address. There is no retry. A connection
// lives until Close or until a run fails on the transport.
func (c *Controller) Connect(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)

	c.mu.Lock()
	if c.inst != nil || c.connecting {
		c.mu.Unlock()
		c.log.Errorf("ERROR: Already connected")
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.mu.Unlock()
	c.emitState()

	c.log.Infof("Trying to connect %s", address)
	inst, err := c.cfg.Dial(ctx, address, c.cfg.Timeout)

	c.mu.Lock()
	c.connecting = false
	if err == nil {
		c.inst = inst
		c.address = address
	}
	c.mu.Unlock()

	if err != nil {
		metrics.RecordError("connect")
		log.Warn().Err(err).Str("address", address).Msg("connect failed")
		c.log.Errorf("ERROR: Unable to connect")
		c.emitState()
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.log.Infof("Successfully connected")
	c.log.Infof("Device: %s", inst.Identity())
	c.emitState()
	return nil
}

// Start checks the preconditions and, if they hold, runs the measurement on
// its own goroutine. The outcome arrives as an EventRunDone.
func (c *Controller) Start(ctx context.Context, req Request) (*MeasurementRun, error) {
	run, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	go c.execute(ctx, run)
	return run, nil
}

// Run is Start without the goroutine.
func (c *Controller) Run(ctx context.Context, req Request) (RunSummary, error) {
	run, err := c.prepare(req)
	if err != nil {
		return RunSummary{}, err
	}
	return c.execute(ctx, run)
}

func (c *Controller) prepare(req Request) (*MeasurementRun, error) {
	p, err := req.Parse()
	if err != nil {
		metrics.RecordError("invalid_input")
		c.log.Errorf("ERROR: %v", err)
		return nil, err
	}

	path := record.Path(c.cfg.DataDir, p.Site)

	c.mu.Lock()
	var msg string
	switch {
	case c.running:
		err, msg = ErrBusy, "ERROR: Measurement already running"
	case record.Exists(path, record.Options{Parquet: c.cfg.Parquet}):
		err = fmt.Errorf("%w: %s", ErrFileExists, path)
		msg = "ERROR: File for " + p.Site + " already exists"
	case c.inst == nil:
		err, msg = ErrNotConnected, "ERROR: Not connected to the device"
	}
	if err != nil {
		c.mu.Unlock()
		metrics.RecordError("precondition")
		c.log.Errorf("%s", msg)
		return nil, err
	}

	run := &MeasurementRun{
		ID:       uuid.New(),
		Site:     p.Site,
		Sweep:    p.Sweep,
		Samples:  p.Samples,
		Interval: p.Interval,
		Path:     path,
		inst:     c.inst,
	}
	c.running = true
	c.run = run
	c.progress = 0
	c.mu.Unlock()

	return run, nil
}

func (c *Controller) execute(ctx context.Context, run *MeasurementRun) (RunSummary, error) {
	metrics.SetRunActive(true)
	c.emitState()

	began := time.Now()
	summary := RunSummary{RunID: run.ID.String(), Site: run.Site, Path: run.Path}
	err := c.measure(ctx, run, &summary)
	summary.Duration = time.Since(began).Seconds()

	if err != nil {
		kind := errorKind(err)
		metrics.RecordError(kind)
		if kind == "canceled" {
			metrics.RecordRun("canceled")
		} else {
			metrics.RecordRun("failed")
		}
		summary.Error = err.Error()
		c.log.Errorf("ERROR: %v", err)
		if lostConnection(err) {
			c.disconnect(run.inst)
		}
	} else {
		metrics.RecordRun("completed")
		summary.ArchiveTo = c.archive(ctx, run)
	}

	c.mu.Lock()
	c.running = false
	c.run = nil
	c.mu.Unlock()
	metrics.SetRunActive(false)

	c.emit(Event{Type: EventRunDone, Time: time.Now(), Run: &summary})
	c.emitState()
	return summary, err
}

func (c *Controller) measure(ctx context.Context, run *MeasurementRun, summary *RunSummary) error {
	sweep, err := run.inst.ApplyIfChanged(run.Sweep, c.log.Infof)
	if err != nil {
		return fmt.Errorf("apply sweep: %w", err)
	}

	c.log.Infof("--Start measurement--")

	start := time.Now()
	w, err := record.Create(run.Path, record.Header{
		RunID:    run.ID.String(),
		Site:     run.Site,
		Created:  start,
		StartHz:  sweep.StartHz,
		StopHz:   sweep.StopHz,
		Points:   sweep.Points,
		Samples:  run.Samples,
		Interval: run.Interval,
		Start:    start,
	}, record.Options{Parquet: c.cfg.Parquet})
	if err != nil {
		if errors.Is(err, record.ErrExists) {
			return fmt.Errorf("%w: %s", ErrFileExists, run.Path)
		}
		return err
	}

	err = c.sample(ctx, run, sweep, w, start, summary)
	summary.Rows = w.Rows()
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close %s: %w", run.Path, cerr)
	}
	if err != nil {
		return err
	}

	c.log.Infof("%s created", run.Path)
	return nil
}

func (c *Controller) sample(ctx context.Context, run *MeasurementRun, sweep fieldfox.SweepConfig, w *record.Writer, start time.Time, summary *RunSummary) error {
	freqs, unit := spectrum.ScaledAxis(sweep.StartHz, sweep.StopHz, sweep.Points)

	for i := 0; i < run.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		begin := time.Now()
		values, err := run.inst.Trace(sweep.Points)
		if err != nil {
			return fmt.Errorf("sample %d/%d: %w", i+1, run.Samples, err)
		}
		peak := spectrum.Peak(values)
		metrics.ObserveTrace(time.Since(begin), peak)
		summary.Peaks = append(summary.Peaks, peak)

		c.log.Infof("%d/%d, max: %.2f dbm", i+1, run.Samples, peak)

		elapsed := begin.Sub(start)
		if err := w.WriteSample(elapsed, values); err != nil {
			return fmt.Errorf("sample %d/%d: %w", i+1, run.Samples, err)
		}

		c.mu.Lock()
		c.progress = i + 1
		c.mu.Unlock()

		c.emit(Event{Type: EventTrace, Time: time.Now(), Trace: &TraceFrame{
			RunID:   run.ID.String(),
			Index:   i + 1,
			Total:   run.Samples,
			Elapsed: elapsed.Seconds(),
			Peak:    peak,
			Unit:    unit.Name,
			XLabel:  unit.XLabel(),
			YLabel:  spectrum.YLabel,
			Freqs:   freqs,
			Levels:  values,
		}})

		// No catch-up: a slow iteration simply shortens the next wait.
		if wait := run.Interval - time.Since(begin); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

func (c *Controller) archive(ctx context.Context, run *MeasurementRun) string {
	if c.cfg.Archiver == nil {
		return ""
	}

	paths := []string{run.Path}
	if c.cfg.Parquet {
		paths = append(paths, record.ParquetPath(run.Path))
	}

	var first string
	for _, p := range paths {
		key, err := c.cfg.Archiver.Upload(ctx, p)
		if err != nil {
			metrics.RecordError("archive")
			c.log.Errorf("ERROR: archive %s: %v", p, err)
			continue
		}
		if first == "" {
			first = key
		}
		c.log.Infof("%s archived as %s", p, key)
	}
	return first
}

// lostConnection reports whether err left the session unusable.
func lostConnection(err error) bool {
	return errors.Is(err, scpi.ErrTransport) || errors.Is(err, scpi.ErrNotConnected)
}

// disconnect drops inst so that Connect is enabled again. The next Connect
// starts a fresh session with no confirmed sweep.
func (c *Controller) disconnect(inst Instrument) {
	c.mu.Lock()
	if c.inst == inst {
		c.inst = nil
	}
	c.mu.Unlock()

	if err := inst.Close(); err != nil {
		log.Debug().Err(err).Msg("close after transport failure")
	}
	c.log.Errorf("ERROR: Connection to the device lost")
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, spectrum.ErrTraceLength):
		return "trace_length"
	case errors.Is(err, spectrum.ErrParse):
		return "parse"
	case errors.Is(err, ErrFileExists):
		return "precondition"
	case lostConnection(err):
		return "transport"
	default:
		return "instrument"
	}
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) emitState() {
	s := c.State()
	c.emit(Event{Type: EventState, Time: time.Now(), State: &s})
}

// Close drops the instrument connection and stops event delivery.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		inst := c.inst
		c.inst = nil
		c.mu.Unlock()

		if inst != nil {
			err = inst.Close()
		}
	})
	return err
}
