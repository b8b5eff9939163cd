package fieldfox

import (
	"bufio"
	"math"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SimulatorIdentity is the *IDN? reply of the simulator.
const SimulatorIdentity = "Keysight Technologies,N9918A,SIM00001,A.11.55"

// Simulator is a TCP stand-in for a FieldFox in SA mode. It answers the
// SCPI subset used by Analyzer and synthesizes a noise floor with a single
// carrier in the middle of the span.
type Simulator struct {
	mu       sync.Mutex
	startHz  float64
	stopHz   float64
	points   int
	mode     string
	commands []string
	rng      *rand.Rand

	// TraceDelay is added before each TRACE:DATA? reply.
	TraceDelay time.Duration
	// TraceOverride, when set, replaces the synthesized trace reply.
	TraceOverride func(points int) string
}

// NewSimulator returns a simulator with the instrument's power-on sweep.
func NewSimulator() *Simulator {
	return &Simulator{
		startHz: 2e9,
		stopHz:  3e9,
		points:  401,
		mode:    "NA",
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ListenAndServe listens on addr and serves connections until the listener
// fails. The bound address is sent on ready once listening.
func (s *Simulator) ListenAndServe(addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready <- ln.Addr().String()
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("[SIM] FieldFox simulator listening")
	return s.Serve(ln)
}

// Serve accepts connections on ln, one goroutine per connection.
func (s *Simulator) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

// Commands returns every command received so far, compound commands split.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Setters returns the received commands that are not queries.
func (s *Simulator) Setters() []string {
	var out []string
	for _, c := range s.Commands() {
		if !strings.HasSuffix(c, "?") {
			out = append(out, c)
		}
	}
	return out
}

// Mode returns the selected instrument mode.
func (s *Simulator) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Simulator) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		var replies []string
		for _, cmd := range strings.Split(line, ";") {
			cmd = strings.TrimSpace(cmd)
			if cmd == "" {
				continue
			}
			if reply, ok := s.execute(cmd); ok {
				replies = append(replies, reply)
			}
		}
		if len(replies) == 0 {
			continue
		}

		w.WriteString(strings.Join(replies, ";") + "\n")
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// execute runs one command and returns the reply for queries.
func (s *Simulator) execute(cmd string) (string, bool) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	header, arg, _ := strings.Cut(cmd, " ")
	header = strings.ToUpper(header)
	arg = strings.TrimSpace(arg)

	switch header {
	case "*CLS":
		return "", false
	case "*IDN?":
		return SimulatorIdentity, true
	case "*OPC?":
		return "1", true
	case "INST:SEL":
		s.mu.Lock()
		s.mode = strings.Trim(arg, "'\"")
		s.mu.Unlock()
		return "", false
	case "SENS:FREQ:STAR":
		s.setFloat(&s.startHz, arg)
		return "", false
	case "SENS:FREQ:STAR?":
		return s.getFloat(&s.startHz), true
	case "SENS:FREQ:STOP":
		s.setFloat(&s.stopHz, arg)
		return "", false
	case "SENS:FREQ:STOP?":
		return s.getFloat(&s.stopHz), true
	case "SENS:SWE:POIN":
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			s.mu.Lock()
			s.points = n
			s.mu.Unlock()
		}
		return "", false
	case "SENS:SWE:POIN?":
		s.mu.Lock()
		defer s.mu.Unlock()
		return strconv.Itoa(s.points), true
	case "TRACE:DATA?":
		return s.trace(), true
	}

	if strings.HasSuffix(header, "?") {
		return "0", true
	}
	return "", false
}

func (s *Simulator) setFloat(dst *float64, arg string) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return
	}
	s.mu.Lock()
	*dst = v
	s.mu.Unlock()
}

func (s *Simulator) getFloat(src *float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatFloat(*src, 'E', 11, 64)
}

func (s *Simulator) trace() string {
	if s.TraceDelay > 0 {
		time.Sleep(s.TraceDelay)
	}

	// The override may block; other connections keep being served.
	s.mu.Lock()
	override, points := s.TraceOverride, s.points
	s.mu.Unlock()
	if override != nil {
		return override(points)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const (
		noiseFloor = -92.0
		carrier    = -23.5
		widthBins  = 3.0
	)

	center := float64(s.points-1) / 2
	values := make([]string, s.points)
	for i := range values {
		d := (float64(i) - center) / widthBins
		level := noiseFloor + (s.rng.Float64()-s.rng.Float64())*2
		level = math.Max(level, carrier+(noiseFloor-carrier)*(1-math.Exp(-d*d)))
		values[i] = strconv.FormatFloat(level, 'f', 3, 64)
	}
	return strings.Join(values, ",")
}
