package main

import (
	"sync"

	"github.com/ocupoint/salogger/pkg/acquire"
)

const scrollbackLines = 1000

// uiState is what a browser that joins late needs to catch up: the log
// scrollback, the last plot and the last finished run.
type uiState struct {
	mu sync.RWMutex

	log       []acquire.LogLine
	lastTrace *acquire.TraceFrame
	lastPlot  []byte
	lastRun   *acquire.RunSummary
}

func (s *uiState) apply(ev acquire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case acquire.EventLog:
		s.log = append(s.log, *ev.Log)
		if over := len(s.log) - scrollbackLines; over > 0 {
			s.log = append(s.log[:0:0], s.log[over:]...)
		}
	case acquire.EventTrace:
		s.lastTrace = ev.Trace
	case acquire.EventRunDone:
		s.lastRun = ev.Run
	}
}

func (s *uiState) setPlot(png []byte) {
	s.mu.Lock()
	s.lastPlot = png
	s.mu.Unlock()
}

func (s *uiState) Log() []acquire.LogLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]acquire.LogLine, len(s.log))
	copy(out, s.log)
	return out
}

func (s *uiState) Plot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPlot
}

func (s *uiState) LastRun() *acquire.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}
