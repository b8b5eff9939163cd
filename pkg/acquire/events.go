package acquire

import "time"

type EventType string

const (
	EventLog     EventType = "log"
	EventState   EventType = "state"
	EventTrace   EventType = "trace"
	EventRunDone EventType = "run_done"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Event is a message from the controller to whoever renders the UI.
// Exactly one of the payload pointers is set, matching Type.
type Event struct {
	Type  EventType   `json:"type"`
	Time  time.Time   `json:"time"`
	Log   *LogLine    `json:"log,omitempty"`
	State *State      `json:"state,omitempty"`
	Trace *TraceFrame `json:"trace,omitempty"`
	Run   *RunSummary `json:"run,omitempty"`
}

type LogLine struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// State is a snapshot of what the UI controls should show.
type State struct {
	Connected      bool   `json:"connected"`
	Address        string `json:"address,omitempty"`
	Identity       string `json:"identity,omitempty"`
	ConnectLabel   string `json:"connect_label"`
	ConnectEnabled bool   `json:"connect_enabled"`
	Running        bool   `json:"running"`
	StartLabel     string `json:"start_label"`
	StartEnabled   bool   `json:"start_enabled"`
	RunID          string `json:"run_id,omitempty"`
	Site           string `json:"site,omitempty"`
	Progress       int    `json:"progress"`
	Total          int    `json:"total"`
}

// TraceFrame carries one sample plus the axis to draw it against.
type TraceFrame struct {
	RunID   string    `json:"run_id"`
	Index   int       `json:"index"`
	Total   int       `json:"total"`
	Elapsed float64   `json:"elapsed_s"`
	Peak    float64   `json:"peak_dbm"`
	Unit    string    `json:"unit"`
	XLabel  string    `json:"x_label"`
	YLabel  string    `json:"y_label"`
	Freqs   []float64 `json:"freqs"`
	Levels  []float64 `json:"levels"`
}

// RunSummary is emitted once per run, successful or not.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Site      string    `json:"site"`
	Path      string    `json:"path"`
	Rows      int       `json:"rows"`
	Peaks     []float64 `json:"peaks"`
	Duration  float64   `json:"duration_s"`
	ArchiveTo string    `json:"archive_key,omitempty"`
	Error     string    `json:"error,omitempty"`
}
