package acquire

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// FormatElapsed renders d as MM:SS, or H:MM:SS once past one hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Logger stamps messages with the time since the process started, echoes
// them to the console and hands them to emit.
type Logger struct {
	start time.Time
	now   func() time.Time
	emit  func(Event)
}

func NewLogger(start time.Time, emit func(Event)) *Logger {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Logger{start: start, now: time.Now, emit: emit}
}

func (l *Logger) Log(level Level, msg string) {
	now := l.now()
	line := FormatElapsed(now.Sub(l.start)) + " - " + msg

	if level == LevelError {
		log.Error().Msg(line)
	} else {
		log.Info().Msg(line)
	}

	l.emit(Event{Type: EventLog, Time: now, Log: &LogLine{Level: level, Text: line}})
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Log(LevelError, fmt.Sprintf(format, args...))
}
