package acquire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{999 * time.Millisecond, "00:00"},
		{65 * time.Second, "01:05"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour, "1:00:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{12 * time.Hour, "12:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), tt.in.String())
	}
}

func TestLoggerEmits(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var got []Event
	l := NewLogger(start, func(ev Event) { got = append(got, ev) })
	l.now = func() time.Time { return start.Add(65 * time.Second) }

	l.Infof("Device: %s", "N9918A")
	l.Errorf("ERROR: Unable to connect")

	require.Len(t, got, 2)
	assert.Equal(t, EventLog, got[0].Type)
	assert.Equal(t, LogLine{Level: LevelInfo, Text: "01:05 - Device: N9918A"}, *got[0].Log)
	assert.Equal(t, LogLine{Level: LevelError, Text: "01:05 - ERROR: Unable to connect"}, *got[1].Log)
}

func TestLoggerWithoutSink(t *testing.T) {
	l := NewLogger(time.Now(), nil)
	assert.NotPanics(t, func() { l.Infof("hello") })
}
