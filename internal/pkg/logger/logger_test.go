package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"trailing@", "***@***"},
		{"", "***@***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactEmail(tt.in), "input %q", tt.in)
	}
}

func TestLoggerRedactsEmailFields(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: DEBUG, redactPII: true, out: &buf}

	l.Info("delivery attempt", "recipient_email", "someone@example.com", "campaign_id", "c1")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "so***@example.com", entry["recipient_email"])
	assert.Equal(t, "c1", entry["campaign_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLoggerRedactsEmbeddedEmails(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: DEBUG, redactPII: true, out: &buf}

	l.Error("send failed", "error", "550 mailbox jane.roe@example.org unavailable")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "550 mailbox ja***@example.org unavailable", entry["error"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: WARN, out: &buf}

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestComponentStamp(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: DEBUG, component: "scheduler", out: &buf}

	l.Info("tick")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
