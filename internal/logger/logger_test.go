package logger

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONKeepsDate(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter("info", "json", &buf)
	l.Info().Str("run_id", "run-1").Msg("収集開始")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])

	ts, ok := entry["time"].(string)
	require.True(t, ok)
	parsed, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err, "time=%q", ts)
	assert.Equal(t, time.Now().Year(), parsed.Year())
}

func TestNew_ConsoleUsesShortTime(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter("debug", "text", &buf)
	l.Info().Msg("収集開始")

	out := buf.String()
	assert.Contains(t, out, "収集開始")
	assert.Regexp(t, regexp.MustCompile(`\d{2}:\d{2}:\d{2}\.\d{3}`), out)
	assert.NotRegexp(t, regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), out)
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter("WARN", "json", &buf)
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	assert.Equal(t, log.WarnLevel, l.Level)
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, &log.DefaultLogger, OrDefault(nil))

	l := New("info", "json")
	assert.Same(t, l, OrDefault(l))
}
