package franz

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fikovnik/kafka-consumer/internal/logging"
)

func TestLoggerLevel(t *testing.T) {
	tests := []struct {
		level logging.Level
		want  kgo.LogLevel
	}{
		{logging.LevelDebug, kgo.LogLevelDebug},
		{logging.LevelInfo, kgo.LogLevelInfo},
		{logging.LevelWarn, kgo.LogLevelWarn},
		{logging.LevelError, kgo.LogLevelError},
		{logging.LevelError + 1, kgo.LogLevelNone},
	}
	for _, tc := range tests {
		t.Run(tc.level.String(), func(t *testing.T) {
			l := newLogger(logging.New(logging.Config{Level: tc.level}))
			assert.Equal(t, tc.want, l.Level())
		})
	}
}

func TestLoggerForwardsKeyvals(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf}))

	l.Log(kgo.LogLevelWarn, "metadata update failed", "broker", 1, "err", errors.New("refused"), "dangling")

	var entry logging.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "metadata update failed", entry.Message)
	assert.Equal(t, "franz-go", entry.Fields["lib"])
	assert.Equal(t, float64(1), entry.Fields["broker"])
	assert.Equal(t, "refused", entry.Fields["err"])
	assert.Equal(t, "dangling", entry.Fields["extra"])
}
