package sarama

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikovnik/kafka-consumer/internal/logging"
)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf}))

	l.Printf("client/metadata fetching metadata for [%s] from broker %s\n", "orders", "127.0.0.1:9092")
	l.Println("consumer/broker/1", "added subscription")
	l.Print("closing")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "client/metadata fetching metadata for [orders] from broker 127.0.0.1:9092", first["message"])
	assert.Equal(t, "sarama", first["fields"].(map[string]any)["lib"])

	assert.Contains(t, lines[1], `"message":"consumer/broker/1 added subscription"`)
}

func TestStdLoggerSuppressedAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf}))
	l.Printf("noise %d", 1)
	assert.Empty(t, buf.String())
}

func TestDialerReplacesLogger(t *testing.T) {
	prev := sarama.Logger
	t.Cleanup(func() { sarama.Logger = prev })

	var first, second bytes.Buffer
	Dialer(logging.New(logging.Config{Level: logging.LevelDebug, Output: &first}))
	sarama.Logger.Print("to first")
	Dialer(logging.New(logging.Config{Level: logging.LevelDebug, Output: &second}))
	sarama.Logger.Print("to second")
	Dialer(nil)
	sarama.Logger.Print("still second")

	assert.Contains(t, first.String(), "to first")
	assert.NotContains(t, first.String(), "second")
	assert.Contains(t, second.String(), "to second")
	assert.Contains(t, second.String(), "still second")
}
