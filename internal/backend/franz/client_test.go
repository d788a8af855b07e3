package franz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"

	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
	"github.com/fikovnik/kafka-consumer/internal/testbroker"
)

func seeded(t *testing.T, codec testbroker.Compression) *testbroker.Broker {
	t.Helper()
	b, err := testbroker.Start(testbroker.Config{Compression: codec})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	require.NoError(t, b.CreateTopic("orders", 2))
	for i := 0; i < 42; i++ {
		_, err := b.AppendValues("orders", 0, []byte("filler"))
		require.NoError(t, err)
	}
	off, err := b.AppendValues("orders", 0, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(42), off)

	_, err = b.Append("orders", 0, testbroker.Message{Key: []byte("deleted")})
	require.NoError(t, err)
	_, err = b.Append("orders", 0, testbroker.Message{Value: []byte{}})
	require.NoError(t, err)
	return b
}

func fetcher(b *testbroker.Broker, validate bool) *fetch.Fetcher {
	return fetch.New(fetch.ConnectionConfig{
		Brokers:     []string{b.Addr()},
		GroupID:     "group",
		ClientID:    "kafka-consumer-test",
		DialTimeout: 2 * time.Second,
	}, fetch.Options{Dialer: Dialer(nil), ValidateOffset: validate})
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchRecordEveryCodec(t *testing.T) {
	for _, codec := range testbroker.Compressions() {
		t.Run(codec.String(), func(t *testing.T) {
			b := seeded(t, codec)
			got, err := fetcher(b, false).Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: 42})
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got)
		})
	}
}

func TestFetchTombstone(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	_, err := fetcher(b, false).Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: 43})
	require.Error(t, err)
	assert.Equal(t, fetch.KindEmptyPayload, fetch.KindOf(err))
}

func TestFetchZeroLengthValue(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	got, err := fetcher(b, false).Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: 44})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchUnknownPartitionAndTopic(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	f := fetcher(b, false)

	_, err := f.Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 2, Offset: 0})
	require.Error(t, err)
	assert.Equal(t, fetch.KindAssignment, fetch.KindOf(err))
	assert.ErrorIs(t, err, fetch.ErrUnknownPartition)

	_, err = f.Fetch(testContext(t), fetch.Location{Topic: "missing", Partition: 0, Offset: 0})
	require.Error(t, err)
	assert.Equal(t, fetch.KindAssignment, fetch.KindOf(err))
	assert.True(t, errors.Is(err, kerr.UnknownTopicOrPartition), "got %v", err)
}

func TestFetchValidatedOffsets(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	require.NoError(t, b.DeleteRecordsBefore("orders", 0, 10))
	f := fetcher(b, true)

	got, err := f.Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: 42})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	for _, off := range []int64{5, 45, 1000} {
		_, err := f.Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: off})
		require.Error(t, err, "offset %d", off)
		assert.ErrorIs(t, err, fetch.ErrOffsetOutOfRange)
	}
}

func TestFetchPollError(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	require.NoError(t, b.FailFetches("orders", 0, kerr.TopicAuthorizationFailed.Code))

	_, err := fetcher(b, false).Fetch(testContext(t), fetch.Location{Topic: "orders", Partition: 0, Offset: 42})
	require.Error(t, err)
	assert.Equal(t, fetch.KindPoll, fetch.KindOf(err))
	assert.ErrorIs(t, err, kerr.TopicAuthorizationFailed)
}

func TestFetchCancelledWhileWaiting(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	_, err := fetcher(b, false).Fetch(ctx, fetch.Location{Topic: "orders", Partition: 1, Offset: 0})
	require.Error(t, err)
	assert.Equal(t, fetch.KindPoll, fetch.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchUnreachableBroker(t *testing.T) {
	b, err := testbroker.Start(testbroker.Config{})
	require.NoError(t, err)
	addr := b.Addr()
	require.NoError(t, b.Close())

	f := fetch.New(fetch.ConnectionConfig{Brokers: []string{addr}, DialTimeout: 200 * time.Millisecond},
		fetch.Options{Dialer: Dialer(nil)})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = f.Fetch(ctx, fetch.Location{Topic: "orders", Partition: 0, Offset: 0})
	require.Error(t, err)
	assert.Equal(t, fetch.KindConnection, fetch.KindOf(err))
}

func TestDialRequiresBrokers(t *testing.T) {
	_, err := Dial(context.Background(), fetch.ConnectionConfig{}, nil)
	assert.Error(t, err)
}

func TestAssignTwice(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	c, err := Dial(context.Background(), fetch.ConnectionConfig{Brokers: []string{b.Addr()}}, logging.Discard())
	require.NoError(t, err)
	defer c.Close()

	loc := fetch.Location{Topic: "orders", Partition: 0, Offset: 42}
	require.NoError(t, c.Assign(context.Background(), loc))
	assert.ErrorIs(t, c.Assign(context.Background(), loc), fetch.ErrAlreadyAssigned)
}

func TestPollBeforeAssign(t *testing.T) {
	b := seeded(t, testbroker.CompressionNone)
	c, err := Dial(context.Background(), fetch.ConnectionConfig{Brokers: []string{b.Addr()}}, nil)
	require.NoError(t, err)
	defer c.Close()

	ev := c.Poll(context.Background())
	require.NotNil(t, ev)
	assert.Error(t, ev.Err)
}
