// Package fetch retrieves exactly one record from a Kafka partition at an
// absolute offset using manual partition assignment.
package fetch

import (
	"context"
	"fmt"
	"time"
)

// ConnectionConfig holds what a client needs to reach the cluster.
type ConnectionConfig struct {
	// Brokers is the bootstrap broker list (host:port).
	Brokers []string

	// GroupID is carried for handshake compatibility only. No group is joined
	// and no offsets are committed.
	GroupID string

	// ClientID is sent to the brokers in every request header.
	ClientID string

	// DialTimeout bounds a single connection attempt. Zero keeps the client
	// library's default. It never applies to the poll.
	DialTimeout time.Duration
}

// Location identifies one record position in the log.
type Location struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (l Location) String() string {
	return fmt.Sprintf("%s/%d@%d", l.Topic, l.Partition, l.Offset)
}

// Record is a message as delivered by a client backend.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	// Value is nil for a null (tombstone) record. A non-nil empty slice is a
	// legitimate zero-length payload.
	Value     []byte
	Timestamp time.Time
}

// Event is the outcome of a single poll: either a record or an error the
// broker embedded in its response.
type Event struct {
	Record *Record
	Err    error
}

// Client is a handle on a broker connection that supports manual assignment.
//
// Implementations are used by a single goroutine for the duration of one
// fetch and are closed afterwards.
type Client interface {
	// Ping verifies that at least one broker answers.
	Ping(ctx context.Context) error

	// Partitions returns the partition indexes of topic. An unknown topic is
	// an error.
	Partitions(ctx context.Context, topic string) ([]int32, error)

	// OffsetBounds returns the log start offset and the high watermark of a
	// partition. Valid offsets are in [start, end).
	OffsetBounds(ctx context.Context, topic string, partition int32) (start, end int64, err error)

	// Assign starts consuming exactly one partition at an absolute offset.
	// A handle accepts a single assignment.
	Assign(ctx context.Context, loc Location) error

	// Poll blocks until the next event arrives or ctx is done. A nil Event
	// means nothing was received.
	Poll(ctx context.Context) *Event

	// Close releases the connection.
	Close() error
}

// Dialer opens a Client for the given connection settings.
type Dialer func(ctx context.Context, cfg ConnectionConfig) (Client, error)
