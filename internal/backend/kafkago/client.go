// Package kafkago implements the fetch client on top of segmentio/kafka-go.
package kafkago

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// Module is the Go module path of the client library.
const Module = "github.com/segmentio/kafka-go"

// metadataConn is the part of *kafka.Conn used for cluster queries.
type metadataConn interface {
	Brokers() ([]kafka.Broker, error)
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// leaderConn is the part of *kafka.Conn used for offset bounds.
type leaderConn interface {
	ReadFirstOffset() (int64, error)
	ReadLastOffset() (int64, error)
	Close() error
}

// reader is the part of *kafka.Reader used for consuming.
type reader interface {
	SetOffset(offset int64) error
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Client consumes a single partition with a kafka-go Reader.
type Client struct {
	conn       metadataConn
	seed       string
	dialLeader func(ctx context.Context, topic string, partition int32) (leaderConn, error)
	newReader  func(topic string, partition int32) reader
	r          reader
}

// Dialer returns a fetch.Dialer that builds kafka-go clients logging through
// logger.
func Dialer(logger *logging.Logger) fetch.Dialer {
	return func(ctx context.Context, cfg fetch.ConnectionConfig) (fetch.Client, error) {
		return Dial(ctx, cfg, logger)
	}
}

// Dial connects to the first reachable seed broker. Leader lookups go through
// the same broker.
func Dial(ctx context.Context, cfg fetch.ConnectionConfig, logger *logging.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no seed brokers")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(map[string]any{"lib": "kafka-go"})

	dialer := &kafka.Dialer{
		ClientID: cfg.ClientID,
		Timeout:  cfg.DialTimeout,
	}

	var (
		conn    *kafka.Conn
		seed    string
		dialErr error
	)
	for _, addr := range cfg.Brokers {
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn, seed = c, addr
			break
		}
		dialErr = errors.Join(dialErr, fmt.Errorf("dial %s: %w", addr, err))
	}
	if conn == nil {
		return nil, dialErr
	}

	c := &Client{
		conn: conn,
		seed: seed,
		newReader: func(topic string, partition int32) reader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.Brokers,
				Topic:       topic,
				Partition:   int(partition),
				Dialer:      dialer,
				MinBytes:    1,
				MaxBytes:    10 << 20,
				Logger:      kafka.LoggerFunc(logf(logger, logging.LevelDebug)),
				ErrorLogger: kafka.LoggerFunc(logf(logger, logging.LevelWarn)),
			})
		},
	}
	c.dialLeader = func(ctx context.Context, topic string, partition int32) (leaderConn, error) {
		return dialer.DialLeader(ctx, "tcp", c.seed, topic, int(partition))
	}
	return c, nil
}

// Ping asks the connected broker for the broker list.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	brokers, err := c.conn.Brokers()
	if err != nil {
		return fmt.Errorf("list brokers: %w", err)
	}
	if len(brokers) == 0 {
		return errors.New("cluster advertised no brokers")
	}
	return nil
}

// Partitions returns the partition indexes of topic.
func (c *Client) Partitions(ctx context.Context, topic string) ([]int32, error) {
	parts, err := c.conn.ReadPartitions(topic)
	if err != nil {
		return nil, fmt.Errorf("topic %q: %w", topic, err)
	}
	ids := make([]int32, 0, len(parts))
	for _, p := range parts {
		if p.Topic == topic {
			ids = append(ids, int32(p.ID))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("topic %q: %w", topic, kafka.UnknownTopicOrPartition)
	}
	return ids, nil
}

// OffsetBounds reads the first and last offsets through the partition leader.
func (c *Client) OffsetBounds(ctx context.Context, topic string, partition int32) (int64, int64, error) {
	lc, err := c.dialLeader(ctx, topic, partition)
	if err != nil {
		return 0, 0, fmt.Errorf("dial leader: %w", err)
	}
	defer lc.Close()

	first, err := lc.ReadFirstOffset()
	if err != nil {
		return 0, 0, fmt.Errorf("first offset: %w", err)
	}
	last, err := lc.ReadLastOffset()
	if err != nil {
		return 0, 0, fmt.Errorf("last offset: %w", err)
	}
	return first, last, nil
}

// Assign creates a partition reader positioned at loc.Offset.
func (c *Client) Assign(ctx context.Context, loc fetch.Location) error {
	if c.r != nil {
		return fetch.ErrAlreadyAssigned
	}
	r := c.newReader(loc.Topic, loc.Partition)
	if err := r.SetOffset(loc.Offset); err != nil {
		r.Close()
		return fmt.Errorf("set offset: %w", err)
	}
	c.r = r
	return nil
}

// Poll reads the next message.
func (c *Client) Poll(ctx context.Context) *fetch.Event {
	if c.r == nil {
		return &fetch.Event{Err: errors.New("poll before assign")}
	}
	msg, err := c.r.ReadMessage(ctx)
	if err != nil {
		return &fetch.Event{Err: err}
	}
	return &fetch.Event{Record: &fetch.Record{
		Topic:     msg.Topic,
		Partition: int32(msg.Partition),
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Time,
	}}
}

// Close closes the reader and the seed connection.
func (c *Client) Close() error {
	var errs []error
	if c.r != nil {
		if err := c.r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func logf(l *logging.Logger, level logging.Level) func(string, ...any) {
	return func(format string, args ...any) {
		l.Log(level, fmt.Sprintf(format, args...), nil)
	}
}
