// Package franz implements the fetch client on top of franz-go.
package franz

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// Module is the Go module path of the client library.
const Module = "github.com/twmb/franz-go"

// Client wraps a kgo client used for cluster queries and, once assigned, a
// second kgo client that consumes the single partition.
type Client struct {
	opts     []kgo.Opt
	admin    *kgo.Client
	adm      *kadm.Client
	consumer *kgo.Client
	loc      fetch.Location
}

// Dialer returns a fetch.Dialer that builds franz-go clients logging through
// logger.
func Dialer(logger *logging.Logger) fetch.Dialer {
	return func(ctx context.Context, cfg fetch.ConnectionConfig) (fetch.Client, error) {
		return Dial(ctx, cfg, logger)
	}
}

// Dial creates a client for cfg. kgo connects lazily, so no network traffic
// happens until Ping.
func Dial(ctx context.Context, cfg fetch.ConnectionConfig, logger *logging.Logger) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no seed brokers")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.WithLogger(newLogger(logger)),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, kgo.DialTimeout(cfg.DialTimeout))
	}

	admin, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &Client{
		opts:  opts,
		admin: admin,
		adm:   kadm.NewClient(admin),
	}, nil
}

// Ping checks that a seed broker answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.admin.Ping(ctx)
}

// Partitions returns the partition indexes of topic.
func (c *Client) Partitions(ctx context.Context, topic string) ([]int32, error) {
	md, err := c.adm.Metadata(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	td, ok := md.Topics[topic]
	if !ok {
		return nil, fmt.Errorf("topic %q: %w", topic, kerr.UnknownTopicOrPartition)
	}
	if td.Err != nil {
		return nil, fmt.Errorf("topic %q: %w", topic, td.Err)
	}
	return td.Partitions.Numbers(), nil
}

// OffsetBounds returns the log start offset and high watermark.
func (c *Client) OffsetBounds(ctx context.Context, topic string, partition int32) (int64, int64, error) {
	start, err := c.listed(ctx, topic, partition, c.adm.ListStartOffsets)
	if err != nil {
		return 0, 0, fmt.Errorf("list start offsets: %w", err)
	}
	end, err := c.listed(ctx, topic, partition, c.adm.ListEndOffsets)
	if err != nil {
		return 0, 0, fmt.Errorf("list end offsets: %w", err)
	}
	return start, end, nil
}

func (c *Client) listed(ctx context.Context, topic string, partition int32,
	list func(context.Context, ...string) (kadm.ListedOffsets, error)) (int64, error) {
	offsets, err := list(ctx, topic)
	if err != nil {
		return 0, err
	}
	lo, ok := offsets.Lookup(topic, partition)
	if !ok {
		return 0, fmt.Errorf("%s/%d missing from response", topic, partition)
	}
	if lo.Err != nil {
		return 0, lo.Err
	}
	return lo.Offset, nil
}

// Assign starts consuming loc's partition at loc.Offset.
func (c *Client) Assign(ctx context.Context, loc fetch.Location) error {
	if c.consumer != nil {
		return fetch.ErrAlreadyAssigned
	}
	opts := append(c.opts[:len(c.opts):len(c.opts)], kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
		loc.Topic: {loc.Partition: kgo.NewOffset().At(loc.Offset)},
	}))
	consumer, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer
	c.loc = loc
	return nil
}

// Poll blocks for the next fetch of the assigned partition.
func (c *Client) Poll(ctx context.Context) *fetch.Event {
	if c.consumer == nil {
		return &fetch.Event{Err: errors.New("poll before assign")}
	}

	fetches := c.consumer.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return &fetch.Event{Err: kgo.ErrClientClosed}
	}
	for _, fe := range fetches.Errors() {
		if fe.Topic == "" {
			return &fetch.Event{Err: fe.Err}
		}
		return &fetch.Event{Err: fmt.Errorf("%s/%d: %w", fe.Topic, fe.Partition, fe.Err)}
	}

	var rec *fetch.Record
	fetches.EachRecord(func(r *kgo.Record) {
		if rec != nil || r.Topic != c.loc.Topic || r.Partition != c.loc.Partition {
			return
		}
		rec = &fetch.Record{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     r.Value,
			Timestamp: r.Timestamp,
		}
	})
	if rec == nil {
		return nil
	}
	return &fetch.Event{Record: rec}
}

// Close closes both underlying clients.
func (c *Client) Close() error {
	if c.consumer != nil {
		c.consumer.Close()
	}
	c.admin.Close()
	return nil
}
