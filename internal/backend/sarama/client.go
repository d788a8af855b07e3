// Package sarama implements the fetch client on top of IBM/sarama.
package sarama

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/fikovnik/kafka-consumer/internal/fetch"
	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// Module is the Go module path of the client library.
const Module = "github.com/IBM/sarama"

// cluster is the part of sarama.Client used outside the consumer.
type cluster interface {
	RefreshMetadata(topics ...string) error
	GetOffset(topic string, partitionID int32, time int64) (int64, error)
	Close() error
}

// Client consumes a single partition through a sarama consumer.
type Client struct {
	cluster  cluster
	consumer sarama.Consumer
	pc       sarama.PartitionConsumer
}

// Dialer returns a fetch.Dialer that builds sarama clients. sarama logs
// through a single package-level logger, so a non-nil logger replaces the one
// installed by any earlier call, including for clients already dialed. It is
// not safe to call concurrently with running sarama clients.
func Dialer(logger *logging.Logger) fetch.Dialer {
	if logger != nil {
		sarama.Logger = newLogger(logger)
	}
	return func(ctx context.Context, cfg fetch.ConnectionConfig) (fetch.Client, error) {
		return Dial(ctx, cfg)
	}
}

// NewConfig returns the sarama configuration used for cfg.
func NewConfig(cfg fetch.ConnectionConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.DialTimeout > 0 {
		sc.Net.DialTimeout = cfg.DialTimeout
	}
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	return sc
}

// Dial connects to the cluster. sarama fetches metadata while creating the
// client, so an unreachable cluster fails here.
func Dial(ctx context.Context, cfg fetch.ConnectionConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("no seed brokers")
	}
	sc := NewConfig(cfg)
	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return New(client, consumer), nil
}

// New wraps an existing cluster handle and consumer.
func New(c cluster, consumer sarama.Consumer) *Client {
	return &Client{cluster: c, consumer: consumer}
}

// Ping refreshes cluster metadata from any broker.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.cluster.RefreshMetadata(); err != nil {
		return fmt.Errorf("refresh metadata: %w", err)
	}
	return nil
}

// Partitions returns the partition indexes of topic.
func (c *Client) Partitions(ctx context.Context, topic string) ([]int32, error) {
	parts, err := c.consumer.Partitions(topic)
	if err != nil {
		return nil, fmt.Errorf("topic %q: %w", topic, err)
	}
	return parts, nil
}

// OffsetBounds returns the log start offset and high watermark.
func (c *Client) OffsetBounds(ctx context.Context, topic string, partition int32) (int64, int64, error) {
	start, err := c.cluster.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset: %w", err)
	}
	end, err := c.cluster.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset: %w", err)
	}
	return start, end, nil
}

// Assign starts a partition consumer at loc.Offset.
func (c *Client) Assign(ctx context.Context, loc fetch.Location) error {
	if c.pc != nil {
		return fetch.ErrAlreadyAssigned
	}
	pc, err := c.consumer.ConsumePartition(loc.Topic, loc.Partition, loc.Offset)
	if err != nil {
		return fmt.Errorf("consume partition: %w", err)
	}
	c.pc = pc
	return nil
}

// Poll waits for the first message or error of the partition consumer.
func (c *Client) Poll(ctx context.Context) *fetch.Event {
	if c.pc == nil {
		return &fetch.Event{Err: errors.New("poll before assign")}
	}
	select {
	case msg, ok := <-c.pc.Messages():
		if !ok {
			return nil
		}
		return &fetch.Event{Record: &fetch.Record{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Timestamp,
		}}
	case cerr, ok := <-c.pc.Errors():
		if !ok {
			return nil
		}
		return &fetch.Event{Err: cerr}
	case <-ctx.Done():
		return &fetch.Event{Err: ctx.Err()}
	}
}

// Close shuts down the partition consumer, the consumer and the client.
func (c *Client) Close() error {
	var errs []error
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close partition consumer: %w", err))
		}
	}
	if err := c.consumer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.cluster.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
