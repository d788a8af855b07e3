package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fikovnik/kafka-consumer/internal/logging"
	"github.com/fikovnik/kafka-consumer/internal/metrics"
)

// Options configures a Fetcher.
type Options struct {
	// Dialer opens the client handle. Required.
	Dialer Dialer

	// Logger receives stage and outcome logs. Defaults to a discarding logger.
	Logger *logging.Logger

	// Metrics, when set, records latency and outcome of every Fetch.
	Metrics *metrics.FetchMetrics

	// ValidateOffset checks the requested offset against the partition's log
	// start offset and high watermark before assigning. When false the offset
	// is handed to the broker as is and out-of-range behavior is whatever the
	// broker and client reset policy make of it.
	ValidateOffset bool
}

// Fetcher retrieves one record per call.
type Fetcher struct {
	cfg     ConnectionConfig
	dial    Dialer
	logger  *logging.Logger
	metrics *metrics.FetchMetrics
	check   bool
}

// New creates a Fetcher for the given cluster.
func New(cfg ConnectionConfig, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{
		cfg:     cfg,
		dial:    opts.Dialer,
		logger:  logger,
		metrics: opts.Metrics,
		check:   opts.ValidateOffset,
	}
}

// Fetch returns the payload of the first record delivered at or after
// loc.Offset on loc's partition.
//
// It performs:
//  1. Connect and ping the cluster
//  2. Metadata lookup of the topic's partitions
//  3. Optional offset bounds check
//  4. Manual assignment of the single partition at loc.Offset
//  5. One blocking poll
//
// The poll has no timeout of its own; it returns when a record or an error
// arrives or ctx is done. Every failure is a *Error.
func (f *Fetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	start := time.Now()
	logger := f.logger.With(map[string]any{
		"topic":     loc.Topic,
		"partition": loc.Partition,
		"offset":    loc.Offset,
	})

	payload, err := f.fetch(ctx, loc, logger)

	result := metrics.StatusSuccess
	if err != nil {
		result = KindOf(err).String()
		logger.Errorf("fetch failed", map[string]any{
			"kind":  result,
			"error": err.Error(),
		})
	} else {
		logger.Infof("fetched record", map[string]any{
			"bytes":      len(payload),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
	if f.metrics != nil {
		f.metrics.RecordResult(time.Since(start).Seconds(), result, len(payload))
	}
	return payload, err
}

func (f *Fetcher) fetch(ctx context.Context, loc Location, logger *logging.Logger) ([]byte, error) {
	if loc.Partition < 0 {
		return nil, newError(KindAssignment, loc, fmt.Errorf("%w: negative index %d", ErrUnknownPartition, loc.Partition))
	}
	if f.dial == nil {
		return nil, newError(KindConnection, loc, errors.New("no client dialer configured"))
	}

	stage := time.Now()
	client, err := f.dial(ctx, f.cfg)
	if err != nil {
		return nil, newError(KindConnection, loc, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warnf("client close failed", map[string]any{"error": err.Error()})
		}
	}()

	if err := client.Ping(ctx); err != nil {
		return nil, newError(KindConnection, loc, err)
	}
	f.stageDone(metrics.StageConnect, stage)
	logger.Debugf("connected", map[string]any{
		"brokers": f.cfg.Brokers,
		"groupId": f.cfg.GroupID,
	})

	stage = time.Now()
	partitions, err := client.Partitions(ctx, loc.Topic)
	if err != nil {
		return nil, newError(KindAssignment, loc, err)
	}
	if !slices.Contains(partitions, loc.Partition) {
		return nil, newError(KindAssignment, loc, fmt.Errorf("%w: topic %q has %d partitions", ErrUnknownPartition, loc.Topic, len(partitions)))
	}

	if f.check {
		low, high, err := client.OffsetBounds(ctx, loc.Topic, loc.Partition)
		if err != nil {
			return nil, newError(KindAssignment, loc, fmt.Errorf("read offset bounds: %w", err))
		}
		if loc.Offset < low || loc.Offset >= high {
			return nil, newError(KindAssignment, loc, fmt.Errorf("%w: %d not in [%d, %d)", ErrOffsetOutOfRange, loc.Offset, low, high))
		}
	}
	f.stageDone(metrics.StageMetadata, stage)

	stage = time.Now()
	if err := client.Assign(ctx, loc); err != nil {
		return nil, newError(KindAssignment, loc, err)
	}
	f.stageDone(metrics.StageAssign, stage)
	logger.Debug("partition assigned, polling")

	stage = time.Now()
	ev := client.Poll(ctx)
	f.stageDone(metrics.StagePoll, stage)

	switch {
	case ev == nil || (ev.Err == nil && ev.Record == nil):
		return nil, newError(KindNoEvent, loc, ErrNoEvent)
	case ev.Err != nil:
		return nil, newError(KindPoll, loc, ev.Err)
	case ev.Record.Value == nil:
		return nil, newError(KindEmptyPayload, loc, fmt.Errorf("%w at offset %d", ErrEmptyPayload, ev.Record.Offset))
	}

	logger.Debugf("record received", map[string]any{
		"recordOffset": ev.Record.Offset,
		"keyBytes":     len(ev.Record.Key),
	})
	return ev.Record.Value, nil
}

func (f *Fetcher) stageDone(stage string, start time.Time) {
	if f.metrics != nil {
		f.metrics.RecordStage(stage, time.Since(start).Seconds())
	}
}
