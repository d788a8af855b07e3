// Package testbroker runs a single-node Kafka broker in process. It speaks
// enough of the wire protocol (ApiVersions, Metadata, ListOffsets, Fetch) for
// a real client to discover topics and consume records from an in-memory log.
package testbroker

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// ErrBrokerClosed is returned by a second Close.
var ErrBrokerClosed = errors.New("testbroker: closed")

// Config holds broker settings.
type Config struct {
	// ListenAddr is the TCP address to bind. Defaults to 127.0.0.1:0.
	ListenAddr string

	// NodeID is advertised in metadata responses.
	NodeID int32

	// MaxFetchWait caps how long a fetch at the high watermark waits for new
	// data, regardless of the client's MaxWaitMillis.
	MaxFetchWait time.Duration

	// Compression is applied to every appended batch.
	Compression Compression

	// Logger receives connection and request logs.
	Logger *logging.Logger
}

// Broker is an in-process single-node Kafka broker.
type Broker struct {
	cfg    Config
	logger *logging.Logger
	ln     net.Listener
	host   string
	port   int32

	mu     sync.Mutex
	topics map[string]*topic
	conns  map[net.Conn]struct{}

	connWg sync.WaitGroup
	connID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

type topic struct {
	name       string
	partitions []*partition
}

type partition struct {
	start    int64
	hwm      int64
	batches  [][]byte
	fetchErr int16
	appended chan struct{}
}

// Start listens on cfg.ListenAddr and serves connections in the background.
func Start(cfg Config) (*Broker, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.MaxFetchWait <= 0 {
		cfg.MaxFetchWait = 50 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		ln.Close()
		return nil, err
	}

	b := &Broker{
		cfg:    cfg,
		logger: logger.With(map[string]any{"component": "testbroker"}),
		ln:     ln,
		host:   host,
		port:   int32(port),
		topics: make(map[string]*topic),
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
	go b.serve()
	return b, nil
}

// Addr returns the host:port clients should bootstrap from.
func (b *Broker) Addr() string {
	return b.ln.Addr().String()
}

// Close stops accepting, drops every connection and waits for handlers.
func (b *Broker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrBrokerClosed
	}
	close(b.done)
	b.ln.Close()

	b.mu.Lock()
	for conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()

	b.connWg.Wait()
	return nil
}

func (b *Broker) serve() {
	b.logger.Infof("broker listening", map[string]any{"addr": b.Addr()})
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if b.closed.Load() {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			b.logger.Warnf("accept failed", map[string]any{"error": err.Error()})
			return
		}

		b.mu.Lock()
		if b.closed.Load() {
			b.mu.Unlock()
			conn.Close()
			return
		}
		b.conns[conn] = struct{}{}
		b.connWg.Add(1)
		b.mu.Unlock()

		go b.handleConn(conn)
	}
}

// CreateTopic adds a topic with the given number of empty partitions.
func (b *Broker) CreateTopic(name string, partitions int32) error {
	if partitions <= 0 {
		return fmt.Errorf("testbroker: topic %q needs at least one partition", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[name]; ok {
		return fmt.Errorf("testbroker: topic %q already exists", name)
	}
	t := &topic{name: name}
	for i := int32(0); i < partitions; i++ {
		t.partitions = append(t.partitions, &partition{appended: make(chan struct{})})
	}
	b.topics[name] = t
	return nil
}

// Append writes msgs as one batch to the partition and returns the offset of
// the first message.
func (b *Broker) Append(topicName string, part int32, msgs ...Message) (int64, error) {
	batch, err := encodeBatch(msgs, b.cfg.Compression)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.partitionLocked(topicName, part)
	if err != nil {
		return 0, err
	}

	base := p.hwm
	if err := patchBaseOffset(batch, base); err != nil {
		return 0, err
	}
	p.batches = append(p.batches, batch)
	p.hwm += int64(recordCount(batch))

	close(p.appended)
	p.appended = make(chan struct{})
	return base, nil
}

// AppendValues appends one single-record batch per value.
func (b *Broker) AppendValues(topicName string, part int32, values ...[]byte) (int64, error) {
	first := int64(-1)
	for _, v := range values {
		off, err := b.Append(topicName, part, Message{Value: v})
		if err != nil {
			return 0, err
		}
		if first < 0 {
			first = off
		}
	}
	return first, nil
}

// DeleteRecordsBefore advances the log start offset of a partition.
func (b *Broker) DeleteRecordsBefore(topicName string, part int32, offset int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.partitionLocked(topicName, part)
	if err != nil {
		return err
	}
	if offset < p.start || offset > p.hwm {
		return fmt.Errorf("testbroker: offset %d outside [%d, %d]", offset, p.start, p.hwm)
	}
	p.start = offset

	kept := p.batches[:0]
	for _, batch := range p.batches {
		if baseOffset(batch)+int64(recordCount(batch)) > offset {
			kept = append(kept, batch)
		}
	}
	p.batches = kept
	return nil
}

// FailFetches makes every fetch of the partition answer with the given Kafka
// error code. Zero clears it.
func (b *Broker) FailFetches(topicName string, part int32, code int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.partitionLocked(topicName, part)
	if err != nil {
		return err
	}
	p.fetchErr = code
	return nil
}

// HighWatermark returns the next offset to be assigned in a partition.
func (b *Broker) HighWatermark(topicName string, part int32) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.partitionLocked(topicName, part)
	if err != nil {
		return 0, err
	}
	return p.hwm, nil
}

func (b *Broker) partitionLocked(topicName string, part int32) (*partition, error) {
	t, ok := b.topics[topicName]
	if !ok {
		return nil, fmt.Errorf("testbroker: unknown topic %q", topicName)
	}
	if part < 0 || int(part) >= len(t.partitions) {
		return nil, fmt.Errorf("testbroker: topic %q has no partition %d", topicName, part)
	}
	return t.partitions[part], nil
}
