// Package sink persists a fetched payload to its destination.
//
// A destination is one of:
//
//	-                  standard output
//	s3://bucket/key    an object in an S3-compatible store
//	anything else      a local file path, truncated and rewritten
//
// Payload bytes are written verbatim with no framing.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fikovnik/kafka-consumer/internal/logging"
	"github.com/fikovnik/kafka-consumer/internal/objectstore"
)

// Stdout is the destination that selects standard output.
const Stdout = "-"

// FileMode is the permission used for new destination files.
const FileMode os.FileMode = 0o644

// Error reports a failed write to a destination.
type Error struct {
	Op          string
	Destination string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s %s: %v", e.Op, e.Destination, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sink writes one payload.
type Sink interface {
	Write(ctx context.Context, payload []byte) error
}

// StoreOpener opens an object store for bucket.
type StoreOpener func(ctx context.Context, bucket string) (objectstore.Store, error)

// Options configures New.
type Options struct {
	// Stdout receives the payload for the "-" destination. Defaults to os.Stdout.
	Stdout io.Writer

	// OpenStore is required for s3:// destinations.
	OpenStore StoreOpener

	Logger *logging.Logger
}

// New returns the sink for destination. Nothing is touched until Write.
func New(destination string, opts Options) (Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(map[string]any{"destination": destination})

	switch {
	case destination == "":
		return nil, &Error{Op: "open", Destination: destination, Err: fmt.Errorf("empty destination")}
	case destination == Stdout:
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		return &writerSink{w: w, logger: logger}, nil
	case objectstore.IsURI(destination):
		bucket, key, err := objectstore.ParseURI(destination)
		if err != nil {
			return nil, &Error{Op: "open", Destination: destination, Err: err}
		}
		if opts.OpenStore == nil {
			return nil, &Error{Op: "open", Destination: destination, Err: fmt.Errorf("no object store configured")}
		}
		return &objectSink{uri: destination, bucket: bucket, key: key, open: opts.OpenStore, logger: logger}, nil
	default:
		return &fileSink{path: destination, logger: logger}, nil
	}
}

type fileSink struct {
	path   string
	logger *logging.Logger
}

// Write replaces the file contents with payload.
func (s *fileSink) Write(ctx context.Context, payload []byte) error {
	if err := os.WriteFile(s.path, payload, FileMode); err != nil {
		return &Error{Op: "write", Destination: s.path, Err: err}
	}
	s.logger.Infof("wrote payload", map[string]any{"bytes": len(payload)})
	return nil
}

type writerSink struct {
	w      io.Writer
	logger *logging.Logger
}

func (s *writerSink) Write(ctx context.Context, payload []byte) error {
	if _, err := s.w.Write(payload); err != nil {
		return &Error{Op: "write", Destination: Stdout, Err: err}
	}
	s.logger.Infof("wrote payload", map[string]any{"bytes": len(payload)})
	return nil
}

type objectSink struct {
	uri         string
	bucket, key string
	open        StoreOpener
	logger      *logging.Logger
}

func (s *objectSink) Write(ctx context.Context, payload []byte) (err error) {
	store, err := s.open(ctx, s.bucket)
	if err != nil {
		return &Error{Op: "open", Destination: s.uri, Err: err}
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = &Error{Op: "close", Destination: s.uri, Err: cerr}
		}
	}()

	if err := store.Put(ctx, s.key, bytes.NewReader(payload), int64(len(payload)), objectstore.ContentTypeOctetStream); err != nil {
		return &Error{Op: "put", Destination: s.uri, Err: err}
	}
	s.logger.Infof("wrote payload", map[string]any{"bytes": len(payload), "bucket": s.bucket, "key": s.key})
	return nil
}
