// Package objectstore defines the Store interface for S3-compatible storage.
//
// kafka-consumer uses it to write a fetched payload to an s3://bucket/key
// destination:
//
//	store, err := s3.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Put(ctx, "payloads/orders-0-42.bin", bytes.NewReader(payload), int64(len(payload)), objectstore.ContentTypeOctetStream)
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ContentTypeOctetStream is the content type used for raw payloads.
const ContentTypeOctetStream = "application/octet-stream"

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Operation that failed (e.g., "Put")
	Key string // Object key
	Err error  // Underlying error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// Store is the interface for object storage operations.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Put stores an object at the given key, replacing any existing object.
	//
	// The reader is consumed until EOF or error. The size parameter must match
	// the total bytes that will be read; some storage providers require this upfront.
	//
	// Returns an error if the write fails. Common errors:
	//   - ErrBucketNotFound: bucket doesn't exist
	//   - ErrAccessDenied: insufficient permissions
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Close releases resources associated with the store.
	//
	// After Close returns, Put returns ErrClosed.
	Close() error
}
