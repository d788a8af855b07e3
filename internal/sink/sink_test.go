package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikovnik/kafka-consumer/internal/objectstore"
)

func TestFileSinkOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("a much longer previous payload"), 0o600))

	s, err := New(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), []byte("hello")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestFileSinkCreatesWithMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	s, err := New(path, Options{})
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "New must not touch the destination")

	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	require.NoError(t, s.Write(context.Background(), payload))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm()&0o600)
}

func TestFileSinkEmptyPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	s, err := New(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), []byte{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFileSinkError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.bin")
	s, err := New(path, Options{})
	require.NoError(t, err)

	err = s.Write(context.Background(), []byte("x"))
	var sinkErr *Error
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "write", sinkErr.Op)
	assert.Equal(t, path, sinkErr.Destination)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStdoutSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := New(Stdout, Options{Stdout: &buf})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), []byte("hello")))
	assert.Equal(t, "hello", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStdoutSinkError(t *testing.T) {
	s, err := New(Stdout, Options{Stdout: failingWriter{}})
	require.NoError(t, err)
	err = s.Write(context.Background(), []byte("hello"))
	assert.EqualError(t, err, "sink write -: broken pipe")
}

func TestObjectSink(t *testing.T) {
	store := objectstore.NewMockStore()
	var opened string
	s, err := New("s3://payloads/orders/0/42.bin", Options{
		OpenStore: func(ctx context.Context, bucket string) (objectstore.Store, error) {
			opened = bucket
			return store, nil
		},
	})
	require.NoError(t, err)
	assert.Empty(t, opened, "store is opened lazily")

	require.NoError(t, s.Write(context.Background(), []byte("hello")))
	assert.Equal(t, "payloads", opened)

	data, ct, ok := store.Object("orders/0/42.bin")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, objectstore.ContentTypeOctetStream, ct)
}

func TestObjectSinkErrors(t *testing.T) {
	_, err := New("s3://payloads", Options{OpenStore: func(ctx context.Context, bucket string) (objectstore.Store, error) {
		return objectstore.NewMockStore(), nil
	}})
	assert.Error(t, err)

	_, err = New("s3://payloads/k", Options{})
	assert.ErrorContains(t, err, "no object store configured")

	s, err := New("s3://payloads/k", Options{OpenStore: func(ctx context.Context, bucket string) (objectstore.Store, error) {
		return nil, errors.New("no credentials")
	}})
	require.NoError(t, err)
	err = s.Write(context.Background(), []byte("x"))
	var sinkErr *Error
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "open", sinkErr.Op)

	store := objectstore.NewMockStore()
	store.PutErr = objectstore.ErrAccessDenied
	s, err = New("s3://payloads/k", Options{OpenStore: func(ctx context.Context, bucket string) (objectstore.Store, error) {
		return store, nil
	}})
	require.NoError(t, err)
	err = s.Write(context.Background(), []byte("x"))
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "put", sinkErr.Op)
	assert.ErrorIs(t, err, objectstore.ErrAccessDenied)
}

func TestEmptyDestination(t *testing.T) {
	_, err := New("", Options{})
	assert.Error(t, err)
}
