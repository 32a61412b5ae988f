package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/engine"
	"github.com/KevoDB/ingest/pkg/grpc/service"
	"github.com/KevoDB/ingest/pkg/sstable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// newTestClient serves w over an in-memory listener and connects a client to it
func newTestClient(t *testing.T, w *engine.WritePath) *Client {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	service.RegisterIngestServer(server, service.NewIngestServiceServer(w, log.NewNopLogger()))
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	options := DefaultClientOptions()
	options.Endpoint = "passthrough:///bufnet"
	options.RequestTimeout = 5 * time.Second
	options.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	}

	c, err := NewClient(options)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func openWritePath(t *testing.T, threshold int64) *engine.WritePath {
	t.Helper()
	w, err := engine.New(t.TempDir(), threshold, 2, engine.WithLogger(log.NewNopLogger()))
	require.NoError(t, err)
	return w
}

func TestClientPutFlushStats(t *testing.T) {
	w := openWritePath(t, 1<<20)
	c := newTestClient(t, w)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Put(ctx, []byte("b"), []byte("2")))
	require.NoError(t, c.Put(ctx, []byte("a"), []byte("1")))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(4), stats["memtable_size"])
	assert.Equal(t, float64(2), stats["memtable_entries"])

	require.NoError(t, c.Flush(ctx))
	require.NoError(t, w.Close())

	segments, err := sstable.ListSegments(w.Dir())
	require.NoError(t, err)
	require.Len(t, segments, 1)

	entries, err := sstable.ReadSegment(filepath.Join(w.Dir(), segments[0]))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", string(entries[0].Key))
	assert.Equal(t, "a", string(entries[1].Key))
}

func TestClientSeesClosedServer(t *testing.T) {
	w := openWritePath(t, 1<<20)
	c := newTestClient(t, w)
	require.NoError(t, w.Close())

	ctx := context.Background()
	err := c.Put(ctx, []byte("k"), []byte("v"))
	assert.True(t, IsClosed(err))
	assert.False(t, IsRetryableError(err))

	err = c.Flush(ctx)
	assert.True(t, IsClosed(err))
}

func TestClientInvalidArgument(t *testing.T) {
	c := newTestClient(t, openWritePath(t, 1<<20))

	err := c.Put(context.Background(), nil, []byte("v"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, IsClosed(err))
}

func TestClientClosed(t *testing.T) {
	c := newTestClient(t, openWritePath(t, 1<<20))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	assert.ErrorIs(t, c.Put(ctx, []byte("k"), nil), ErrNotConnected)
	assert.ErrorIs(t, c.Flush(ctx), ErrNotConnected)
	_, err := c.Stats(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	options := DefaultClientOptions()
	options.Endpoint = ""
	_, err := NewClient(options)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestConvertError(t *testing.T) {
	assert.NoError(t, convertError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, convertError(plain))

	assert.ErrorIs(t, convertError(status.Error(codes.DeadlineExceeded, "slow")), ErrTimeout)

	// Unavailable without the closed detail is a connectivity problem
	unreachable := convertError(status.Error(codes.Unavailable, "connection refused"))
	assert.False(t, IsClosed(unreachable))
	assert.True(t, IsRetryableError(unreachable))
}

func TestCalculateExponentialBackoff(t *testing.T) {
	initial := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, initial, CalculateExponentialBackoff(0, initial, max, 2, 0))
	assert.Equal(t, 400*time.Millisecond, CalculateExponentialBackoff(2, initial, max, 2, 0))
	assert.Equal(t, max, CalculateExponentialBackoff(10, initial, max, 2, 0))

	for i := 0; i < 20; i++ {
		backoff := CalculateExponentialBackoff(1, initial, max, 2, 0.5)
		assert.GreaterOrEqual(t, backoff, 200*time.Millisecond)
		assert.LessOrEqual(t, backoff, 300*time.Millisecond)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("non retryable error stops immediately", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return ErrInvalidArgument
		}, 5, time.Millisecond, time.Millisecond, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, 1, calls)
	})

	t.Run("retryable error is retried until success", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return ErrTimeout
			}
			return nil
		}, 5, time.Millisecond, time.Millisecond, 1, 0)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return ErrTimeout
		}, 2, time.Millisecond, time.Millisecond, 1, 0)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryWithBackoff(cancelled, func() error {
			return ErrTimeout
		}, 5, time.Second, time.Second, 1, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
