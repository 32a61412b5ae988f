package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevoDB/ingest/pkg/grpc/service"
	"github.com/KevoDB/ingest/pkg/grpc/transport"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

// ClientOptions configures an ingest client
type ClientOptions struct {
	// Connection options
	Endpoint       string        // Server address
	RequestTimeout time.Duration // Default timeout for Flush and Stats

	// Security options
	TLSEnabled bool   // Enable TLS
	CertFile   string // Client certificate file
	KeyFile    string // Client key file
	CAFile     string // CA certificate file

	// Retry options, applied to Flush and Stats only
	MaxRetries     int           // Maximum number of retries
	InitialBackoff time.Duration // Initial retry backoff
	MaxBackoff     time.Duration // Maximum retry backoff
	BackoffFactor  float64       // Backoff multiplier
	RetryJitter    float64       // Random jitter factor

	MaxMessageSize int // Maximum message size

	// DialOptions are appended to the options derived from the fields above
	DialOptions []grpc.DialOption
}

// DefaultClientOptions returns sensible default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Endpoint:       "localhost:50051",
		RequestTimeout: time.Second * 10,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond * 100,
		MaxBackoff:     time.Second * 2,
		BackoffFactor:  1.5,
		RetryJitter:    0.2,
		MaxMessageSize: 16 * 1024 * 1024, // 16MB
	}
}

// Client is a connection to an ingest server
type Client struct {
	options ClientOptions
	conn    *grpc.ClientConn
	ingest  service.IngestClient
}

// NewClient creates a client. The connection is established on first use.
func NewClient(options ClientOptions) (*Client, error) {
	if options.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidOptions)
	}

	transportOpts := transport.DefaultOptions()
	transportOpts.TLSEnabled = options.TLSEnabled
	transportOpts.CertFile = options.CertFile
	transportOpts.KeyFile = options.KeyFile
	transportOpts.CAFile = options.CAFile
	transportOpts.MaxMessageSize = options.MaxMessageSize

	dialOptions, err := transport.DialOptions(transportOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to build dial options: %w", err)
	}
	dialOptions = append(dialOptions, options.DialOptions...)

	conn, err := grpc.NewClient(options.Endpoint, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", options.Endpoint, err)
	}

	return &Client{
		options: options,
		conn:    conn,
		ingest:  service.NewIngestClient(conn),
	}, nil
}

// Close closes the connection to the server
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) retry(ctx context.Context, fn RetryableFunc) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if c.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.RequestTimeout)
		defer cancel()
	}
	return RetryWithBackoff(ctx, func() error { return fn(ctx) },
		c.options.MaxRetries,
		c.options.InitialBackoff,
		c.options.MaxBackoff,
		c.options.BackoffFactor,
		c.options.RetryJitter,
	)
}

// Put stores a key-value pair. It is sent once and not retried, since a
// retried put could be ingested twice. The call blocks for as long as the
// server stalls writes, bounded only by ctx.
func (c *Client) Put(ctx context.Context, key, value []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.ingest.Put(ctx, &service.PutRequest{Key: key, Value: value})
	return convertError(err)
}

// Flush asks the server to freeze its active memtable
func (c *Client) Flush(ctx context.Context) error {
	return c.retry(ctx, func(ctx context.Context) error {
		_, err := c.ingest.Flush(ctx, &emptypb.Empty{})
		return convertError(err)
	})
}

// Stats returns the server's write path statistics. Numbers decode as float64.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var stats map[string]interface{}
	err := c.retry(ctx, func(ctx context.Context) error {
		resp, err := c.ingest.Stats(ctx, &emptypb.Empty{})
		if err != nil {
			return convertError(err)
		}
		stats = resp.AsMap()
		return nil
	})
	return stats, err
}

// IsClosed reports whether err means the server's write path has shut down
func IsClosed(err error) bool {
	return errors.Is(err, ErrServerClosed)
}
