package transport

import "time"

// Options configures the gRPC server and client connections
type Options struct {
	// TLS options
	TLSEnabled bool
	CertFile   string
	KeyFile    string
	CAFile     string
	SkipVerify bool

	// MaxMessageSize bounds a single request or response
	MaxMessageSize int

	// Keepalive options
	KeepaliveTime     time.Duration
	KeepaliveTimeout  time.Duration
	MaxConnectionIdle time.Duration
	MaxConnectionAge  time.Duration
}

// DefaultOptions returns options suitable for a local deployment
func DefaultOptions() Options {
	return Options{
		MaxMessageSize:    16 * 1024 * 1024, // 16MB
		KeepaliveTime:     15 * time.Second,
		KeepaliveTimeout:  5 * time.Second,
		MaxConnectionIdle: 60 * time.Second,
		MaxConnectionAge:  5 * time.Minute,
	}
}
