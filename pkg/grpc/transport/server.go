package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/KevoDB/ingest/pkg/common/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
)

var ErrServerStarted = errors.New("server already started")

// Server hosts gRPC services with the configured TLS and keepalive settings
type Server struct {
	options  Options
	server   *grpc.Server
	listener net.Listener
	logger   log.Logger
	mu       sync.Mutex
	started  bool
}

// ServerOptions builds the grpc.ServerOption list for options
func ServerOptions(options Options, extra ...grpc.ServerOption) ([]grpc.ServerOption, error) {
	var serverOpts []grpc.ServerOption

	if options.TLSEnabled {
		tlsConfig, err := options.ServerTLSConfig()
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	serverOpts = append(serverOpts,
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     options.MaxConnectionIdle,
			MaxConnectionAge:      options.MaxConnectionAge,
			MaxConnectionAgeGrace: options.KeepaliveTimeout,
			Time:                  options.KeepaliveTime,
			Timeout:               options.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             options.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	)

	if options.MaxMessageSize > 0 {
		serverOpts = append(serverOpts,
			grpc.MaxRecvMsgSize(options.MaxMessageSize),
			grpc.MaxSendMsgSize(options.MaxMessageSize),
		)
	}

	return append(serverOpts, extra...), nil
}

// NewServer creates a server. register adds services to it before it serves.
func NewServer(options Options, logger log.Logger, register func(grpc.ServiceRegistrar), extra ...grpc.ServerOption) (*Server, error) {
	serverOpts, err := ServerOptions(options, extra...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	s := &Server{
		options: options,
		server:  grpc.NewServer(serverOpts...),
		logger:  logger.WithField("component", "grpc"),
	}
	register(s.server)
	return s, nil
}

// Start listens on address and serves in the background
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	if err := s.markStarted(listener); err != nil {
		listener.Close()
		return err
	}

	go func() {
		if err := s.server.Serve(listener); err != nil {
			s.logger.Error("gRPC server error: %v", err)
		}
	}()

	s.logger.Info("gRPC server listening on %s", listener.Addr())
	return nil
}

// Serve serves on listener and blocks until the server stops
func (s *Server) Serve(listener net.Listener) error {
	if err := s.markStarted(listener); err != nil {
		return err
	}
	return s.server.Serve(listener)
}

func (s *Server) markStarted(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServerStarted
	}
	s.started = true
	s.listener = listener
	return nil
}

// Addr returns the listening address, or nil before the server starts
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server gracefully, forcing it closed if ctx expires first
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.started = false
	return nil
}
