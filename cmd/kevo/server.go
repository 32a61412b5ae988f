package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/engine"
	"github.com/KevoDB/ingest/pkg/grpc/service"
	"github.com/KevoDB/ingest/pkg/grpc/transport"
	"github.com/KevoDB/ingest/pkg/telemetry"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

// newServer builds the gRPC server exposing w
func newServer(w *engine.WritePath, cfg Config, logger log.Logger, tel telemetry.Telemetry) (*transport.Server, error) {
	options := transport.DefaultOptions()
	options.TLSEnabled = cfg.TLSEnabled
	options.CertFile = cfg.TLSCertFile
	options.KeyFile = cfg.TLSKeyFile
	options.CAFile = cfg.TLSCAFile

	ingest := service.NewIngestServiceServer(w, logger)
	return transport.NewServer(options, logger,
		func(s grpc.ServiceRegistrar) { service.RegisterIngestServer(s, ingest) },
		grpc.UnaryInterceptor(service.UnaryServerInterceptor(logger, tel)),
	)
}

// runServer serves w until SIGINT or SIGTERM, then stops accepting calls and
// closes the write path so every buffered entry reaches a segment
func runServer(w *engine.WritePath, cfg Config, logger log.Logger, tel telemetry.Telemetry) error {
	server, err := newServer(w, cfg, logger, tel)
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := server.Start(cfg.ListenAddr); err != nil {
		w.Close()
		return err
	}
	fmt.Printf("Kevo ingest server started on %s\n", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	return shutdown(server, w)
}

// shutdown drains in-flight calls before closing the write path. A Put stuck
// in a write stall keeps GracefulStop waiting, so the stop is forced once
// shutdownTimeout passes.
func shutdown(server *transport.Server, w *engine.WritePath) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	if err := w.Close(); err != nil && !errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("failed to close write path: %w", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}
