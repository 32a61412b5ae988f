package engine

import "errors"

var (
	// ErrClosed is returned by operations on a write path that has begun shutting down
	ErrClosed = errors.New("write path is closed")
	// ErrHandoffClosed is returned when a frozen memtable cannot be handed to
	// the worker even though the write path is still running
	ErrHandoffClosed = errors.New("handoff channel closed while running")
)
