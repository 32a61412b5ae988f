package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/KevoDB/ingest/pkg/grpc/service"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Errors that can occur during client operations
var (
	// ErrNotConnected indicates the client has been closed
	ErrNotConnected = errors.New("not connected to server")

	// ErrInvalidOptions indicates invalid client options
	ErrInvalidOptions = errors.New("invalid client options")

	// ErrTimeout indicates a request timed out
	ErrTimeout = errors.New("request timed out")

	// ErrServerClosed indicates the server's write path is closed
	ErrServerClosed = errors.New("server write path closed")

	// ErrInvalidArgument indicates the server rejected the request
	ErrInvalidArgument = errors.New("invalid argument")
)

// convertError maps gRPC status errors onto the client's sentinel errors
func convertError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		// Unavailable is also returned when the server cannot be reached
		if isWritePathClosed(st) {
			return fmt.Errorf("%w: %s", ErrServerClosed, st.Message())
		}
		return err
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	}
	return err
}

func isWritePathClosed(st *status.Status) bool {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok &&
			info.GetDomain() == service.ErrorDomain && info.GetReason() == service.ReasonClosed {
			return true
		}
	}
	return false
}

// IsRetryableError returns true if the error is considered retryable
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// These errors are considered transient and can be retried
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Unreachable servers are transient; a closed write path is not
	if !errors.Is(err, ErrServerClosed) && status.Code(err) == codes.Unavailable {
		return true
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff and jitter
func RetryWithBackoff(
	ctx context.Context,
	fn func() error,
	maxRetries int,
	initialBackoff time.Duration,
	maxBackoff time.Duration,
	backoffFactor float64,
	jitter float64,
) error {
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !IsRetryableError(err) || attempt >= maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(CalculateExponentialBackoff(attempt, initialBackoff, maxBackoff, backoffFactor, jitter)):
		}
	}

	return err
}

// CalculateExponentialBackoff calculates the backoff time for a given attempt
func CalculateExponentialBackoff(
	attempt int,
	initialBackoff time.Duration,
	maxBackoff time.Duration,
	backoffFactor float64,
	jitter float64,
) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(backoffFactor, float64(attempt)))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	if jitter > 0 {
		jitterRange := float64(backoff) * jitter
		jitterAmount := int64(rand.Float64() * jitterRange)
		backoff = backoff + time.Duration(jitterAmount)
	}

	return backoff
}
