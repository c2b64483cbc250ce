package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrConvergenceTimeout is returned when the index's reported document
// count does not reach the expected count before the monitor's deadline.
var ErrConvergenceTimeout = errors.New("index convergence timed out")

// DocumentCounter reads the index's current document count.
type DocumentCounter interface {
	DocumentCount(ctx context.Context) (int64, error)
}

// Monitor polls the index document count until it equals the expected
// count. The count endpoint is eventually consistent after upload
// acknowledgment; the monitor bridges that latency window before any query
// is issued. Unlike a pure poll loop it is bounded: the deadline converts
// non-termination into a distinct error.
type Monitor struct {
	counter  DocumentCounter
	interval time.Duration
	deadline time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor. interval defaults to 4s and deadline to 2m
// when non-positive.
func NewMonitor(counter DocumentCounter, interval, deadline time.Duration) *Monitor {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	return &Monitor{
		counter:  counter,
		interval: interval,
		deadline: deadline,
		logger:   slog.Default(),
	}
}

// AwaitCount blocks until the index reports exactly expected documents.
// Transient count-read errors are logged and retried on the next cycle.
// Returns ErrConvergenceTimeout (wrapped, with the last observed count)
// when the deadline passes first, or ctx's error on cancellation.
func (m *Monitor) AwaitCount(ctx context.Context, expected int64) error {
	ctx, cancel := context.WithTimeout(ctx, m.deadline)
	defer cancel()

	last := int64(-1)
	for {
		n, err := m.counter.DocumentCount(ctx)
		switch {
		case err != nil:
			m.logger.Warn("reading document count", "error", err)
		case n == expected:
			return nil
		default:
			last = n
			m.logger.Info("waiting for index to converge", "indexed", n, "expected", expected)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s (observed %d of %d documents)",
					ErrConvergenceTimeout, m.deadline, last, expected)
			}
			return ctx.Err()
		case <-time.After(m.interval):
		}
	}
}
