package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/earthquery/internal/search"
)

// ErrClosed is returned when documents are added to a closed Batcher.
var ErrClosed = errors.New("batcher is closed")

// Uploader dispatches one assembled batch to the index.
type Uploader interface {
	UploadDocuments(ctx context.Context, docs []search.Document, action string) ([]search.IndexingResult, error)
}

// Hooks are the observable lifecycle signals of the upload channel. Every
// assembled batch reaches exactly one of BatchSucceeded or BatchFailed.
// Nil hooks are skipped. Hooks may be called from dispatch goroutines.
type Hooks struct {
	BatchAssembled func(batchID string, size int)
	Dispatch       func(action, key string)
	BatchSucceeded func(batchID string, indexed int)
	BatchFailed    func(batchID string, keys []string, err error)
}

// Stats summarizes channel activity after a flush.
type Stats struct {
	Batches          int
	Succeeded        int
	Failed           int
	DocumentsIndexed int
}

// Options configures a Batcher.
type Options struct {
	Action      string // batch action tag; defaults to "upload"
	BatchSize   int    // documents per batch; defaults to 100
	MaxInFlight int    // concurrent dispatches; defaults to 4
	Hooks       Hooks
	Logger      *slog.Logger
}

// Batcher buffers documents, groups them into fixed-size batches, and
// dispatches each batch asynchronously. It is intended for a single
// producer: Add documents, Flush once, then Close. Close must run on every
// exit path; WithBatcher provides the scoped form. Ordering across batches
// is not guaranteed, only that every document is attempted.
type Batcher struct {
	uploader Uploader
	action   string
	size     int
	hooks    Hooks
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	pending []search.Document
	closed  bool
	stats   Stats

	closeOnce sync.Once
}

// NewBatcher creates a Batcher dispatching through the given uploader.
func NewBatcher(uploader Uploader, opts Options) *Batcher {
	if opts.Action == "" {
		opts.Action = "upload"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Batcher{
		uploader: uploader,
		action:   opts.Action,
		size:     opts.BatchSize,
		hooks:    opts.Hooks,
		logger:   opts.Logger,
		sem:      make(chan struct{}, opts.MaxInFlight),
	}
}

// WithBatcher runs fn with a fresh Batcher and guarantees Close on every
// exit path, including when fn returns an error or panics.
func WithBatcher(uploader Uploader, opts Options, fn func(*Batcher) error) error {
	b := NewBatcher(uploader, opts)
	defer b.Close()
	return fn(b)
}

// Add buffers one document, sealing and dispatching a batch whenever the
// buffer reaches the configured size.
func (b *Batcher) Add(ctx context.Context, doc search.Document) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending = append(b.pending, doc)
	var batch []search.Document
	if len(b.pending) >= b.size {
		batch = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if batch != nil {
		b.seal(ctx, batch)
	}
	return nil
}

// AddAll buffers a full document set.
func (b *Batcher) AddAll(ctx context.Context, docs []search.Document) error {
	for _, d := range docs {
		if err := b.Add(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Flush seals any remaining partial batch and blocks until every dispatched
// batch has reached its succeeded or failed signal. It returns early only
// when ctx is cancelled; batch failures are reported through hooks and
// Stats, not as a Flush error.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		b.seal(ctx, batch)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush interrupted: %w", ctx.Err())
	}
}

// Close releases the channel. It is safe to call more than once but only
// the first call takes effect; outstanding dispatches are awaited so no
// batch is abandoned mid-flight. Documents added but never flushed are
// discarded with a warning.
func (b *Batcher) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		dropped := len(b.pending)
		b.pending = nil
		b.mu.Unlock()

		if dropped > 0 {
			b.logger.Warn("closing batcher with unflushed documents", "dropped", dropped)
		}
		b.wg.Wait()
	})
	return nil
}

// Stats returns a snapshot of batch outcomes.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// seal assigns the batch an id, emits the assembled signal, and hands the
// batch to a dispatch goroutine bounded by the in-flight semaphore.
func (b *Batcher) seal(ctx context.Context, batch []search.Document) {
	batchID := uuid.New().String()[:8]
	if b.hooks.BatchAssembled != nil {
		b.hooks.BatchAssembled(batchID, len(batch))
	}

	b.mu.Lock()
	b.stats.Batches++
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sem <- struct{}{}
		defer func() { <-b.sem }()
		b.dispatch(ctx, batchID, batch)
	}()
}

func (b *Batcher) dispatch(ctx context.Context, batchID string, batch []search.Document) {
	for _, d := range batch {
		if b.hooks.Dispatch != nil {
			b.hooks.Dispatch(b.action, d.ID)
		}
	}

	results, err := b.uploader.UploadDocuments(ctx, batch, b.action)
	if err != nil {
		b.fail(batchID, keysOf(batch), err)
		return
	}

	indexed := 0
	var failedKeys []string
	for _, r := range results {
		if r.Succeeded {
			indexed++
		} else {
			failedKeys = append(failedKeys, r.Key)
		}
	}
	if len(failedKeys) > 0 {
		b.mu.Lock()
		b.stats.DocumentsIndexed += indexed
		b.mu.Unlock()
		b.fail(batchID, failedKeys, fmt.Errorf("%d of %d documents rejected (keys %s)",
			len(failedKeys), len(batch), strings.Join(failedKeys, ", ")))
		return
	}

	b.mu.Lock()
	b.stats.Succeeded++
	b.stats.DocumentsIndexed += indexed
	b.mu.Unlock()
	if b.hooks.BatchSucceeded != nil {
		b.hooks.BatchSucceeded(batchID, indexed)
	}
}

func (b *Batcher) fail(batchID string, keys []string, err error) {
	b.mu.Lock()
	b.stats.Failed++
	b.mu.Unlock()

	b.logger.Warn("batch dispatch failed", "batch_id", batchID, "documents", len(keys), "error", err)
	if b.hooks.BatchFailed != nil {
		b.hooks.BatchFailed(batchID, keys, err)
	}
}

func keysOf(docs []search.Document) []string {
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.ID
	}
	return keys
}
