package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kalambet/earthquery/internal/search"
)

// mockUploader records upload calls and answers with uploadFn.
type mockUploader struct {
	mu       sync.Mutex
	batches  [][]search.Document
	uploadFn func(docs []search.Document, action string) ([]search.IndexingResult, error)
}

func (m *mockUploader) UploadDocuments(ctx context.Context, docs []search.Document, action string) ([]search.IndexingResult, error) {
	m.mu.Lock()
	m.batches = append(m.batches, docs)
	m.mu.Unlock()
	if m.uploadFn != nil {
		return m.uploadFn(docs, action)
	}
	return allSucceeded(docs), nil
}

func allSucceeded(docs []search.Document) []search.IndexingResult {
	results := make([]search.IndexingResult, len(docs))
	for i, d := range docs {
		results[i] = search.IndexingResult{Key: d.ID, Succeeded: true, StatusCode: 201}
	}
	return results
}

func makeDocs(n int) []search.Document {
	docs := make([]search.Document, n)
	for i := range docs {
		docs[i] = search.Document{ID: fmt.Sprintf("%d", i+1), PageChunk: "page", PageNumber: i + 1}
	}
	return docs
}

func TestBatcherSplitsIntoBatches(t *testing.T) {
	up := &mockUploader{}
	b := NewBatcher(up, Options{BatchSize: 3})

	if err := b.AddAll(context.Background(), makeDocs(7)); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Close()

	if len(up.batches) != 3 {
		t.Fatalf("got %d batches, want 3 (3+3+1)", len(up.batches))
	}
	total := 0
	for _, batch := range up.batches {
		if len(batch) > 3 {
			t.Errorf("batch size %d exceeds limit 3", len(batch))
		}
		total += len(batch)
	}
	if total != 7 {
		t.Errorf("dispatched %d documents, want 7", total)
	}

	stats := b.Stats()
	if stats.Batches != 3 || stats.Succeeded != 3 || stats.DocumentsIndexed != 7 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatcherHooksObserveLifecycle(t *testing.T) {
	var mu sync.Mutex
	assembled := map[string]int{}
	succeeded := map[string]int{}

	up := &mockUploader{}
	b := NewBatcher(up, Options{
		BatchSize: 2,
		Hooks: Hooks{
			BatchAssembled: func(batchID string, size int) {
				mu.Lock()
				assembled[batchID] = size
				mu.Unlock()
			},
			BatchSucceeded: func(batchID string, indexed int) {
				mu.Lock()
				succeeded[batchID] = indexed
				mu.Unlock()
			},
		},
	})

	if err := b.AddAll(context.Background(), makeDocs(4)); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Close()

	if len(assembled) != 2 {
		t.Fatalf("assembled %d batches, want 2", len(assembled))
	}
	for id, size := range assembled {
		if succeeded[id] != size {
			t.Errorf("batch %s assembled %d but succeeded %d", id, size, succeeded[id])
		}
	}
}

func TestBatcherDispatchHookPerDocument(t *testing.T) {
	var mu sync.Mutex
	var events []string

	up := &mockUploader{}
	b := NewBatcher(up, Options{
		Action:      "mergeOrUpload",
		BatchSize:   4,
		MaxInFlight: 1,
		Hooks: Hooks{
			Dispatch: func(action, key string) {
				mu.Lock()
				events = append(events, action+":"+key)
				mu.Unlock()
			},
			BatchSucceeded: func(batchID string, indexed int) {
				mu.Lock()
				events = append(events, "succeeded")
				mu.Unlock()
			},
		},
	})

	if err := b.AddAll(context.Background(), makeDocs(4)); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Close()

	if len(events) != 5 {
		t.Fatalf("events = %v, want 4 dispatches plus one outcome", events)
	}
	for i := 0; i < 4; i++ {
		want := fmt.Sprintf("mergeOrUpload:%d", i+1)
		if events[i] != want {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want)
		}
	}
	if events[4] != "succeeded" {
		t.Errorf("events[4] = %q, want the batch outcome last", events[4])
	}
}

func TestBatcherFailureDoesNotFailFlush(t *testing.T) {
	var mu sync.Mutex
	var failedKeys []string

	up := &mockUploader{
		uploadFn: func(docs []search.Document, action string) ([]search.IndexingResult, error) {
			return nil, errors.New("service unavailable")
		},
	}
	b := NewBatcher(up, Options{
		BatchSize: 2,
		Hooks: Hooks{
			BatchFailed: func(batchID string, keys []string, err error) {
				mu.Lock()
				failedKeys = append(failedKeys, keys...)
				mu.Unlock()
			},
		},
	})

	if err := b.AddAll(context.Background(), makeDocs(2)); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush should not report batch failures, got %v", err)
	}
	b.Close()

	if len(failedKeys) != 2 {
		t.Errorf("failed keys = %v, want both documents", failedKeys)
	}
	stats := b.Stats()
	if stats.Failed != 1 || stats.Succeeded != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatcherPartialRejection(t *testing.T) {
	var mu sync.Mutex
	var failed []string

	up := &mockUploader{
		uploadFn: func(docs []search.Document, action string) ([]search.IndexingResult, error) {
			results := make([]search.IndexingResult, len(docs))
			for i, d := range docs {
				ok := d.ID != "2"
				results[i] = search.IndexingResult{Key: d.ID, Succeeded: ok}
			}
			return results, nil
		},
	}
	b := NewBatcher(up, Options{
		BatchSize: 3,
		Hooks: Hooks{
			BatchFailed: func(batchID string, keys []string, err error) {
				mu.Lock()
				failed = append(failed, keys...)
				mu.Unlock()
			},
		},
	})

	if err := b.AddAll(context.Background(), makeDocs(3)); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Close()

	if len(failed) != 1 || failed[0] != "2" {
		t.Errorf("failed keys = %v, want [2]", failed)
	}
	if stats := b.Stats(); stats.DocumentsIndexed != 2 {
		t.Errorf("DocumentsIndexed = %d, want 2", stats.DocumentsIndexed)
	}
}

func TestBatcherAddAfterClose(t *testing.T) {
	b := NewBatcher(&mockUploader{}, Options{})
	b.Close()

	if err := b.Add(context.Background(), search.Document{ID: "1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Add after Close = %v, want ErrClosed", err)
	}
	if err := b.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v, want ErrClosed", err)
	}
}

func TestBatcherCloseIsIdempotent(t *testing.T) {
	b := NewBatcher(&mockUploader{}, Options{})
	b.Close()
	b.Close()
}

func TestWithBatcherClosesOnError(t *testing.T) {
	var captured *Batcher
	wantErr := errors.New("boom")

	err := WithBatcher(&mockUploader{}, Options{}, func(b *Batcher) error {
		captured = b
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want boom", err)
	}
	if addErr := captured.Add(context.Background(), search.Document{ID: "1"}); !errors.Is(addErr, ErrClosed) {
		t.Errorf("batcher not closed after WithBatcher, Add = %v", addErr)
	}
}
