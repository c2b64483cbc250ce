package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/earthquery/internal/ingest"
	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/knowledge"
	"github.com/kalambet/earthquery/internal/search"
)

// DocumentSource produces the corpus to upload.
type DocumentSource interface {
	Fetch(ctx context.Context) []search.Document
}

// Journal is the subset of the run journal the pipeline records into.
type Journal interface {
	StartRun(id string, docCount int) error
	FinishRun(id, status, errMsg string) error
	RecordBatch(b journal.Batch) error
	RecordQuery(q journal.Query) error
}

// Params configures one end-to-end pipeline run.
type Params struct {
	IndexName       string
	ModelEndpoint   string
	ChatDeployment  string
	EmbedDeployment string

	SourceName         string
	BaseName           string
	RerankerThreshold  float64
	ReasoningEffort    string
	AnswerInstructions string

	UploadEnabled bool
	Cleanup       bool
	BatchSize     int
	PollInterval  time.Duration
	PollTimeout   time.Duration

	Questions []string
}

// DefaultQuestions is the chained conversation issued when no questions are
// given: the second question leans on the answer to the first.
var DefaultQuestions = []string{
	"Why do suburban belts display larger December brightening than urban cores even though absolute light levels are higher downtown?",
	"Why is the Phoenix nighttime street grid so sharply visible from space, whereas large stretches of the interstate between midwestern cities remain comparatively dim?",
}

// IndexClient binds a search client to one index, satisfying the
// per-index interfaces the upload channel and monitor expect.
type IndexClient struct {
	Client *search.Client
	Index  string
}

func (ic IndexClient) UploadDocuments(ctx context.Context, docs []search.Document, action string) ([]search.IndexingResult, error) {
	return ic.Client.UploadDocuments(ctx, ic.Index, docs, action)
}

func (ic IndexClient) DocumentCount(ctx context.Context) (int64, error) {
	return ic.Client.DocumentCount(ctx, ic.Index)
}

// Runner orchestrates the full quickstart flow: provision the index, upload
// the corpus, wait for convergence, register the knowledge source and base,
// then walk the retrieval conversation.
type Runner struct {
	client  *search.Client
	source  DocumentSource
	journal Journal // optional; nil disables run recording
	params  Params
	out     io.Writer
	logger  *slog.Logger

	seqMu sync.Mutex
}

// NewRunner creates a Runner writing human-readable progress to out.
func NewRunner(client *search.Client, source DocumentSource, jrnl Journal, params Params, out io.Writer) *Runner {
	if len(params.Questions) == 0 {
		params.Questions = DefaultQuestions
	}
	return &Runner{
		client:  client,
		source:  source,
		journal: jrnl,
		params:  params,
		out:     out,
		logger:  slog.Default(),
	}
}

// Run executes the pipeline. Batch-level upload failures do not abort the
// run; the convergence deadline surfaces any resulting shortfall.
func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.New().String()

	err := r.run(ctx, runID)
	if r.journal != nil {
		status, errMsg := journal.StatusCompleted, ""
		if err != nil {
			status, errMsg = journal.StatusFailed, err.Error()
		}
		if jerr := r.journal.FinishRun(runID, status, errMsg); jerr != nil {
			r.logger.Warn("recording run outcome", "run_id", runID, "error", jerr)
		}
	}
	if err != nil {
		return err
	}

	if r.params.Cleanup {
		return r.CleanupResources(ctx)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, runID string) error {
	fmt.Fprintf(r.out, "Creating index %q...\n", r.params.IndexName)
	idx := search.PageIndex(r.params.IndexName, r.params.ModelEndpoint, r.params.EmbedDeployment)
	if err := r.client.CreateOrUpdateIndex(ctx, idx); err != nil {
		return fmt.Errorf("creating index %q: %w", r.params.IndexName, err)
	}
	fmt.Fprintf(r.out, "Index %q created or updated\n", r.params.IndexName)

	if r.params.UploadEnabled {
		if err := r.upload(ctx, runID); err != nil {
			return err
		}
	} else {
		r.logger.Info("document upload skipped")
		if r.journal != nil {
			if err := r.journal.StartRun(runID, 0); err != nil {
				r.logger.Warn("recording run start", "error", err)
			}
		}
	}

	registrar := knowledge.NewRegistrar(r.client)
	if err := registrar.EnsureSource(ctx, knowledge.SourceSpec{
		Name:             r.params.SourceName,
		IndexName:        r.params.IndexName,
		Description:      "Earth at night e-book pages",
		SourceDataSelect: "id,page_chunk,page_number",
	}); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Knowledge source %q ready\n", r.params.SourceName)

	if err := registrar.EnsureBase(ctx, knowledge.BaseSpec{
		Name:               r.params.BaseName,
		Sources:            []string{r.params.SourceName},
		ModelEndpoint:      r.params.ModelEndpoint,
		ModelDeployment:    r.params.ChatDeployment,
		AnswerInstructions: r.params.AnswerInstructions,
	}); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Knowledge base %q ready\n", r.params.BaseName)

	session := knowledge.NewSession(r.client, r.params.BaseName, knowledge.SessionParams{
		KnowledgeSource:            r.params.SourceName,
		RerankerThreshold:          r.params.RerankerThreshold,
		AlwaysQuerySource:          true,
		IncludeReferences:          true,
		IncludeReferenceSourceData: true,
		ReasoningEffort:            r.params.ReasoningEffort,
	}, r.params.AnswerInstructions)

	for _, question := range r.params.Questions {
		if err := r.ask(ctx, session, runID, question); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) upload(ctx context.Context, runID string) error {
	docs := r.source.Fetch(ctx)
	fmt.Fprintf(r.out, "Uploading %d documents in batches of %d...\n", len(docs), r.params.BatchSize)

	if r.journal != nil {
		if err := r.journal.StartRun(runID, len(docs)); err != nil {
			r.logger.Warn("recording run start", "error", err)
		}
	}

	seq := 0
	hooks := ingest.Hooks{
		BatchAssembled: func(batchID string, size int) {
			r.logger.Info("batch assembled", "batch_id", batchID, "size", size)
		},
		Dispatch: func(action, key string) {
			r.logger.Debug("dispatching document", "action", action, "key", key)
		},
		BatchSucceeded: func(batchID string, indexed int) {
			r.logger.Info("batch indexed", "batch_id", batchID, "indexed", indexed)
			r.recordBatch(runID, &seq, batchID, indexed, indexed, "succeeded", "")
		},
		BatchFailed: func(batchID string, keys []string, err error) {
			r.recordBatch(runID, &seq, batchID, len(keys), 0, "failed", err.Error())
		},
	}

	err := ingest.WithBatcher(
		IndexClient{Client: r.client, Index: r.params.IndexName},
		ingest.Options{BatchSize: r.params.BatchSize, Hooks: hooks},
		func(b *ingest.Batcher) error {
			if err := b.AddAll(ctx, docs); err != nil {
				return err
			}
			return b.Flush(ctx)
		},
	)
	if err != nil {
		return fmt.Errorf("uploading documents: %w", err)
	}

	monitor := ingest.NewMonitor(
		IndexClient{Client: r.client, Index: r.params.IndexName},
		r.params.PollInterval, r.params.PollTimeout,
	)
	if err := monitor.AwaitCount(ctx, int64(len(docs))); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "All %d documents indexed\n", len(docs))
	return nil
}

// recordBatch serializes journal writes from concurrent dispatch hooks.
// seq approximates dispatch order; exact ordering across batches is not
// meaningful because dispatch itself is concurrent.
func (r *Runner) recordBatch(runID string, seq *int, batchID string, size, indexed int, status, errMsg string) {
	if r.journal == nil {
		return
	}
	r.seqMu.Lock()
	*seq++
	n := *seq
	r.seqMu.Unlock()

	if err := r.journal.RecordBatch(journal.Batch{
		RunID:   runID,
		Seq:     n,
		BatchID: batchID,
		Size:    size,
		Indexed: indexed,
		Status:  status,
		Error:   errMsg,
	}); err != nil {
		r.logger.Warn("recording batch", "batch_id", batchID, "error", err)
	}
}

func (r *Runner) ask(ctx context.Context, session *knowledge.Session, runID, question string) error {
	fmt.Fprintf(r.out, "\nQ: %s\n", question)

	resp, err := session.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("retrieving answer: %w", err)
	}

	fmt.Fprintf(r.out, "A: %s\n", resp.AnswerText())

	if len(resp.References) > 0 {
		refs, err := json.MarshalIndent(resp.References, "", "  ")
		if err == nil {
			fmt.Fprintf(r.out, "References:\n%s\n", refs)
		}
	}
	if len(resp.Activity) > 0 {
		activity, err := json.MarshalIndent(resp.Activity, "", "  ")
		if err == nil {
			fmt.Fprintf(r.out, "Activity:\n%s\n", activity)
		}
	}

	if r.journal != nil {
		if err := r.journal.RecordQuery(journal.Query{
			RunID:      runID,
			Question:   question,
			Answer:     resp.AnswerText(),
			References: len(resp.References),
		}); err != nil {
			r.logger.Warn("recording query", "error", err)
		}
	}
	return nil
}

// CleanupResources deletes the knowledge base, knowledge source, and index.
// Resources that are already gone are skipped.
func (r *Runner) CleanupResources(ctx context.Context) error {
	fmt.Fprintln(r.out, "Cleaning up resources...")

	if err := r.client.DeleteKnowledgeBase(ctx, r.params.BaseName); err != nil && !search.IsNotFound(err) {
		return fmt.Errorf("deleting knowledge base %q: %w", r.params.BaseName, err)
	}
	if err := r.client.DeleteKnowledgeSource(ctx, r.params.SourceName); err != nil && !search.IsNotFound(err) {
		return fmt.Errorf("deleting knowledge source %q: %w", r.params.SourceName, err)
	}
	if err := r.client.DeleteIndex(ctx, r.params.IndexName); err != nil && !search.IsNotFound(err) {
		return fmt.Errorf("deleting index %q: %w", r.params.IndexName, err)
	}

	fmt.Fprintln(r.out, "Knowledge base, knowledge source, and index deleted")
	return nil
}
