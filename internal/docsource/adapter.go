package docsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kalambet/earthquery/internal/search"
)

const maxCorpusSize = 64 << 20 // 64MB

// placeholderEmbeddingValue fills every position of a generated embedding
// when a record arrives without one. The index's vectorizer handles query
// vectorization, so a constant document vector still exercises the pipeline.
const placeholderEmbeddingValue = 0.0001

// Adapter fetches the document corpus. When Path is set it loads a local
// JSON or PDF corpus; otherwise it performs exactly one GET of URL. Any
// fetch or decode failure falls back to the built-in corpus so downstream
// stages can still run.
type Adapter struct {
	URL  string
	Path string

	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Adapter for a remote corpus URL.
func New(url string) *Adapter {
	return &Adapter{
		URL:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
}

// NewLocal creates an Adapter for a local corpus file (.json or .pdf).
func NewLocal(path string) *Adapter {
	return &Adapter{
		Path:   path,
		logger: slog.Default(),
	}
}

// Fetch returns the corpus. It never fails: on any error the deterministic
// fallback corpus is returned instead.
func (a *Adapter) Fetch(ctx context.Context) []search.Document {
	docs, err := a.fetch(ctx)
	if err != nil {
		a.logger.Warn("corpus fetch failed, using fallback corpus", "error", err)
		return FallbackCorpus()
	}
	if len(docs) == 0 {
		a.logger.Warn("corpus is empty, using fallback corpus")
		return FallbackCorpus()
	}
	return docs
}

func (a *Adapter) fetch(ctx context.Context) ([]search.Document, error) {
	if a.Path != "" {
		return LoadPath(a.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating corpus request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching corpus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("corpus fetch returned status %d", resp.StatusCode)
	}

	var raws []rawDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCorpusSize)).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding corpus: %w", err)
	}
	return Normalize(raws), nil
}

// rawDocument tolerates the corpus's loose record shape: ids may be strings
// or numbers, content may arrive under either field name, and embeddings
// and page ordinals may be absent.
type rawDocument struct {
	ID         any       `json:"id"`
	PageChunk  *string   `json:"page_chunk"`
	Content    *string   `json:"content"`
	Embedding  []float32 `json:"page_embedding_text_3_large"`
	PageNumber *int      `json:"page_number"`
}

// Normalize maps raw records onto the index schema. Missing identifiers
// default to a position-based string, missing content to "", missing or
// wrong-length embeddings to the placeholder vector, and missing page
// ordinals to position+1.
func Normalize(raws []rawDocument) []search.Document {
	docs := make([]search.Document, len(raws))
	for i, r := range raws {
		d := search.Document{
			ID:         recordID(r.ID, i),
			Embedding:  r.Embedding,
			PageNumber: i + 1,
		}
		switch {
		case r.PageChunk != nil:
			d.PageChunk = *r.PageChunk
		case r.Content != nil:
			d.PageChunk = *r.Content
		}
		if len(d.Embedding) != search.EmbeddingDimensions {
			d.Embedding = placeholderEmbedding()
		}
		if r.PageNumber != nil && *r.PageNumber > 0 {
			d.PageNumber = *r.PageNumber
		}
		docs[i] = d
	}
	return docs
}

func recordID(v any, position int) string {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	return strconv.Itoa(position + 1)
}

func placeholderEmbedding() []float32 {
	vec := make([]float32, search.EmbeddingDimensions)
	for i := range vec {
		vec[i] = placeholderEmbeddingValue
	}
	return vec
}

// FallbackCorpus is the deterministic two-document corpus used when the
// real one cannot be fetched.
func FallbackCorpus() []search.Document {
	return []search.Document{
		{
			ID: "1",
			PageChunk: "Nighttime satellite imagery makes active lava flows stand out sharply " +
				"against the dark landscape. During the 2018 Kilauea eruption, the glow of " +
				"lava channels was bright enough to be tracked from orbit night after night, " +
				"letting observers find fresh lava at night without ground access.",
			Embedding:  placeholderEmbedding(),
			PageNumber: 1,
		},
		{
			ID: "2",
			PageChunk: "City lights trace human settlement patterns after dark. Suburban belts " +
				"often brighten more visibly in December imagery than dense urban cores, and " +
				"grid-planned streets such as those of Phoenix remain clearly legible from space.",
			Embedding:  placeholderEmbedding(),
			PageNumber: 2,
		},
	}
}
