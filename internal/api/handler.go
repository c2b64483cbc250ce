package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/search"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Answerer abstracts a retrieval session for the API layer.
type Answerer interface {
	Ask(ctx context.Context, question string) (*search.RetrievalResponse, error)
}

// StatusReader reports how many documents the index currently holds.
type StatusReader interface {
	DocumentCount(ctx context.Context) (int64, error)
}

// RunStore abstracts the run journal for the API layer.
type RunStore interface {
	ListRuns(limit int) ([]journal.Run, error)
	GetRun(id string) (journal.Run, error)
	ListBatches(runID string) ([]journal.Batch, error)
	ListQueries(runID string) ([]journal.Query, error)
}

// Deps holds dependencies for the HTTP gateway.
type Deps struct {
	Token     string
	IndexName string
	Status    StatusReader
	Answerer  Answerer
	Runs      RunStore // optional; if nil, run endpoints return 404
}

// NewHandler returns the HTTP gateway. /health is open; everything else
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/status", handleStatus(deps))
		r.Post("/query", handleQuery(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Status.DocumentCount(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to read document count: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"index":          deps.IndexName,
			"document_count": count,
		})
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Answer     string             `json:"answer"`
	References []search.Reference `json:"references"`
	Activity   []search.Activity  `json:"activity,omitempty"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		resp, err := deps.Answerer.Ask(r.Context(), req.Question)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "retrieval failed: %v", err)
			return
		}

		refs := resp.References
		if refs == nil {
			refs = []search.Reference{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(queryResponse{
			Answer:     resp.AnswerText(),
			References: refs,
			Activity:   resp.Activity,
		})
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusNotFound, "not_found", "run journal not enabled")
			return
		}

		limit := parseIntParam(r, "limit", 20, 100)
		runs, err := deps.Runs.ListRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []journal.Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusNotFound, "not_found", "run journal not enabled")
			return
		}

		id := chi.URLParam(r, "id")

		run, err := deps.Runs.GetRun(id)
		if errors.Is(err, journal.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
			return
		}

		batches, err := deps.Runs.ListBatches(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list batches: %v", err)
			return
		}
		queries, err := deps.Runs.ListQueries(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list queries: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"run":     run,
			"batches": batches,
			"queries": queries,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
