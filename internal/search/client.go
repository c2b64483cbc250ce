package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const maxErrorBodySize = 64 << 10 // 64KB

// StatusError is returned for any non-success response from the search
// service. The response body is preserved for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("search service returned %d", e.Code)
	}
	return fmt.Sprintf("search service returned %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a StatusError with a 404 code. Used to
// distinguish an expected probe miss from a hard failure.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client communicates with the search service management and retrieval REST
// APIs. Authentication is an api-key header; every request carries an
// api-version query parameter.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	httpClient *http.Client
}

// New creates a Client for the given service endpoint.
func New(endpoint, apiKey, apiVersion string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: apiVersion,
		httpClient: &http.Client{},
	}
}

func (c *Client) url(path string) string {
	return c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)
}

// do issues a JSON request and decodes the response into out when out is
// non-nil. Non-2xx statuses are returned as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return &StatusError{Code: resp.StatusCode}
	}
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}

// --- Index management ---

// CreateOrUpdateIndex creates the index or replaces its definition.
func (c *Client) CreateOrUpdateIndex(ctx context.Context, index Index) error {
	if err := c.do(ctx, http.MethodPut, "/indexes/"+index.Name, index, nil); err != nil {
		return fmt.Errorf("creating index %q: %w", index.Name, err)
	}
	return nil
}

// DeleteIndex removes the index and all its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/indexes/"+name, nil, nil); err != nil {
		return fmt.Errorf("deleting index %q: %w", name, err)
	}
	return nil
}

// DocumentCount returns the number of documents the index currently reports.
// The count endpoint responds with a bare integer body, not JSON.
func (c *Client) DocumentCount(ctx context.Context, index string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/indexes/"+index+"/docs/$count"), nil)
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("reading document count: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("reading count body: %w", err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing document count %q: %w", string(data), err)
	}
	return n, nil
}

// indexAction wraps a document with its batch action tag.
type indexAction struct {
	Action string `json:"@search.action"`
	Document
}

type indexBatchRequest struct {
	Value []indexAction `json:"value"`
}

type indexBatchResponse struct {
	Value []IndexingResult `json:"value"`
}

// UploadDocuments submits one batch of documents with the given action tag
// ("upload", "merge", "mergeOrUpload", or "delete") and returns the
// per-document results.
func (c *Client) UploadDocuments(ctx context.Context, index string, docs []Document, action string) ([]IndexingResult, error) {
	batch := indexBatchRequest{Value: make([]indexAction, len(docs))}
	for i, d := range docs {
		batch.Value[i] = indexAction{Action: action, Document: d}
	}

	var out indexBatchResponse
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/index", batch, &out); err != nil {
		return nil, fmt.Errorf("uploading %d documents to %q: %w", len(docs), index, err)
	}
	return out.Value, nil
}

// --- Knowledge registration ---

// GetKnowledgeSource reads a knowledge source by name. A missing source is
// reported as a *StatusError satisfying IsNotFound.
func (c *Client) GetKnowledgeSource(ctx context.Context, name string) (*KnowledgeSource, error) {
	var ks KnowledgeSource
	if err := c.do(ctx, http.MethodGet, "/knowledgeSources/"+name, nil, &ks); err != nil {
		return nil, err
	}
	return &ks, nil
}

// CreateKnowledgeSource registers a new knowledge source.
func (c *Client) CreateKnowledgeSource(ctx context.Context, ks KnowledgeSource) error {
	if err := c.do(ctx, http.MethodPut, "/knowledgeSources/"+ks.Name, ks, nil); err != nil {
		return fmt.Errorf("creating knowledge source %q: %w", ks.Name, err)
	}
	return nil
}

// DeleteKnowledgeSource removes a knowledge source.
func (c *Client) DeleteKnowledgeSource(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/knowledgeSources/"+name, nil, nil); err != nil {
		return fmt.Errorf("deleting knowledge source %q: %w", name, err)
	}
	return nil
}

// CreateOrUpdateKnowledgeBase registers the knowledge base, replacing any
// existing definition with the same name.
func (c *Client) CreateOrUpdateKnowledgeBase(ctx context.Context, kb KnowledgeBase) error {
	if err := c.do(ctx, http.MethodPut, "/knowledgeBases/"+kb.Name, kb, nil); err != nil {
		return fmt.Errorf("upserting knowledge base %q: %w", kb.Name, err)
	}
	return nil
}

// DeleteKnowledgeBase removes a knowledge base.
func (c *Client) DeleteKnowledgeBase(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/knowledgeBases/"+name, nil, nil); err != nil {
		return fmt.Errorf("deleting knowledge base %q: %w", name, err)
	}
	return nil
}

// --- Retrieval ---

// Retrieve submits a conversation plus source-selection parameters to the
// knowledge base and returns the synthesized response. Non-success statuses
// surface as *StatusError with the response body attached.
func (c *Client) Retrieve(ctx context.Context, base string, req RetrievalRequest) (*RetrievalResponse, error) {
	var out RetrievalResponse
	if err := c.do(ctx, http.MethodPost, "/knowledgeBases/"+base+"/retrieve", req, &out); err != nil {
		return nil, fmt.Errorf("retrieving from knowledge base %q: %w", base, err)
	}
	return &out, nil
}
