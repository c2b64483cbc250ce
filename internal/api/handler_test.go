package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/search"
)

type mockAnswerer struct {
	askFn func(question string) (*search.RetrievalResponse, error)
}

func (m *mockAnswerer) Ask(ctx context.Context, question string) (*search.RetrievalResponse, error) {
	return m.askFn(question)
}

type mockStatus struct {
	count int64
	err   error
}

func (m *mockStatus) DocumentCount(ctx context.Context) (int64, error) {
	return m.count, m.err
}

type mockRunStore struct {
	runs    []journal.Run
	batches []journal.Batch
	queries []journal.Query
}

func (m *mockRunStore) ListRuns(limit int) ([]journal.Run, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *mockRunStore) GetRun(id string) (journal.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return journal.Run{}, journal.ErrNotFound
}

func (m *mockRunStore) ListBatches(runID string) ([]journal.Batch, error) { return m.batches, nil }
func (m *mockRunStore) ListQueries(runID string) ([]journal.Query, error) { return m.queries, nil }

func newTestHandler(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	if deps.Token == "" {
		deps.Token = "test-token"
	}
	if deps.IndexName == "" {
		deps.IndexName = "earth_at_night"
	}
	ts := httptest.NewServer(NewHandler(deps))
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestHandler(t, Deps{Status: &mockStatus{}})

	resp := doRequest(t, "GET", ts.URL+"/health", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusRequiresAuth(t *testing.T) {
	ts := newTestHandler(t, Deps{Status: &mockStatus{count: 25}})

	resp := doRequest(t, "GET", ts.URL+"/status", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, "GET", ts.URL+"/status", "wrong-token", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusReportsCount(t *testing.T) {
	ts := newTestHandler(t, Deps{Status: &mockStatus{count: 25}})

	resp := doRequest(t, "GET", ts.URL+"/status", "test-token", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Index string `json:"index"`
		Count int64  `json:"document_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Index != "earth_at_night" || body.Count != 25 {
		t.Errorf("body = %+v", body)
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	answerer := &mockAnswerer{
		askFn: func(question string) (*search.RetrievalResponse, error) {
			if question != "why lava" {
				t.Errorf("question = %q", question)
			}
			return &search.RetrievalResponse{
				Response:   []search.Message{search.TextMessage("assistant", "because it glows")},
				References: []search.Reference{{Type: "azureSearchDoc", DocKey: "7", RerankerScore: 3.1}},
			}, nil
		},
	}
	ts := newTestHandler(t, Deps{Status: &mockStatus{}, Answerer: answerer})

	resp := doRequest(t, "POST", ts.URL+"/query", "test-token", `{"question":"why lava"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Answer     string `json:"answer"`
		References []struct {
			Type   string `json:"type"`
			DocKey string `json:"docKey"`
		} `json:"references"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Answer != "because it glows" {
		t.Errorf("answer = %q", body.Answer)
	}
	if len(body.References) != 1 || body.References[0].DocKey != "7" || body.References[0].Type != "azureSearchDoc" {
		t.Errorf("references = %+v", body.References)
	}
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	ts := newTestHandler(t, Deps{Status: &mockStatus{}, Answerer: &mockAnswerer{}})

	resp := doRequest(t, "POST", ts.URL+"/query", "test-token", `{"question":""}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRunsEndpoints(t *testing.T) {
	runs := &mockRunStore{
		runs: []journal.Run{
			{ID: "run-1", Status: journal.StatusCompleted, DocCount: 25},
		},
		batches: []journal.Batch{{RunID: "run-1", Seq: 1, BatchID: "aaaa1111", Size: 25, Indexed: 25, Status: "succeeded"}},
	}
	ts := newTestHandler(t, Deps{Status: &mockStatus{}, Runs: runs})

	resp := doRequest(t, "GET", ts.URL+"/runs", "test-token", "")
	defer resp.Body.Close()
	var list []journal.Run
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "run-1" {
		t.Errorf("runs = %+v", list)
	}

	resp2 := doRequest(t, "GET", ts.URL+"/runs/run-1", "test-token", "")
	defer resp2.Body.Close()
	var detail struct {
		Run     journal.Run     `json:"run"`
		Batches []journal.Batch `json:"batches"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Run.ID != "run-1" || len(detail.Batches) != 1 {
		t.Errorf("detail = %+v", detail)
	}

	resp3 := doRequest(t, "GET", ts.URL+"/runs/missing", "test-token", "")
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", resp3.StatusCode)
	}
}

func TestRunsWithoutJournal(t *testing.T) {
	ts := newTestHandler(t, Deps{Status: &mockStatus{}})

	resp := doRequest(t, "GET", ts.URL+"/runs", "test-token", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when journal disabled", resp.StatusCode)
	}
}
