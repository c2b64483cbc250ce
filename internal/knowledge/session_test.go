package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/earthquery/internal/search"
)

// mockRetriever captures outgoing retrieval requests.
type mockRetriever struct {
	requests   []search.RetrievalRequest
	retrieveFn func(req search.RetrievalRequest) (*search.RetrievalResponse, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, base string, req search.RetrievalRequest) (*search.RetrievalResponse, error) {
	m.requests = append(m.requests, req)
	return m.retrieveFn(req)
}

func answer(text string) *search.RetrievalResponse {
	return &search.RetrievalResponse{
		Response: []search.Message{search.TextMessage("assistant", text)},
	}
}

func TestAskCarriesConversationForward(t *testing.T) {
	m := &mockRetriever{
		retrieveFn: func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
			return answer("first answer"), nil
		},
	}
	s := NewSession(m, "kb", SessionParams{KnowledgeSource: "src", RerankerThreshold: 2.5}, "")

	if _, err := s.Ask(context.Background(), "question one"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	m.retrieveFn = func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
		return answer("second answer"), nil
	}
	if _, err := s.Ask(context.Background(), "question two"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	second := m.requests[1]
	if len(second.Messages) != 3 {
		t.Fatalf("second request has %d messages, want user+assistant+user", len(second.Messages))
	}
	if second.Messages[0].Text() != "question one" {
		t.Errorf("message 0 = %q", second.Messages[0].Text())
	}
	if second.Messages[1].Role != "assistant" || second.Messages[1].Text() != "first answer" {
		t.Errorf("message 1 = %+v, want prior assistant turn", second.Messages[1])
	}
	if second.Messages[2].Text() != "question two" {
		t.Errorf("message 2 = %q", second.Messages[2].Text())
	}
}

func TestAskSendsSourceParams(t *testing.T) {
	m := &mockRetriever{
		retrieveFn: func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
			return answer("ok"), nil
		},
	}
	s := NewSession(m, "kb", SessionParams{
		KnowledgeSource:   "earth-knowledge-source",
		RerankerThreshold: 2.5,
		AlwaysQuerySource: true,
		IncludeReferences: true,
		ReasoningEffort:   "minimal",
	}, "")

	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	req := m.requests[0]
	if len(req.SourceParams) != 1 {
		t.Fatalf("source params = %+v", req.SourceParams)
	}
	sp := req.SourceParams[0]
	if sp.KnowledgeSourceName != "earth-knowledge-source" || sp.Kind != "searchIndex" {
		t.Errorf("source params = %+v", sp)
	}
	if sp.RerankerThreshold != 2.5 || !sp.AlwaysQuerySource || !sp.IncludeReferences {
		t.Errorf("source params = %+v", sp)
	}
	if req.ReasoningEffort != "minimal" {
		t.Errorf("reasoning effort = %q", req.ReasoningEffort)
	}
}

func TestAskExcludesSystemTurn(t *testing.T) {
	m := &mockRetriever{
		retrieveFn: func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
			return answer("ok"), nil
		},
	}
	s := NewSession(m, "kb", SessionParams{KnowledgeSource: "src"}, "answer from the e-book only")

	if _, err := s.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	for _, msg := range m.requests[0].Messages {
		if msg.Role == "system" {
			t.Error("system turn must not be sent to the service")
		}
	}
	if turns := s.Turns(); len(turns) != 3 || turns[0].Role != "system" {
		t.Errorf("turns = %+v, want system+user+assistant", turns)
	}
}

func TestAskRollsBackOnFailure(t *testing.T) {
	wantErr := errors.New("service down")
	m := &mockRetriever{
		retrieveFn: func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
			return nil, wantErr
		},
	}
	s := NewSession(m, "kb", SessionParams{KnowledgeSource: "src"}, "")

	if _, err := s.Ask(context.Background(), "doomed"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if turns := s.Turns(); len(turns) != 0 {
		t.Errorf("turns = %+v, want rolled-back empty conversation", turns)
	}

	m.retrieveFn = func(req search.RetrievalRequest) (*search.RetrievalResponse, error) {
		return answer("recovered"), nil
	}
	if _, err := s.Ask(context.Background(), "retry"); err != nil {
		t.Fatalf("Ask after failure: %v", err)
	}
	if len(m.requests[1].Messages) != 1 {
		t.Errorf("retry carried %d messages, want only the retry question", len(m.requests[1].Messages))
	}
}
