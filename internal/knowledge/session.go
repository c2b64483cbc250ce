package knowledge

import (
	"context"
	"sync"

	"github.com/kalambet/earthquery/internal/search"
)

// RetrieveClient is the subset of the search client used by a session.
type RetrieveClient interface {
	Retrieve(ctx context.Context, base string, req search.RetrievalRequest) (*search.RetrievalResponse, error)
}

// SessionParams tune source selection for every query in a session.
type SessionParams struct {
	KnowledgeSource            string
	RerankerThreshold          float64
	AlwaysQuerySource          bool
	IncludeReferences          bool
	IncludeReferenceSourceData bool
	ReasoningEffort            string
}

// Session issues chained natural-language queries against a knowledge base.
// The conversation is entirely client-maintained: each Ask appends the user
// turn, submits every accumulated non-system turn, and on success appends
// the assistant's synthesized answer so the next query carries full context.
type Session struct {
	client RetrieveClient
	base   string
	params SessionParams

	mu    sync.Mutex
	turns []search.Message
}

// NewSession creates a Session. A non-empty systemPrompt is recorded as a
// system turn, which is kept out of outgoing payloads.
func NewSession(client RetrieveClient, base string, params SessionParams, systemPrompt string) *Session {
	s := &Session{client: client, base: base, params: params}
	if systemPrompt != "" {
		s.turns = append(s.turns, search.TextMessage("system", systemPrompt))
	}
	return s
}

// Ask submits one query. On failure the user turn is rolled back so the
// conversation stays consistent with what the service has seen; further
// turns should not be attempted with the returned error unhandled.
func (s *Session) Ask(ctx context.Context, question string) (*search.RetrievalResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, search.TextMessage("user", question))

	req := search.RetrievalRequest{
		Messages: nonSystem(s.turns),
		SourceParams: []search.KnowledgeSourceParams{
			{
				KnowledgeSourceName:        s.params.KnowledgeSource,
				Kind:                       "searchIndex",
				RerankerThreshold:          s.params.RerankerThreshold,
				AlwaysQuerySource:          s.params.AlwaysQuerySource,
				IncludeReferences:          s.params.IncludeReferences,
				IncludeReferenceSourceData: s.params.IncludeReferenceSourceData,
			},
		},
		ReasoningEffort: s.params.ReasoningEffort,
	}

	resp, err := s.client.Retrieve(ctx, s.base, req)
	if err != nil {
		s.turns = s.turns[:len(s.turns)-1]
		return nil, err
	}

	s.turns = append(s.turns, search.TextMessage("assistant", resp.AnswerText()))
	return resp, nil
}

// Turns returns a copy of the accumulated conversation.
func (s *Session) Turns() []search.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]search.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

func nonSystem(turns []search.Message) []search.Message {
	out := make([]search.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == "system" {
			continue
		}
		out = append(out, t)
	}
	return out
}
