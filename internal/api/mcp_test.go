package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/earthquery/internal/journal"
	"github.com/kalambet/earthquery/internal/search"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_KnowledgeQuery(t *testing.T) {
	deps := MCPDeps{
		IndexName: "earth_at_night",
		Answerer: &mockAnswerer{
			askFn: func(question string) (*search.RetrievalResponse, error) {
				return &search.RetrievalResponse{
					Response:   []search.Message{search.TextMessage("assistant", "it glows")},
					References: []search.Reference{{Type: "azureSearchDoc", DocKey: "4", RerankerScore: 2.9}},
				}, nil
			},
		},
	}
	handler := mcpKnowledgeQuery(deps)

	result, err := handler(context.Background(), makeCallToolRequest("knowledge_query", map[string]interface{}{
		"question": "why is lava visible at night",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var body struct {
		Answer     string `json:"answer"`
		References []struct {
			DocKey string `json:"doc_key"`
		} `json:"references"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &body); err != nil {
		t.Fatalf("parsing tool output: %v", err)
	}
	if body.Answer != "it glows" || len(body.References) != 1 || body.References[0].DocKey != "4" {
		t.Errorf("body = %+v", body)
	}
}

func TestMCPTool_KnowledgeQuery_MissingQuestion(t *testing.T) {
	handler := mcpKnowledgeQuery(MCPDeps{Answerer: &mockAnswerer{}})

	result, err := handler(context.Background(), makeCallToolRequest("knowledge_query", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing question")
	}
}

func TestMCPTool_KnowledgeQuery_RetrievalError(t *testing.T) {
	handler := mcpKnowledgeQuery(MCPDeps{
		Answerer: &mockAnswerer{
			askFn: func(question string) (*search.RetrievalResponse, error) {
				return nil, errors.New("service down")
			},
		},
	})

	result, err := handler(context.Background(), makeCallToolRequest("knowledge_query", map[string]interface{}{
		"question": "q",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error when retrieval fails")
	}
}

func TestMCPTool_IndexStatus(t *testing.T) {
	handler := mcpIndexStatus(MCPDeps{
		IndexName: "earth_at_night",
		Status:    &mockStatus{count: 25},
	})

	result, err := handler(context.Background(), makeCallToolRequest("index_status", nil))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var body struct {
		Index string `json:"index"`
		Count int64  `json:"document_count"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &body); err != nil {
		t.Fatal(err)
	}
	if body.Index != "earth_at_night" || body.Count != 25 {
		t.Errorf("body = %+v", body)
	}
}

func TestMCPResource_RecentRuns(t *testing.T) {
	handler := mcpResourceRuns(MCPDeps{
		Runs: &mockRunStore{
			runs: []journal.Run{{ID: "run-1", Status: journal.StatusCompleted, DocCount: 25}},
		},
	})

	contents, err := handler(context.Background(), makeReadResourceRequest("runs://recent"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}

	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var runs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(text.Text), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestMCPResource_RunsDisabled(t *testing.T) {
	handler := mcpResourceRuns(MCPDeps{})
	if _, err := handler(context.Background(), makeReadResourceRequest("runs://recent")); err == nil {
		t.Error("expected error when journal disabled")
	}
}
