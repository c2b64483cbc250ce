package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	IndexName string
	Status    StatusReader
	Answerer  Answerer
	Runs      RunStore // optional; if nil, the runs resource returns an error
}

// NewMCPServer creates an MCP server exposing the knowledge base to
// MCP-capable clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"earthquery",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("earthquery answers natural-language questions from the Earth at Night knowledge base with page-level citations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("knowledge_query",
			mcp.WithDescription("Ask the knowledge base a natural-language question and get a grounded answer with citations."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpKnowledgeQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("index_status",
			mcp.WithDescription("Report the search index name and its current document count."),
		),
		mcpIndexStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 pipeline runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRuns(deps),
	)

	return s
}

func mcpKnowledgeQuery(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		resp, err := deps.Answerer.Ask(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}

		type refResult struct {
			Type   string  `json:"type"`
			DocKey string  `json:"doc_key,omitempty"`
			Score  float64 `json:"score,omitempty"`
		}

		refs := make([]refResult, len(resp.References))
		for i, r := range resp.References {
			refs[i] = refResult{Type: r.Type, DocKey: r.DocKey, Score: r.RerankerScore}
		}

		b, err := json.Marshal(map[string]any{
			"answer":     resp.AnswerText(),
			"references": refs,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpIndexStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		count, err := deps.Status.DocumentCount(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read document count: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"index":          deps.IndexName,
			"document_count": count,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpResourceRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Runs == nil {
			return nil, fmt.Errorf("run journal not enabled")
		}

		runs, err := deps.Runs.ListRuns(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			StartedAt string `json:"started_at"`
			Status    string `json:"status"`
			DocCount  int    `json:"doc_count"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			summaries[i] = runSummary{
				ID:        r.ID,
				StartedAt: r.StartedAt.Format(time.RFC3339),
				Status:    r.Status,
				DocCount:  r.DocCount,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
