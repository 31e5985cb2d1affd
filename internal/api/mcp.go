package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aneven/knowd/internal/engine"
	"github.com/aneven/knowd/internal/feedback"
)

// NewMCPServer creates an MCP server exposing the knowledge base to MCP
// clients: an ask tool over the full query pipeline, a rate_answer tool for
// feedback, and a training stats resource.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	s := server.NewMCPServer(
		"knowd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("knowd: role-aware retrieval over the internal knowledge base with feedback-driven corrections."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question against the internal knowledge base. Results are filtered by the caller's role."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Caller role, determines visible document categories"), mcp.Required()),
			mcp.WithNumber("max_results", mcp.Description("Maximum supporting documents (default 5, max 20)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("rate_answer",
			mcp.WithDescription("Rate a previous answer from 1 to 5, optionally with a corrected answer."),
			mcp.WithString("query", mcp.Description("The original question"), mcp.Required()),
			mcp.WithString("response", mcp.Description("The answer being rated"), mcp.Required()),
			mcp.WithNumber("rating", mcp.Description("Rating from 1 (wrong) to 5 (perfect)"), mcp.Required()),
			mcp.WithString("role", mcp.Description("Caller role"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional free-form comment")),
			mcp.WithString("correction", mcp.Description("Optional corrected answer, becomes high-priority training data")),
		),
		mcpRateAnswer(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"training://stats",
			"Training Statistics",
			mcp.WithResourceDescription("Feedback and training pair aggregates as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTrainingStats(deps),
	)

	return s
}

func mcpAsk(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		role, err := req.RequireString("role")
		if err != nil {
			return mcpError("role is required"), nil
		}
		eq := engine.NewRequest()
		eq.Query = q
		eq.Role = role
		eq.MaxResults = req.GetInt("max_results", 0)

		resp, err := deps.Engine.Query(ctx, eq)
		if errors.Is(err, engine.ErrValidation) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			deps.Log.Error("query failed", "error", err)
			return mcpError("query failed"), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			deps.Log.Error("failed to marshal response", "error", err)
			return mcpError("failed to marshal response"), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRateAnswer(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		response, err := req.RequireString("response")
		if err != nil {
			return mcpError("response is required"), nil
		}
		rating, err := req.RequireInt("rating")
		if err != nil {
			return mcpError("rating is required"), nil
		}
		role, err := req.RequireString("role")
		if err != nil {
			return mcpError("role is required"), nil
		}

		rec, err := deps.Feedback.Collect(feedback.Submission{
			Query:      q,
			Response:   response,
			Rating:     rating,
			Comment:    req.GetString("comment", ""),
			Correction: req.GetString("correction", ""),
			Role:       role,
		})
		if errors.Is(err, feedback.ErrInvalid) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			deps.Log.Error("failed to save feedback", "error", err)
			return mcpError("failed to save feedback"), nil
		}

		return mcpText(fmt.Sprintf("Recorded feedback %s", rec.ID)), nil
	}
}

func mcpResourceTrainingStats(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		fb, err := deps.Feedback.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
		}
		tr, err := deps.Pipeline.TrainingStats()
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate training pairs: %w", err)
		}

		b, err := json.Marshal(map[string]any{
			"feedback_total":     fb.Total,
			"feedback_processed": fb.Processed,
			"avg_rating":         fb.AvgRating,
			"training_pairs":     tr.TotalPairs,
			"avg_quality":        tr.AvgQuality,
			"needs_review":       tr.NeedsReview,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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
