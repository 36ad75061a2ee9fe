package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agendia/assistant/internal/catalog"
	"github.com/agendia/assistant/internal/pipeline"
)

// MCPDeps holds the MCP server's dependencies.
type MCPDeps struct {
	Ask   AskService
	Cache CacheInvalidator
}

// NewMCPServer creates an MCP server exposing the assistant to agent
// clients: an ask tool, a cache-invalidation tool for content deploys, and
// the module catalog as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"agendia-assistant",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Agendia assistant — answers questions about the Agendia application, in Spanish, grounded in its documentation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the Agendia assistant a question about the application. Answers are in Spanish."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("sessionId", mcp.Description("Conversation session id; omit to start a fresh session")),
			mcp.WithString("userId", mcp.Description("Account id for usage attribution")),
			mcp.WithString("currentPath", mcp.Description("UI path the user is looking at (e.g. /appointments)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("invalidate_cache",
			mcp.WithDescription("Drop cached answers that used a module's documentation. Call after deploying new docs for that module."),
			mcp.WithString("module", mcp.Description("Module id (e.g. schedules)"), mcp.Required()),
		),
		mcpInvalidateCache(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"agendia://modules",
			"Module Catalog",
			mcp.WithResourceDescription("The Agendia module catalog as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceModules(),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		sessionID := req.GetString("sessionId", "")
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		askReq := pipeline.Request{
			Question:  question,
			SessionID: sessionID,
			UserID:    req.GetString("userId", ""),
		}
		if path := req.GetString("currentPath", ""); path != "" {
			askReq.UIContext = &pipeline.UIContext{CurrentPath: path}
		}

		resp, err := deps.Ask.Ask(ctx, askReq)
		if err != nil {
			var pe *pipeline.Error
			if errors.As(err, &pe) {
				return mcpError(pe.Message), nil
			}
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		type askResult struct {
			Answer      string            `json:"answer"`
			Sources     []pipeline.Source `json:"sources"`
			Confidence  string            `json:"confidence"`
			Cached      bool              `json:"cached"`
			ModulesUsed []string          `json:"modulesUsed"`
			SessionID   string            `json:"sessionId"`
		}

		b, err := json.Marshal(askResult{
			Answer:      resp.Answer,
			Sources:     resp.Sources,
			Confidence:  string(resp.Confidence),
			Cached:      resp.Cached,
			ModulesUsed: resp.ModulesUsed,
			SessionID:   sessionID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpInvalidateCache(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		moduleID, err := req.RequireString("module")
		if err != nil {
			return mcpError("module is required"), nil
		}
		if _, ok := catalog.ByID(moduleID); !ok {
			return mcpError(fmt.Sprintf("unknown module %q", moduleID)), nil
		}

		removed, err := deps.Cache.Invalidate(ctx, moduleID)
		if err != nil {
			return mcpError(fmt.Sprintf("invalidation failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Removed %d cached answers for module %s", removed, moduleID)), nil
	}
}

func mcpResourceModules() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type moduleInfo struct {
			ID          string   `json:"id"`
			Name        string   `json:"name"`
			Description string   `json:"description"`
			Keywords    []string `json:"keywords"`
			Submodules  []string `json:"submodules"`
		}

		infos := make([]moduleInfo, len(catalog.Modules))
		for i, m := range catalog.Modules {
			subs := make([]string, len(m.Submodules))
			for j, s := range m.Submodules {
				subs[j] = s.ID
			}
			infos[i] = moduleInfo{
				ID:          m.ID,
				Name:        m.Name,
				Description: m.Description,
				Keywords:    m.Keywords,
				Submodules:  subs,
			}
		}

		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal module catalog: %w", err)
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
