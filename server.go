package plansearch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const Version = "1.0.0"

const ToolPlanSearch = "plan-search"

// NewServer exposes the pipeline as an MCP server with a single plan-search tool.
func NewServer(serverName string, gen orchestrator.Generator) *server.MCPServer {
	if serverName == "" {
		serverName = config.Default().Server.Name
	}
	mcpServer := server.NewMCPServer(
		serverName,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Answers questions by classifying intent, planning searches across web, video and internal documents, and generating a grounded answer"),
	)

	mcpServer.AddTool(
		mcp.NewToolWithRawSchema(ToolPlanSearch, "Plan searches for a question, retrieve web, video and document context, and answer from it", GetPlanSearchSchema()),
		HandlePlanSearch(gen),
	)
	return mcpServer
}

// GetPlanSearchSchema returns the input schema of the plan-search tool.
func GetPlanSearchSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "The question to answer"},
			"locale": {"type": "string", "description": "Answer locale such as ko-KR or en-US"},
			"search_engine": {"type": "string", "enum": ["grounding", "search_crawling", "grounding_crawling"]},
			"max_tokens": {"type": "integer", "minimum": 1},
			"temperature": {"type": "number", "minimum": 0, "maximum": 2},
			"query_rewrite": {"type": "boolean", "default": true},
			"planning": {"type": "boolean", "default": true},
			"elapsed_time": {"type": "boolean", "default": true},
			"include_web_search": {"type": "boolean", "default": true},
			"include_ytb_search": {"type": "boolean", "default": true},
			"include_mcp_server": {"type": "boolean", "default": true},
			"include_ai_search": {"type": "boolean", "default": true}
		},
		"required": ["query"]
	}`)
}

// HandlePlanSearch runs one non-streaming request and returns the answer text.
func HandlePlanSearch(gen orchestrator.Generator) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("invalid query: must be a non-empty string"), nil
		}

		req, err := toolRequest(request, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		answer, err := orchestrator.Collect(gen.Generate(ctx, req))
		if err != nil {
			logger.Errorf("plan-search tool failed: %v", err)
			return mcp.NewToolResultError("plan search failed: " + err.Error()), nil
		}
		return mcp.NewToolResultText(answer), nil
	}
}

func toolRequest(request mcp.CallToolRequest, query string) (orchestrator.Request, error) {
	req := orchestrator.NewRequest(schema.ChatMessage{Role: schema.RoleUser, Content: query})
	req.Locale = request.GetString("locale", "")
	if engine := request.GetString("search_engine", ""); engine != "" {
		parsed, err := config.ParseSearchEngine(engine)
		if err != nil {
			return req, err
		}
		req.SearchEngine = parsed
	}
	req.MaxTokens = request.GetInt("max_tokens", 0)
	if _, ok := request.GetArguments()["temperature"]; ok {
		t := request.GetFloat("temperature", 0)
		req.Temperature = &t
	}
	req.QueryRewrite = request.GetBool("query_rewrite", req.QueryRewrite)
	req.Planning = request.GetBool("planning", req.Planning)
	req.ElapsedTime = request.GetBool("elapsed_time", req.ElapsedTime)
	req.IncludeWebSearch = request.GetBool("include_web_search", req.IncludeWebSearch)
	req.IncludeYtbSearch = request.GetBool("include_ytb_search", req.IncludeYtbSearch)
	req.IncludeMCPServer = request.GetBool("include_mcp_server", req.IncludeMCPServer)
	req.IncludeAISearch = request.GetBool("include_ai_search", req.IncludeAISearch)
	return req, nil
}
