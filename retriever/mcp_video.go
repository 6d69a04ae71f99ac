package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
)

const (
	mcpClientName    = "plansearch"
	mcpClientVersion = "1.0.0"
	defaultVideoTool = "search_youtube_videos"
)

// MCPVideoSearcher implements VideoSearcher by calling a video search tool on
// a remote MCP server.
type MCPVideoSearcher struct {
	client *client.Client
	tool   string
}

// NewMCPVideoSearcher connects to cfg.MCPEndpoint over SSE or streamable
// HTTP. ctx bounds the connection lifetime, not a single request.
func NewMCPVideoSearcher(ctx context.Context, cfg config.VideoConfig) (*MCPVideoSearcher, error) {
	if cfg.MCPEndpoint == "" {
		return nil, fmt.Errorf("mcp video search requires mcp_endpoint")
	}
	var (
		c   *client.Client
		err error
	)
	switch strings.ToLower(cfg.MCPTransport) {
	case "streamable", "streamable_http", "http":
		c, err = client.NewStreamableHttpClient(cfg.MCPEndpoint)
	default:
		c, err = client.NewSSEMCPClient(cfg.MCPEndpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	return NewMCPVideoSearcherWithClient(ctx, c, cfg.MCPTool)
}

// NewMCPVideoSearcherWithClient starts and initializes an existing client.
func NewMCPVideoSearcherWithClient(ctx context.Context, c *client.Client, tool string) (*MCPVideoSearcher, error) {
	if tool == "" {
		tool = defaultVideoTool
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp client: %w", err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: mcpClientName, Version: mcpClientVersion}
	res, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}
	logger.Infof("mcp video search connected to %s %s", res.ServerInfo.Name, res.ServerInfo.Version)
	return &MCPVideoSearcher{client: c, tool: tool}, nil
}

func (m *MCPVideoSearcher) SearchVideos(ctx context.Context, query string) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = m.tool
	req.Params.Arguments = map[string]any{"query": query}

	res, err := m.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", m.tool, err)
	}
	text := toolText(res)
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", m.tool, text)
	}
	return text, nil
}

// Close ends the MCP session.
func (m *MCPVideoSearcher) Close() error {
	return m.client.Close()
}

func toolText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
