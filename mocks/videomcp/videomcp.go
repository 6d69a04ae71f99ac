// Package videomcp is an MCP server mock exposing search_youtube_videos.
package videomcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func NewServer() *server.MCPServer {
	s := server.NewMCPServer("video-mock", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("search_youtube_videos",
			mcp.WithDescription("Search YouTube videos"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search keywords")),
		),
		handleSearch,
	)
	return s
}

func handleSearch(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Title: %s explained\nChannel: Mock Channel\nPublished: 2024-01-01T00:00:00Z\nURL: https://www.youtube.com/watch?v=mock\nDescription: A short video about %s",
		q, q,
	)), nil
}
