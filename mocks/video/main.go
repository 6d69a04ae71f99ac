// Command video serves the video MCP mock over SSE, for running plansearch
// with include_mcp_server against no real backend.
package main

import (
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/mocks/videomcp"
)

func main() {
	addr := ":8091"
	if v := os.Getenv("VIDEO_MOCK_ADDR"); v != "" {
		addr = v
	}
	log.Printf("Video MCP mock listening on %s (sse endpoint /sse)", addr)
	log.Fatal(server.NewSSEServer(videomcp.NewServer()).Start(addr))
}
