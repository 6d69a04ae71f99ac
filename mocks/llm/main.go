// Command llm runs the chat completion mock for local runs of plansearch.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/mocks/chat"
)

func main() {
	addr := ":8090"
	if v := os.Getenv("LLM_MOCK_ADDR"); v != "" {
		addr = v
	}
	log.Printf("LLM mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, chat.Handler()))
}
