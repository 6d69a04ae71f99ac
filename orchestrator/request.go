package orchestrator

import (
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// Request is one plan-search invocation. Use NewRequest for the defaults;
// zero MaxTokens, nil Temperature and empty SearchEngine or Locale fall back
// to configuration.
type Request struct {
	Messages    []schema.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Temperature *float64             `json:"temperature,omitempty"`

	QueryRewrite bool                `json:"query_rewrite"`
	Planning     bool                `json:"planning"`
	SearchEngine config.SearchEngine `json:"search_engine,omitempty"`
	Stream       bool                `json:"stream"`
	ElapsedTime  bool                `json:"elapsed_time"`
	Locale       string              `json:"locale,omitempty"`

	IncludeWebSearch bool `json:"include_web_search"`
	IncludeYtbSearch bool `json:"include_ytb_search"`
	IncludeMCPServer bool `json:"include_mcp_server"`
	IncludeAISearch  bool `json:"include_ai_search"`
	Verbose          bool `json:"verbose"`
}

// NewRequest returns a request with every feature enabled, non-streaming.
func NewRequest(messages ...schema.ChatMessage) Request {
	return Request{
		Messages:         messages,
		QueryRewrite:     true,
		Planning:         true,
		ElapsedTime:      true,
		IncludeWebSearch: true,
		IncludeYtbSearch: true,
		IncludeMCPServer: true,
		IncludeAISearch:  true,
	}
}
