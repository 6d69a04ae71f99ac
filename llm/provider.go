package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const (
	PROVIDER_TYPE_OPENAI = "openai"
	PROVIDER_TYPE_AZURE  = "azure"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// CompletionOptions tunes one chat completion call.
type CompletionOptions struct {
	// Model overrides the provider's default model when set.
	Model       string
	MaxTokens   int
	Temperature float64
	// JSON requests a JSON object response.
	JSON bool
}

// Provider is a chat completion service. Implementations must be safe for
// concurrent use by independent requests.
type Provider interface {
	// Complete returns the full answer for messages.
	Complete(ctx context.Context, messages []schema.ChatMessage, opts CompletionOptions) (string, error)
	// Stream returns a pull-driven sequence of answer increments.
	Stream(ctx context.Context, messages []schema.ChatMessage, opts CompletionOptions) (Stream, error)
}

// Stream is a single-use, pull-driven sequence of text increments.
type Stream interface {
	// Next advances to the next non-empty increment.
	Next() bool
	Current() string
	Err() error
	Close() error
}

// NewLLMProvider builds the provider named by cfg.Provider.
func NewLLMProvider(cfg config.LLMConfig, opts ...Option) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case PROVIDER_TYPE_OPENAI, PROVIDER_TYPE_AZURE:
		return NewOpenAIProvider(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
