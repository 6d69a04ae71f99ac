package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/azure"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/shared"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const defaultAzureAPIVersion = "2024-10-21"

// Option customizes provider construction.
type Option func(*providerOptions)

type providerOptions struct {
	httpClient *http.Client
	maxRetries int
}

// WithHTTPClient routes SDK traffic through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *providerOptions) { o.httpClient = hc }
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *providerOptions) { o.maxRetries = n }
}

// OpenAIProvider talks to OpenAI or Azure OpenAI chat completions.
type OpenAIProvider struct {
	client       openai.Client
	providerType string
	model        string
}

func NewOpenAIProvider(cfg config.LLMConfig, opts ...Option) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	po := providerOptions{maxRetries: 2}
	for _, o := range opts {
		o(&po)
	}

	providerType := strings.ToLower(cfg.Provider)
	var reqOpts []option.RequestOption
	switch providerType {
	case PROVIDER_TYPE_AZURE:
		version := cfg.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		reqOpts = append(reqOpts,
			azure.WithEndpoint(cfg.BaseURL, version),
			azure.WithAPIKey(cfg.APIKey),
		)
	default:
		providerType = PROVIDER_TYPE_OPENAI
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
		}
	}
	reqOpts = append(reqOpts, option.WithMaxRetries(po.maxRetries))
	if po.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(po.httpClient))
	}

	return &OpenAIProvider{
		client:       openai.NewClient(reqOpts...),
		providerType: providerType,
		model:        cfg.Model,
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []schema.ChatMessage, opts CompletionOptions) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(messages, opts))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	logger.Debugf("llm: %s completion model=%s prompt_tokens=%d completion_tokens=%d", p.providerType, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return content, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, messages []schema.ChatMessage, opts CompletionOptions) (Stream, error) {
	s := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages, opts))
	// connection and HTTP status errors surface before the first event
	if err := s.Err(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &openAIStream{s: s}, nil
}

func (p *OpenAIProvider) params(messages []schema.ChatMessage, opts CompletionOptions) openai.ChatCompletionNewParams {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func toOpenAIMessages(messages []schema.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case schema.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case schema.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type openAIStream struct {
	s       *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (o *openAIStream) Next() bool {
	for o.s.Next() {
		chunk := o.s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			o.current = delta
			return true
		}
	}
	o.current = ""
	return false
}

func (o *openAIStream) Current() string { return o.current }

func (o *openAIStream) Err() error { return o.s.Err() }

func (o *openAIStream) Close() error { return o.s.Close() }
