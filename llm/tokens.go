package llm

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"go.uber.org/atomic"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const fallbackEncoding = "cl100k_base"

func init() {
	// BPE ranks ship embedded in the binary; nothing is downloaded.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter estimates prompt size for a model. The BPE table loads in the
// background; until it is ready, or if it cannot be loaded, counts fall back
// to runes/4. Counting never blocks on the load.
type TokenCounter struct {
	model string
	enc   atomic.Pointer[tiktoken.Tiktoken]
	ready chan struct{}
}

func NewTokenCounter(model string) *TokenCounter {
	return newTokenCounter(model, encodingFor)
}

func newTokenCounter(model string, load func(model string) (*tiktoken.Tiktoken, error)) *TokenCounter {
	c := &TokenCounter{model: model, ready: make(chan struct{})}
	go func() {
		defer close(c.ready)
		enc, err := load(model)
		if err != nil {
			logger.Warnf("llm: tiktoken unavailable for model %s, using approximate token counts: %v", model, err)
			return
		}
		c.enc.Store(enc)
	}()
	return c
}

// NewApproxCounter never loads a BPE table.
func NewApproxCounter() *TokenCounter {
	c := &TokenCounter{ready: make(chan struct{})}
	close(c.ready)
	return c
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	return enc, err
}

// Ready is closed once loading has finished, successfully or not.
func (c *TokenCounter) Ready() <-chan struct{} {
	return c.ready
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	enc := c.enc.Load()
	if enc == nil {
		return approxTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages sums message contents plus the per-message chat overhead.
func (c *TokenCounter) CountMessages(messages []schema.ChatMessage) int {
	total := 3
	for _, m := range messages {
		total += 4 + c.Count(m.Content)
	}
	return total
}

func approxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
