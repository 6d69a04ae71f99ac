package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const groundingPrompt = `You are a research assistant. Using only the search results below, write a
concise factual summary that answers each of the search queries. Keep numbers,
dates and names exactly as written and cite the source URL after each fact.
Write in the language of the locale %s. If the results do not answer a query,
say so in one sentence.

Search results:
%s`

// ErrNoGroundingResults is returned when no query produced any search hit.
var ErrNoGroundingResults = errors.New("grounding: no search results")

// LLMGrounder implements Grounder by collecting search snippets for every
// query and synthesizing them into one context with a single model call.
type LLMGrounder struct {
	search          *SearchClient
	provider        llm.Provider
	resultsPerQuery int
}

// NewLLMGrounder returns a Grounder. A nil provider returns the raw listing.
func NewLLMGrounder(search *SearchClient, provider llm.Provider, resultsPerQuery int) *LLMGrounder {
	if resultsPerQuery <= 0 {
		resultsPerQuery = 5
	}
	return &LLMGrounder{search: search, provider: provider, resultsPerQuery: resultsPerQuery}
}

func (g *LLMGrounder) Ground(ctx context.Context, queries []string, opts GroundingOptions) (string, error) {
	var b strings.Builder
	hits := 0
	for i, q := range queries {
		results, err := g.search.Search(ctx, q, g.resultsPerQuery, opts.Locale)
		if err != nil {
			logger.Warnf("grounding: search %d/%d failed for %q: %v", i+1, len(queries), q, err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", q)
		for _, r := range results {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
			hits++
		}
		b.WriteString("\n")
	}
	if hits == 0 {
		return "", ErrNoGroundingResults
	}
	listing := strings.TrimSpace(b.String())
	if g.provider == nil {
		return listing, nil
	}

	out, err := g.provider.Complete(ctx, []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: fmt.Sprintf(groundingPrompt, opts.Locale, listing)},
		{Role: schema.RoleUser, Content: strings.Join(queries, "\n")},
	}, llm.CompletionOptions{MaxTokens: opts.MaxTokens, Temperature: opts.Temperature})
	if err != nil {
		return "", fmt.Errorf("grounding synthesis: %w", err)
	}
	return strings.TrimSpace(out), nil
}
