package retriever

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// GroundingOptions tunes a batched grounding call.
type GroundingOptions struct {
	Locale      string
	MaxTokens   int
	Temperature float64
}

// CrawlOptions bounds one search-and-crawl call.
type CrawlOptions struct {
	Locale           string
	MaxResults       int
	MaxContextLength int
}

// DocumentQuery is one semantic search against the indexed document store.
type DocumentQuery struct {
	Query          string
	TopK           int
	IncludeContent bool
}

// Grounder resolves a batch of queries into one synthesized context.
type Grounder interface {
	Ground(ctx context.Context, queries []string, opts GroundingOptions) (string, error)
}

// WebSearcher searches the web for a single query and returns page text.
type WebSearcher interface {
	SearchAndCrawl(ctx context.Context, query string, opts CrawlOptions) (string, error)
}

// VideoSearcher returns a text rendition of the videos matching query.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, query string) (string, error)
}

// DocumentSearcher runs a top-K semantic search over indexed documents.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, q DocumentQuery) (schema.DocumentSearchResult, error)
}

// NewDocumentSearcher builds the document store named by cfg.Provider.
// embed is required for milvus only.
func NewDocumentSearcher(ctx context.Context, cfg config.DocumentsConfig, embed embedding.Provider, transport http.RoundTripper) (DocumentSearcher, error) {
	switch strings.ToLower(cfg.Provider) {
	case "milvus":
		if embed == nil {
			return nil, fmt.Errorf("milvus document search requires an embedding provider")
		}
		return NewMilvusDocumentSearcher(ctx, cfg.Milvus, embed)
	case "elasticsearch":
		return NewElasticDocumentSearcher(cfg.Elasticsearch, transport)
	default:
		return nil, fmt.Errorf("unknown document store provider: %s", cfg.Provider)
	}
}
