package plansearch

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/intent"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/locale"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// PlanSearchClient owns the pipeline and the shared transports it was built on.
type PlanSearchClient struct {
	config   *config.Config
	http     *httpx.Client
	pipeline *orchestrator.Pipeline
}

// NewPlanSearchClient builds every configured collaborator. Sources without
// configuration are left out; the video MCP server is optional at startup.
func NewPlanSearchClient(ctx context.Context, cfg *config.Config) (*PlanSearchClient, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &PlanSearchClient{config: cfg, http: httpx.NewFromConfig(cfg.HTTP)}

	deps, err := c.buildDeps(ctx)
	if err != nil {
		c.http.Close()
		return nil, err
	}
	p, err := orchestrator.New(deps, cfg)
	if err != nil {
		c.http.Close()
		return nil, fmt.Errorf("create pipeline failed, err: %w", err)
	}
	c.pipeline = p
	return c, nil
}

func (c *PlanSearchClient) buildDeps(ctx context.Context) (orchestrator.Deps, error) {
	cfg := c.config
	var deps orchestrator.Deps

	llmProvider, err := llm.NewLLMProvider(cfg.LLM)
	if err != nil {
		return deps, fmt.Errorf("create llm provider failed, err: %w", err)
	}
	deps.LLM = llmProvider

	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return deps, fmt.Errorf("load timezone %q: %w", cfg.Pipeline.Timezone, err)
	}
	analyzer, err := intent.NewAnalyzer(llmProvider,
		intent.WithModel(cfg.LLM.QueryModel),
		intent.WithMaxPlans(cfg.Planner.MaxPlans),
		intent.WithLocation(loc),
	)
	if err != nil {
		return deps, fmt.Errorf("create intent analyzer failed, err: %w", err)
	}
	deps.Intent = analyzer

	if cfg.Web.Provider != "" {
		search := retriever.NewSearchClient(cfg.Web, c.http)
		var crawler *retriever.Crawler
		if cfg.Web.Crawl {
			crawler = retriever.NewCrawler(c.http)
		}
		deps.Web = retriever.NewCrawlingWebSearcher(search, crawler)
		deps.Grounder = retriever.NewLLMGrounder(search, llmProvider, cfg.Grounding.ResultsPerQuery)
	}

	if cfg.Video.APIKey != "" {
		yt, err := retriever.NewYouTubeSearcher(ctx, cfg.Video)
		if err != nil {
			return deps, fmt.Errorf("create youtube searcher failed, err: %w", err)
		}
		deps.Video = yt
	}
	if cfg.Video.MCPEndpoint != "" {
		m, err := retriever.NewMCPVideoSearcher(ctx, cfg.Video)
		if err != nil {
			logger.Warnf("mcp video search disabled: %v", err)
		} else {
			deps.MCPVideo = m
		}
	}

	if cfg.Documents.Provider != "" {
		var embed embedding.Provider
		if cfg.Documents.Provider == "milvus" {
			embed, err = embedding.NewEmbeddingProvider(cfg.Embedding)
			if err != nil {
				return deps, fmt.Errorf("create embedding provider failed, err: %w", err)
			}
		}
		docs, err := retriever.NewDocumentSearcher(ctx, cfg.Documents, embed, c.http.HTTPClient().Transport)
		if err != nil {
			return deps, fmt.Errorf("create document searcher failed, err: %w", err)
		}
		deps.Documents = docs
	}

	deps.Tokens = llm.NewTokenCounter(cfg.LLM.Model)
	catalog, err := locale.Load()
	if err != nil {
		return deps, err
	}
	deps.Catalog = catalog
	return deps, nil
}

func (c *PlanSearchClient) Generate(ctx context.Context, req orchestrator.Request) iter.Seq[schema.Event] {
	return c.pipeline.Generate(ctx, req)
}

// Close releases the pipeline collaborators and the shared HTTP transport.
func (c *PlanSearchClient) Close() error {
	var result *multierror.Error
	if err := c.pipeline.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.http.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
