package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/intent"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/locale"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/prompt"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/telemetry"
)

// ErrStreamConsumed is reported when a response sequence is iterated twice.
var ErrStreamConsumed = errors.New("response stream already consumed")

// Deps are the collaborators of a Pipeline. Intent and LLM are required; a
// nil retriever disables its source.
type Deps struct {
	Intent intent.Service
	LLM    llm.Provider

	Grounder  retriever.Grounder
	Web       retriever.WebSearcher
	Video     retriever.VideoSearcher
	MCPVideo  retriever.VideoSearcher
	Documents retriever.DocumentSearcher

	Tokens  *llm.TokenCounter
	Catalog *locale.Catalog
	Now     func() time.Time
}

// Pipeline runs plan, search and answer for independent requests. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	deps         Deps
	cfg          *config.Config
	assembler    *prompt.Assembler
	budget       post.Budget
	stageTimeout time.Duration
	tracer       trace.Tracer

	closeOnce sync.Once
	closeErr  error
}

func New(deps Deps, cfg *config.Config) (*Pipeline, error) {
	if deps.Intent == nil {
		return nil, errors.New("orchestrator: intent service is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("orchestrator: llm provider is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Catalog == nil {
		c, err := locale.Load()
		if err != nil {
			return nil, err
		}
		deps.Catalog = c
	}
	if deps.Tokens == nil {
		deps.Tokens = llm.NewTokenCounter(cfg.LLM.Model)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load timezone %q: %w", cfg.Pipeline.Timezone, err)
	}
	templates, err := prompt.LoadTemplates()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		deps:      deps,
		cfg:       cfg,
		assembler: prompt.NewAssembler(templates, loc),
		budget: post.Budget{
			DocumentsPerQuery: cfg.Pipeline.DocumentsPerQuery,
			MaxDocumentChars:  cfg.Pipeline.MaxDocumentChars,
			MaxContextChars:   cfg.Pipeline.MaxContextChars,
		},
		stageTimeout: time.Duration(cfg.Pipeline.StageTimeoutMs) * time.Millisecond,
		tracer:       otel.Tracer(telemetry.TracerName),
	}, nil
}

// Generate returns the lazy event sequence for one request. Nothing runs until
// the sequence is iterated, and it can be iterated only once.
func (p *Pipeline) Generate(ctx context.Context, req Request) iter.Seq[schema.Event] {
	consumed := atomic.NewBool(false)
	return func(yield func(schema.Event) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(schema.Error(ErrStreamConsumed.Error()))
			return
		}
		p.newRun(ctx, p.normalize(req), yield).execute()
	}
}

func (p *Pipeline) normalize(req Request) Request {
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.cfg.LLM.MaxTokens
	}
	if req.Temperature == nil {
		t := p.cfg.LLM.Temperature
		req.Temperature = &t
	}
	if req.SearchEngine == "" {
		req.SearchEngine = p.cfg.Pipeline.SearchEngine
	}
	if _, err := config.ParseSearchEngine(string(req.SearchEngine)); err != nil {
		req.SearchEngine = config.SearchEngineSearchCrawling
	}
	if req.Locale == "" {
		req.Locale = p.cfg.Pipeline.DefaultLocale
	}
	if req.Locale == "" {
		req.Locale = locale.Default
	}
	return req
}

// Close releases collaborators that hold connections. Collaborators without
// a Close method are skipped. Later calls return the first result.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var result *multierror.Error
		seen := map[any]struct{}{}
		for _, c := range []any{
			p.deps.Intent, p.deps.LLM, p.deps.Grounder, p.deps.Web,
			p.deps.Video, p.deps.MCPVideo, p.deps.Documents,
		} {
			closer, ok := c.(io.Closer)
			if !ok || isNilPointer(c) {
				continue
			}
			if reflect.TypeOf(c).Comparable() {
				if _, dup := seen[c]; dup {
					continue
				}
				seen[c] = struct{}{}
			}
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		p.closeErr = result.ErrorOrNil()
	})
	return p.closeErr
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
