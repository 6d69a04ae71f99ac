package orchestrator

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

var errBoom = errors.New("boom")

type fakeIntent struct {
	mu        sync.Mutex
	result    schema.IntentResult
	err       error
	plan      schema.SearchPlan
	planErr   error
	classify  []string
	planCalls []string
}

func (f *fakeIntent) Classify(_ context.Context, query, _ string) (schema.IntentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classify = append(f.classify, query)
	if f.err != nil {
		return schema.IntentResult{}, f.err
	}
	res := f.result
	if res.EnrichedQuery == "" {
		res.EnrichedQuery = query
	}
	return res, nil
}

func (f *fakeIntent) Plan(_ context.Context, _ schema.Intent, enriched, _ string) (schema.SearchPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCalls = append(f.planCalls, enriched)
	return f.plan, f.planErr
}

type fakeLLM struct {
	mu        sync.Mutex
	answer    string
	err       error
	chunks    []string
	streamErr error
	openErr   error
	requests  [][]schema.ChatMessage
	options   []llm.CompletionOptions
}

func (f *fakeLLM) record(msgs []schema.ChatMessage, opts llm.CompletionOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, msgs)
	f.options = append(f.options, opts)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) system(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 1)
	require.Len(t, f.requests[0], 2)
	return f.requests[0][0].Content
}

func (f *fakeLLM) Complete(_ context.Context, msgs []schema.ChatMessage, opts llm.CompletionOptions) (string, error) {
	f.record(msgs, opts)
	return f.answer, f.err
}

func (f *fakeLLM) Stream(_ context.Context, msgs []schema.ChatMessage, opts llm.CompletionOptions) (llm.Stream, error) {
	f.record(msgs, opts)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &sliceStream{chunks: f.chunks, err: f.streamErr, pos: -1}, nil
}

type sliceStream struct {
	chunks []string
	err    error
	pos    int
	closed bool
}

func (s *sliceStream) Next() bool {
	s.pos++
	return s.pos < len(s.chunks)
}

func (s *sliceStream) Current() string { return s.chunks[s.pos] }

func (s *sliceStream) Err() error { return s.err }

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// fakeSource serves web, video and grounding calls from per-query tables.
type fakeSource struct {
	mu      sync.Mutex
	texts   map[string]string
	errs    map[string]error
	queries []string
	block   bool
}

func (f *fakeSource) lookup(ctx context.Context, q string) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := f.errs[q]; err != nil {
		return "", err
	}
	return f.texts[q], nil
}

func (f *fakeSource) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeSource) SearchAndCrawl(ctx context.Context, q string, _ retriever.CrawlOptions) (string, error) {
	return f.lookup(ctx, q)
}

func (f *fakeSource) SearchVideos(ctx context.Context, q string) (string, error) {
	return f.lookup(ctx, q)
}

type fakeGrounder struct {
	batches [][]string
	text    string
	err     error
}

func (f *fakeGrounder) Ground(_ context.Context, queries []string, _ retriever.GroundingOptions) (string, error) {
	f.batches = append(f.batches, queries)
	return f.text, f.err
}

type fakeDocuments struct {
	mu      sync.Mutex
	results map[string]schema.DocumentSearchResult
	errs    map[string]error
	queries []string
}

func (f *fakeDocuments) SearchDocuments(_ context.Context, q retriever.DocumentQuery) (schema.DocumentSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q.Query)
	if err := f.errs[q.Query]; err != nil {
		return schema.DocumentSearchResult{}, err
	}
	return f.results[q.Query], nil
}

func success(docs ...schema.Document) schema.DocumentSearchResult {
	return schema.DocumentSearchResult{Status: schema.DocumentSearchSuccess, Documents: docs}
}

type closingSource struct {
	fakeSource
	closed int
	err    error
}

func (c *closingSource) Close() error {
	c.closed++
	return c.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.Timezone = "UTC"
	return cfg
}

func newTestPipeline(t *testing.T, deps Deps, cfg *config.Config) *Pipeline {
	t.Helper()
	logger.UseTestLogger(t)
	if cfg == nil {
		cfg = testConfig()
	}
	if deps.Tokens == nil {
		deps.Tokens = llm.NewApproxCounter()
	}
	p, err := New(deps, cfg)
	require.NoError(t, err)
	return p
}

func collect(seq iter.Seq[schema.Event]) []schema.Event {
	var out []schema.Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func kinds(events []schema.Event) []schema.EventKind {
	out := make([]schema.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func steps(events []schema.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == schema.EventStatus {
			out = append(out, ev.Step)
		}
	}
	return out
}

func userQuery(q string) []schema.ChatMessage {
	return []schema.ChatMessage{{Role: schema.RoleUser, Content: q}}
}

func tickingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
