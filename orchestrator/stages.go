package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/prompt"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/retriever"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const (
	sourceGrounding = "grounding"
	sourceWeb       = "web"
	sourceVideo     = "video"
	sourceDocuments = "documents"

	displayChars = 200
)

func (r *run) classify(query string) StageResult[schema.IntentResult] {
	res := call(r, "intent", func(ctx context.Context) (schema.IntentResult, error) {
		return r.p.deps.Intent.Classify(ctx, query, r.req.Locale)
	})
	if !res.OK() {
		r.log.Warnf("intent analysis failed, using original query: %v", res.Err)
		return res
	}
	if res.Value.UserIntent == "" {
		res.Value.UserIntent = schema.IntentGeneralQuery
	}
	r.log.Infof("intent=%s enriched=%q", res.Value.UserIntent, res.Value.EnrichedQuery)
	return res
}

func (r *run) plan(enriched string) StageResult[schema.SearchPlan] {
	r.status(schema.Status(r.msgs.SearchPlanning))
	res := call(r, "plan", func(ctx context.Context) (schema.SearchPlan, error) {
		return r.p.deps.Intent.Plan(ctx, r.intent, enriched, r.req.Locale)
	})
	if res.OK() && len(res.Value.SearchQueries) == 0 {
		res = Failed[schema.SearchPlan](errNoFragments)
	}
	if !res.OK() {
		r.rec.PlanFailed = true
		r.log.Warnf("search planning failed, using enriched query: %v", res.Err)
		return res
	}
	r.log.Infof("search plan: %v", res.Value.SearchQueries)
	r.verbose(r.msgs.PlanDone, schema.PrettyJSON(res.Value))
	return res
}

func (r *run) webStage(queries []string) StageResult[schema.ContextBlock] {
	var res StageResult[schema.ContextBlock]
	if r.req.SearchEngine.Crawls() {
		res = r.crawl(queries)
	} else {
		res = r.ground(queries)
	}
	if res.OK() {
		r.verbose(r.msgs.SearchDone, res.Value.Body)
	}
	return res
}

// ground resolves the whole plan with one batched call.
func (r *run) ground(queries []string) StageResult[schema.ContextBlock] {
	if r.p.deps.Grounder == nil {
		return Failed[schema.ContextBlock](errUnavailable)
	}
	var b strings.Builder
	b.WriteString(r.msgs.Searching + "...<br>")
	for i, q := range queries {
		fmt.Fprintf(&b, "%d: %s: %s <br>", i, r.msgs.SearchKeyword, q)
	}
	if !r.status(schema.Status(b.String())) {
		return Failed[schema.ContextBlock](errStopped)
	}

	start := time.Now()
	opts := retriever.GroundingOptions{
		Locale:      r.req.Locale,
		MaxTokens:   r.req.MaxTokens,
		Temperature: *r.req.Temperature,
	}
	res := call(r, "grounding", func(ctx context.Context) (string, error) {
		return r.p.deps.Grounder.Ground(ctx, queries, opts)
	})
	var frags Fragments
	frags.add(res)
	if !res.OK() {
		r.log.Warnf("grounding search failed: %v", res.Err)
	}
	return r.block(sourceGrounding, schema.LabelGrounding, frags, start)
}

func (r *run) crawl(queries []string) StageResult[schema.ContextBlock] {
	if r.p.deps.Web == nil {
		return Failed[schema.ContextBlock](errUnavailable)
	}
	opts := retriever.CrawlOptions{
		Locale:           r.req.Locale,
		MaxResults:       orDefault(r.p.cfg.Web.MaxResults, 5),
		MaxContextLength: orDefault(r.p.cfg.Web.MaxContextLength, 5000),
	}

	start := time.Now()
	var frags Fragments
	for i, q := range queries {
		if !r.progress(r.msgs.Searching, i+1, len(queries), q) {
			return Failed[schema.ContextBlock](errStopped)
		}
		res := call(r, "web", func(ctx context.Context) (string, error) {
			return r.p.deps.Web.SearchAndCrawl(ctx, q, opts)
		})
		if !res.OK() {
			r.log.Warnf("web search failed for %q: %v", q, res.Err)
		}
		frags.add(res)
	}
	return r.block(sourceWeb, schema.LabelWeb, frags, start)
}

func (r *run) videoStage(queries []string) StageResult[schema.ContextBlock] {
	searcher := r.videoSearcher()
	if searcher == nil {
		return Failed[schema.ContextBlock](errUnavailable)
	}

	start := time.Now()
	var frags Fragments
	for i, q := range queries {
		if !r.progress(r.msgs.SearchingYouTube, i+1, len(queries), q) {
			return Failed[schema.ContextBlock](errStopped)
		}
		res := call(r, "video", func(ctx context.Context) (string, error) {
			return searcher.SearchVideos(ctx, q)
		})
		if !res.OK() {
			r.log.Warnf("video search failed for %q: %v", q, res.Err)
		}
		frags.add(res)
	}
	out := r.block(sourceVideo, schema.LabelVideo, frags, start)
	if out.OK() {
		r.verbose(r.msgs.YouTubeDone, out.Value.Body)
	}
	return out
}

// videoSearcher prefers the MCP provider when the request asks for it and
// falls back to whichever provider is configured.
func (r *run) videoSearcher() retriever.VideoSearcher {
	primary, secondary := r.p.deps.Video, r.p.deps.MCPVideo
	if r.req.IncludeMCPServer {
		primary, secondary = secondary, primary
	}
	if primary != nil {
		return primary
	}
	return secondary
}

func (r *run) documentStage(queries []string) StageResult[schema.ContextBlock] {
	if r.p.deps.Documents == nil {
		return Failed[schema.ContextBlock](errUnavailable)
	}
	topK := orDefault(r.p.cfg.Pipeline.DocumentTopK, 3)
	budget := post.NewBudgeter(r.p.budget)

	start := time.Now()
	stats := metrics.SourceStats{}
	for i, q := range queries {
		if budget.Exhausted() {
			break
		}
		if !r.progress(r.msgs.AISearchContext, i+1, len(queries), q) {
			return Failed[schema.ContextBlock](errStopped)
		}
		stats.Calls++
		res := call(r, "documents", func(ctx context.Context) (schema.DocumentSearchResult, error) {
			return r.p.deps.Documents.SearchDocuments(ctx, retriever.DocumentQuery{Query: q, TopK: topK, IncludeContent: true})
		})
		if !res.OK() {
			stats.Failures++
			metrics.IncRetrievalFailure(sourceDocuments)
			r.log.Warnf("document search failed for %q: %v", q, res.Err)
			continue
		}
		if !res.Value.OK() {
			r.log.Warnf("document search for %q returned status=%q with %d documents", q, res.Value.Status, len(res.Value.Documents))
			continue
		}
		if !budget.Admit(i, res.Value.Documents) {
			break
		}
	}

	bs := budget.Stats()
	metrics.AddBudgetOutcome("admitted", bs.Admitted)
	metrics.AddBudgetOutcome("duplicate", bs.Duplicates)
	metrics.AddBudgetOutcome("empty", bs.Empty)
	metrics.AddBudgetOutcome("truncated", bs.Truncated)
	metrics.AddBudgetOutcome("rejected", bs.Rejected)
	r.rec.DocumentsAdmitted = bs.Admitted
	r.rec.DocumentsRejected = bs.Rejected
	r.rec.DuplicateDocuments = bs.Duplicates

	stats.Fragments = len(budget.Records())
	stats.LatencyMs = time.Since(start).Milliseconds()
	r.rec.AddSource(sourceDocuments, stats)
	metrics.ObserveFragments(sourceDocuments, stats.Fragments)

	if stats.Fragments == 0 {
		return Failed[schema.ContextBlock](errNoFragments)
	}
	text := budget.Text()
	display, _ := post.Truncate(text, displayChars, post.DisplayTruncationMarker)
	r.verbose(r.msgs.AISearchContextDone, display)
	return Succeeded(schema.ContextBlock{Label: schema.LabelDocuments, Body: text})
}

// block turns the fragments of one source into a context block, or a failed
// result when nothing usable came back.
func (r *run) block(source, label string, frags Fragments, start time.Time) StageResult[schema.ContextBlock] {
	for i := 0; i < frags.Failures; i++ {
		metrics.IncRetrievalFailure(source)
	}
	metrics.ObserveFragments(source, len(frags.Texts))
	r.rec.AddSource(source, metrics.SourceStats{
		Calls:     frags.Calls,
		Failures:  frags.Failures,
		Fragments: len(frags.Texts),
		LatencyMs: time.Since(start).Milliseconds(),
	})
	if len(frags.Texts) == 0 {
		return Failed[schema.ContextBlock](errNoFragments)
	}
	return Succeeded(schema.ContextBlock{Label: label, Body: strings.Join(frags.Texts, "\n\n")})
}

func (r *run) generate(question, contexts string) {
	messages := r.p.assembler.Assemble(prompt.Input{
		Intent:   r.intent,
		Date:     r.p.deps.Now(),
		Contexts: contexts,
		Question: question,
		Locale:   r.req.Locale,
	})
	r.rec.PromptTokens = r.p.deps.Tokens.CountMessages(messages)
	opts := llm.CompletionOptions{MaxTokens: r.req.MaxTokens, Temperature: *r.req.Temperature}

	ctx, span := r.span("generate",
		attribute.Bool("stream", r.req.Stream),
		attribute.Int("prompt_tokens", r.rec.PromptTokens),
	)
	defer span.End()

	var ttft time.Duration
	var err error
	if r.req.Stream {
		ttft, err = r.streamAnswer(ctx, messages, opts)
	} else {
		ttft, err = r.completeAnswer(ctx, messages, opts)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.failure = err.Error()
		r.log.Errorf("plan search error: %v", err)
		r.emit(schema.Error(err.Error()))
		return
	}
	if r.stopped {
		return
	}

	r.rec.TTFTMs = ttft.Milliseconds()
	metrics.ObserveTTFT(ttft)
	if r.req.ElapsedTime {
		text := elapsedText(ttft)
		r.log.Infof("%s", text)
		r.emit(schema.Telemetry(text))
	}
}

func (r *run) completeAnswer(ctx context.Context, messages []schema.ChatMessage, opts llm.CompletionOptions) (time.Duration, error) {
	if r.p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.p.stageTimeout)
		defer cancel()
	}
	answer, err := r.p.deps.LLM.Complete(ctx, messages, opts)
	if err != nil {
		return 0, err
	}
	if answer == "" {
		return 0, llm.ErrEmptyResponse
	}
	ttft := r.p.deps.Now().Sub(r.start)
	r.emit(schema.Answer(answer))
	return ttft, nil
}

// streamAnswer relays increments as the consumer pulls them. The stream is
// not bound to the stage deadline since the consumer paces it.
func (r *run) streamAnswer(ctx context.Context, messages []schema.ChatMessage, opts llm.CompletionOptions) (time.Duration, error) {
	stream, err := r.p.deps.LLM.Stream(ctx, messages, opts)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	var ttft time.Duration
	chunks := 0
	for stream.Next() {
		text := stream.Current()
		if text == "" {
			continue
		}
		if chunks == 0 {
			ttft = r.p.deps.Now().Sub(r.start)
		}
		chunks++
		if !r.emit(schema.Answer(text)) {
			return ttft, nil
		}
	}
	if err := stream.Err(); err != nil {
		return 0, err
	}
	if chunks == 0 {
		return 0, llm.ErrEmptyResponse
	}
	return ttft, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
