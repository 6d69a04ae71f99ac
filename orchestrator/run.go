package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/locale"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

var (
	errNoFragments = errors.New("no fragments")
	errUnavailable = errors.New("source not configured")
	errStopped     = errors.New("consumer stopped")
)

// run holds the state of one Generate call.
type run struct {
	p     *Pipeline
	ctx   context.Context
	req   Request
	yield func(schema.Event) bool

	msgs    locale.Messages
	stopped bool
	log     *logger.ContextLogger
	rec     *metrics.RequestMetrics
	start   time.Time
	intent  schema.Intent
	failure string
}

func (p *Pipeline) newRun(ctx context.Context, req Request, yield func(schema.Event) bool) *run {
	id := uuid.NewString()
	msgs, used := p.deps.Catalog.Resolve(req.Locale)
	query, _ := schema.LastUserMessage(req.Messages)

	rec := metrics.NewRequestMetrics(id, query)
	rec.Locale = req.Locale
	rec.Stream = req.Stream
	rec.SearchEngine = string(req.SearchEngine)

	return &run{
		p:      p,
		ctx:    ctx,
		req:    req,
		yield:  yield,
		msgs:   msgs,
		log:    logger.WithContext(map[string]interface{}{"request_id": id, "locale": used}),
		rec:    rec,
		start:  p.deps.Now(),
		intent: schema.IntentGeneralQuery,
	}
}

// emit forwards ev unless the consumer already stopped, and reports whether
// the run should continue.
func (r *run) emit(ev schema.Event) bool {
	if r.stopped {
		return false
	}
	if !r.yield(ev) {
		r.stopped = true
	}
	return !r.stopped
}

// status emits progress only in streaming mode.
func (r *run) status(ev schema.Event) bool {
	if !r.req.Stream {
		return !r.stopped
	}
	return r.emit(ev)
}

// verbose emits a diagnostic status carrying code.
func (r *run) verbose(step, code string) {
	if r.req.Verbose {
		r.status(schema.StatusWithCode(step, code))
	}
}

func (r *run) progress(step string, i, n int, query string) bool {
	return r.status(schema.Status(fmt.Sprintf("%s (%d/%d): %s", step, i, n, query)))
}

// call runs one collaborator call inside a span, under the stage deadline.
// Panics are reported as failures so one source cannot abort the request.
func call[T any](r *run, stage string, fn func(ctx context.Context) (T, error)) (res StageResult[T]) {
	ctx, span := r.p.tracer.Start(r.ctx, "plansearch."+stage)
	defer span.End()
	if r.p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.p.stageTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Failed[T](fmt.Errorf("%s: panic: %v", stage, p))
		}
		metrics.ObserveStage(stage, start, res.Err)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		return Failed[T](err)
	}
	return Succeeded(v)
}

func (r *run) span(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.p.tracer.Start(r.ctx, "plansearch."+name, trace.WithAttributes(attrs...))
}

func (r *run) execute() {
	defer r.finish()

	query, _ := schema.LastUserMessage(r.req.Messages)
	if strings.TrimSpace(query) == "" {
		r.failure = "input_needed"
		r.emit(schema.Answer(r.msgs.InputNeeded))
		return
	}

	planning := r.req.Planning
	includeWeb := r.req.IncludeWebSearch
	includeVideo := r.req.IncludeYtbSearch

	if !r.status(schema.Status(r.msgs.Analyzing)) {
		return
	}
	classified := r.classify(query)
	enriched := query
	if classified.OK() {
		r.intent = classified.Value.UserIntent
		if r.req.QueryRewrite && classified.Value.EnrichedQuery != "" {
			enriched = classified.Value.EnrichedQuery
		}
		r.verbose(r.msgs.AnalyzeComplete, schema.PrettyJSON(classified.Value))
		if r.intent == schema.IntentSmallTalk {
			planning, includeWeb, includeVideo = false, false, false
			r.status(schema.Status(r.msgs.IntentSmallTalk))
		}
	} else {
		r.rec.IntentFailed = true
		planning = false
		r.status(schema.Status(r.msgs.IntentFailed))
	}
	r.rec.Intent = string(r.intent)

	queries := []string{enriched}
	if planning && !r.stopped {
		if plan := r.plan(enriched); plan.OK() {
			queries = plan.Value.SearchQueries
		}
	}
	r.rec.SearchQueries = len(queries)

	var blocks []schema.ContextBlock
	appendBlock := func(res StageResult[schema.ContextBlock]) {
		if res.OK() {
			blocks = append(blocks, res.Value)
		}
	}
	if includeWeb && !r.stopped {
		appendBlock(r.webStage(queries))
	}
	if includeVideo && !r.stopped {
		appendBlock(r.videoStage(queries))
	}
	if r.req.IncludeAISearch && !r.stopped {
		appendBlock(r.documentStage(queries))
	}
	if r.stopped {
		return
	}

	if !r.status(schema.Status(r.msgs.Answering)) {
		return
	}
	contexts := schema.AggregatedContext(blocks)
	r.rec.ContextChars = len([]rune(contexts))
	r.generate(enriched, contexts)
}

func (r *run) finish() {
	elapsed := r.p.deps.Now().Sub(r.start)
	r.rec.TotalLatencyMs = elapsed.Milliseconds()
	r.rec.Success = r.failure == ""
	r.rec.ErrorMsg = r.failure

	result := "ok"
	switch {
	case r.failure == "input_needed":
		result = "input_needed"
	case r.failure != "":
		result = "error"
	case r.stopped:
		result = "cancelled"
	}
	metrics.IncRequest(string(r.intent), result)
	r.rec.LogJSON()
}

func elapsedText(d time.Duration) string {
	secs := strconv.FormatFloat(d.Round(time.Microsecond).Seconds(), 'f', -1, 64)
	return "Plan search response generated successfully in " + secs + " seconds"
}
