package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/locale"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/post"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

var en, _ = locale.MustLoad().Resolve("en-US")

func streamRequest(q string) Request {
	req := NewRequest(userQuery(q)...)
	req.Stream = true
	req.Locale = "en-US"
	return req
}

func TestGenerate_EmptyInputAsksForQuestion(t *testing.T) {
	ko, _ := locale.MustLoad().Resolve(locale.Default)
	cases := []struct {
		name     string
		messages []schema.ChatMessage
	}{
		{"no messages", nil},
		{"blank user turn", userQuery("   ")},
		{"assistant only", []schema.ChatMessage{{Role: schema.RoleAssistant, Content: "hi"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := &fakeIntent{}
			model := &fakeLLM{answer: "unused"}
			web := &fakeSource{}
			p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web}, nil)

			req := NewRequest(tc.messages...)
			req.Stream = true
			events := collect(p.Generate(context.Background(), req))

			assert.Equal(t, []schema.Event{schema.Answer(ko.InputNeeded)}, events)
			assert.Empty(t, in.classify)
			assert.Empty(t, web.seen())
			assert.Zero(t, model.calls())
		})
	}
}

func TestGenerate_OneFailingQueryDoesNotDropOthers(t *testing.T) {
	in := &fakeIntent{
		result: schema.IntentResult{UserIntent: schema.IntentGeneralQuery},
		plan:   schema.SearchPlan{SearchQueries: []string{"q1", "q2", "q3"}},
	}
	web := &fakeSource{
		texts: map[string]string{"q1": "web one", "q3": "web three"},
		errs:  map[string]error{"q2": errBoom},
	}
	video := &fakeSource{
		texts: map[string]string{"q2": "video two", "q3": "video three"},
		errs:  map[string]error{"q1": errBoom},
	}
	docs := &fakeDocuments{
		results: map[string]schema.DocumentSearchResult{
			"q1": success(schema.Document{ID: "d1", Content: "doc one"}),
			"q2": {Status: "error"},
		},
		errs: map[string]error{"q3": errBoom},
	}
	model := &fakeLLM{answer: "done"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web, MCPVideo: video, Documents: docs}, nil)

	events := collect(p.Generate(context.Background(), NewRequest(userQuery("question")...)))
	require.NotEmpty(t, events)
	assert.Equal(t, schema.Answer("done"), events[0])

	assert.Equal(t, []string{"q1", "q2", "q3"}, web.seen())
	assert.Equal(t, []string{"q1", "q2", "q3"}, video.seen())
	assert.Equal(t, []string{"q1", "q2", "q3"}, docs.queries)

	sys := model.system(t)
	assert.Contains(t, sys, "=== Web Search ===\nweb one\n\nweb three")
	assert.Contains(t, sys, "=== Youtube Search ===\nvideo two\n\nvideo three")
	assert.Contains(t, sys, "=== Document Context ===\ndoc one")
	assert.NotContains(t, sys, schema.NoContext)
}

func TestGenerate_DuplicateDocumentsAdmittedOnce(t *testing.T) {
	in := &fakeIntent{plan: schema.SearchPlan{SearchQueries: []string{"a", "b"}}}
	shared := schema.Document{ID: "same", Content: "shared body"}
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"a": success(shared, schema.Document{Title: "only-a", Content: "first"}),
		"b": success(shared, schema.Document{URL: "https://b", Content: "second"}),
	}}
	model := &fakeLLM{answer: "ok"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Documents: docs}, nil)

	req := NewRequest(userQuery("q")...)
	req.IncludeWebSearch, req.IncludeYtbSearch = false, false
	collect(p.Generate(context.Background(), req))

	sys := model.system(t)
	assert.Equal(t, 1, strings.Count(sys, "shared body"))
	assert.Contains(t, sys, "=== Document Context ===\nshared body\n\nfirst\n\nsecond")
}

func TestGenerate_DocumentTruncatedToTenThousandChars(t *testing.T) {
	in := &fakeIntent{}
	body := strings.Repeat("☃", 12000)
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"big": success(schema.Document{ID: "big", Content: body}),
	}}
	model := &fakeLLM{answer: "ok"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Documents: docs}, nil)

	req := NewRequest(userQuery("big")...)
	req.Planning = false
	collect(p.Generate(context.Background(), req))

	sys := model.system(t)
	assert.Contains(t, sys, strings.Repeat("☃", 10000)+post.TruncationMarker)
	assert.NotContains(t, sys, strings.Repeat("☃", 10001))
}

func TestGenerate_GlobalCeilingStopsLaterQueries(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.MaxDocumentChars = 10
	cfg.Pipeline.MaxContextChars = 25

	in := &fakeIntent{plan: schema.SearchPlan{SearchQueries: []string{"q1", "q2", "q3"}}}
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"q1": success(
			schema.Document{ID: "a", Content: "aaaaaaaaaa"},
			schema.Document{ID: "b", Content: "bbbbbbbbbb"},
		),
		"q2": success(schema.Document{ID: "c", Content: "cccccccccc"}),
		"q3": success(schema.Document{ID: "d", Content: "dddddddddd"}),
	}}
	model := &fakeLLM{answer: "ok"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Documents: docs}, cfg)

	collect(p.Generate(context.Background(), NewRequest(userQuery("q")...)))

	assert.Equal(t, []string{"q1", "q2"}, docs.queries)
	sys := model.system(t)
	assert.Contains(t, sys, "aaaaaaaaaa\n\nbbbbbbbbbb")
	assert.NotContains(t, sys, "cccccccccc")
	assert.NotContains(t, sys, "dddddddddd")
}

func TestGenerate_SmallTalkSkipsPlanningAndSearch(t *testing.T) {
	in := &fakeIntent{
		result: schema.IntentResult{UserIntent: schema.IntentSmallTalk},
		plan:   schema.SearchPlan{SearchQueries: []string{"never"}},
	}
	web := &fakeSource{texts: map[string]string{"hello": "web"}}
	video := &fakeSource{texts: map[string]string{"hello": "video"}}
	docs := &fakeDocuments{}
	model := &fakeLLM{chunks: []string{"hi there"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web, Video: video, MCPVideo: video, Documents: docs}, nil)

	events := collect(p.Generate(context.Background(), streamRequest("hello")))

	assert.Empty(t, in.planCalls)
	assert.Empty(t, web.seen())
	assert.Empty(t, video.seen())
	assert.Equal(t, []string{"hello"}, docs.queries)
	assert.Contains(t, steps(events), en.IntentSmallTalk)
	assert.NotContains(t, steps(events), en.SearchPlanning)
	assert.Contains(t, model.system(t), schema.NoContext)
}

func TestGenerate_StreamingShape(t *testing.T) {
	in := &fakeIntent{plan: schema.SearchPlan{SearchQueries: []string{"p1", "p2"}}}
	web := &fakeSource{texts: map[string]string{"p1": "w1", "p2": "w2"}}
	model := &fakeLLM{chunks: []string{"Hel", "", "lo"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web, Now: tickingClock(250 * time.Millisecond)}, nil)

	events := collect(p.Generate(context.Background(), streamRequest("greeting")))
	require.NotEmpty(t, events)

	firstAnswer := -1
	for i, ev := range events {
		if ev.Kind == schema.EventAnswer {
			firstAnswer = i
			break
		}
		assert.Equal(t, schema.EventStatus, ev.Kind)
	}
	require.Positive(t, firstAnswer)
	assert.Equal(t, []schema.Event{schema.Answer("Hel"), schema.Answer("lo")}, events[firstAnswer:firstAnswer+2])

	last := events[len(events)-1]
	assert.Equal(t, schema.EventTelemetry, last.Kind)
	assert.True(t, strings.HasPrefix(last.Text, "Plan search response generated successfully in "))
	assert.True(t, strings.HasSuffix(last.Text, " seconds"))
	assert.Len(t, events, firstAnswer+3)

	assert.Equal(t, []string{
		en.Analyzing,
		en.SearchPlanning,
		en.Searching + " (1/2): p1",
		en.Searching + " (2/2): p2",
		en.Answering,
	}, steps(events))
}

func TestGenerate_NonStreamingShape(t *testing.T) {
	for _, elapsed := range []bool{true, false} {
		in := &fakeIntent{}
		model := &fakeLLM{answer: "full answer"}
		p := newTestPipeline(t, Deps{Intent: in, LLM: model, Now: tickingClock(time.Second)}, nil)

		req := NewRequest(userQuery("q")...)
		req.Verbose = true
		req.ElapsedTime = elapsed
		events := collect(p.Generate(context.Background(), req))

		if elapsed {
			assert.Equal(t, []schema.EventKind{schema.EventAnswer, schema.EventTelemetry}, kinds(events))
		} else {
			assert.Equal(t, []schema.EventKind{schema.EventAnswer}, kinds(events))
		}
		assert.Equal(t, "full answer", events[0].Text)
	}
}

func TestGenerate_ProductQueryUsesProductTemplate(t *testing.T) {
	in := &fakeIntent{
		result: schema.IntentResult{UserIntent: schema.IntentProductQuery, EnrichedQuery: "What is product X and its specs?"},
		plan:   schema.SearchPlan{SearchQueries: []string{"product X specs"}},
	}
	web := &fakeSource{texts: map[string]string{"product X specs": "X has 8 cores"}}
	video := &fakeSource{texts: map[string]string{"product X specs": "X review video"}}
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"product X specs": success(schema.Document{ID: "x", Summary: "X datasheet"}),
	}}
	model := &fakeLLM{answer: "Product X is a CPU."}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web, MCPVideo: video, Documents: docs}, nil)

	events := collect(p.Generate(context.Background(), NewRequest(userQuery("What is product X?")...)))

	var final schema.Event
	for _, ev := range events {
		if ev.Kind != schema.EventTelemetry {
			final = ev
		}
	}
	assert.Equal(t, schema.EventAnswer, final.Kind)
	assert.NotEmpty(t, final.Text)

	model.mu.Lock()
	msgs := model.requests[0]
	model.mu.Unlock()
	assert.True(t, strings.HasPrefix(msgs[0].Content, "You are a product specialist."))
	assert.Equal(t, schema.ChatMessage{Role: schema.RoleUser, Content: "What is product X and its specs?"}, msgs[1])
	assert.Equal(t, []string{"What is product X and its specs?"}, in.planCalls)
}

func TestGenerate_ClassifierFailureFallsBackToRawQuery(t *testing.T) {
	in := &fakeIntent{err: errBoom, plan: schema.SearchPlan{SearchQueries: []string{"unused"}}}
	web := &fakeSource{texts: map[string]string{"raw question": "web"}}
	model := &fakeLLM{chunks: []string{"answer"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web}, nil)

	events := collect(p.Generate(context.Background(), streamRequest("raw question")))

	assert.Empty(t, in.planCalls)
	assert.Equal(t, []string{"raw question"}, web.seen())
	assert.Contains(t, steps(events), en.IntentFailed)
	assert.True(t, strings.HasPrefix(model.system(t), "You are a helpful research assistant."))

	model.mu.Lock()
	assert.Equal(t, "raw question", model.requests[0][1].Content)
	model.mu.Unlock()
	assert.Contains(t, events, schema.Answer("answer"))
}

func TestGenerate_PlanFailureUsesEnrichedQuery(t *testing.T) {
	for name, in := range map[string]*fakeIntent{
		"error": {result: schema.IntentResult{EnrichedQuery: "better"}, planErr: errBoom},
		"empty": {result: schema.IntentResult{EnrichedQuery: "better"}},
	} {
		t.Run(name, func(t *testing.T) {
			web := &fakeSource{texts: map[string]string{"better": "w"}}
			model := &fakeLLM{answer: "a"}
			p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web}, nil)

			collect(p.Generate(context.Background(), NewRequest(userQuery("raw")...)))
			assert.Equal(t, []string{"better"}, web.seen())
		})
	}
}

func TestGenerate_QueryRewriteDisabledKeepsRawQuery(t *testing.T) {
	in := &fakeIntent{result: schema.IntentResult{UserIntent: schema.IntentProductQuery, EnrichedQuery: "rewritten"}}
	web := &fakeSource{}
	model := &fakeLLM{answer: "a"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web}, nil)

	req := NewRequest(userQuery("raw")...)
	req.QueryRewrite = false
	req.Planning = false
	collect(p.Generate(context.Background(), req))

	assert.Equal(t, []string{"raw"}, web.seen())
	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, "raw", model.requests[0][1].Content)
	assert.True(t, strings.HasPrefix(model.requests[0][0].Content, "You are a product specialist."))
}

func TestGenerate_GroundingModeBatchesQueries(t *testing.T) {
	in := &fakeIntent{plan: schema.SearchPlan{SearchQueries: []string{"g1", "g2"}}}
	grounder := &fakeGrounder{text: "grounded facts"}
	web := &fakeSource{}
	model := &fakeLLM{chunks: []string{"x"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Grounder: grounder, Web: web}, nil)

	req := streamRequest("q")
	req.SearchEngine = config.SearchEngineGrounding
	events := collect(p.Generate(context.Background(), req))

	assert.Equal(t, [][]string{{"g1", "g2"}}, grounder.batches)
	assert.Empty(t, web.seen())
	assert.Contains(t, steps(events), en.Searching+"...<br>0: "+en.SearchKeyword+": g1 <br>1: "+en.SearchKeyword+": g2 <br>")
	assert.Contains(t, model.system(t), "=== Grounding Search ===\ngrounded facts")
}

func TestGenerate_GroundingFailureContributesNoBlock(t *testing.T) {
	in := &fakeIntent{}
	model := &fakeLLM{answer: "a"}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Grounder: &fakeGrounder{err: errBoom}}, nil)

	req := NewRequest(userQuery("q")...)
	req.SearchEngine = config.SearchEngineGrounding
	collect(p.Generate(context.Background(), req))

	assert.Contains(t, model.system(t), schema.NoContext)
}

func TestGenerate_VideoProviderSelection(t *testing.T) {
	cases := []struct {
		name      string
		useMCP    bool
		direct    bool
		mcp       bool
		wantMCP   bool
		wantCalls bool
	}{
		{"mcp requested", true, true, true, true, true},
		{"direct requested", false, true, true, false, true},
		{"mcp missing falls back", true, true, false, false, true},
		{"direct missing falls back", false, false, true, true, true},
		{"none configured", true, false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			direct := &fakeSource{texts: map[string]string{"q": "direct"}}
			mcp := &fakeSource{texts: map[string]string{"q": "mcp"}}
			deps := Deps{Intent: &fakeIntent{}, LLM: &fakeLLM{answer: "a"}}
			if tc.direct {
				deps.Video = direct
			}
			if tc.mcp {
				deps.MCPVideo = mcp
			}
			p := newTestPipeline(t, deps, nil)

			req := NewRequest(userQuery("q")...)
			req.Planning = false
			req.IncludeMCPServer = tc.useMCP
			collect(p.Generate(context.Background(), req))

			switch {
			case !tc.wantCalls:
				assert.Empty(t, direct.seen())
				assert.Empty(t, mcp.seen())
			case tc.wantMCP:
				assert.Equal(t, []string{"q"}, mcp.seen())
				assert.Empty(t, direct.seen())
			default:
				assert.Equal(t, []string{"q"}, direct.seen())
				assert.Empty(t, mcp.seen())
			}
		})
	}
}

func TestGenerate_GenerationFailures(t *testing.T) {
	cases := []struct {
		name   string
		stream bool
		model  *fakeLLM
		want   []schema.Event
	}{
		{"complete error", false, &fakeLLM{err: errBoom}, []schema.Event{schema.Error("boom")}},
		{"complete empty", false, &fakeLLM{}, []schema.Event{schema.Error(llm.ErrEmptyResponse.Error())}},
		{"stream open error", true, &fakeLLM{openErr: errBoom}, []schema.Event{schema.Error("boom")}},
		{"stream empty", true, &fakeLLM{chunks: []string{"", ""}}, []schema.Event{schema.Error(llm.ErrEmptyResponse.Error())}},
		{"stream broken midway", true, &fakeLLM{chunks: []string{"par"}, streamErr: errBoom}, []schema.Event{schema.Answer("par"), schema.Error("boom")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: tc.model}, nil)
			req := NewRequest(userQuery("q")...)
			req.Stream = tc.stream
			var got []schema.Event
			for _, ev := range collect(p.Generate(context.Background(), req)) {
				if ev.Kind != schema.EventStatus {
					got = append(got, ev)
				}
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenerate_SequenceIsSingleUse(t *testing.T) {
	model := &fakeLLM{answer: "once"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model}, nil)

	req := NewRequest(userQuery("q")...)
	req.ElapsedTime = false
	seq := p.Generate(context.Background(), req)

	assert.Equal(t, []schema.Event{schema.Answer("once")}, collect(seq))
	assert.Equal(t, []schema.Event{schema.Error(ErrStreamConsumed.Error())}, collect(seq))
	assert.Equal(t, 1, model.calls())
}

func TestGenerate_ConsumerStopHaltsPipeline(t *testing.T) {
	in := &fakeIntent{}
	web := &fakeSource{}
	model := &fakeLLM{chunks: []string{"a", "b", "c"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web}, nil)

	for ev := range p.Generate(context.Background(), streamRequest("q")) {
		assert.Equal(t, schema.Status(en.Analyzing), ev)
		break
	}
	assert.Empty(t, in.classify)
	assert.Empty(t, web.seen())
	assert.Zero(t, model.calls())

	var answers []string
	for ev := range p.Generate(context.Background(), streamRequest("q")) {
		if ev.Kind == schema.EventAnswer {
			answers = append(answers, ev.Text)
			break
		}
	}
	assert.Equal(t, []string{"a"}, answers)
}

func TestGenerate_VerboseDiagnostics(t *testing.T) {
	in := &fakeIntent{
		result: schema.IntentResult{UserIntent: schema.IntentGeneralQuery, EnrichedQuery: "enriched"},
		plan:   schema.SearchPlan{SearchQueries: []string{"v1"}},
	}
	web := &fakeSource{texts: map[string]string{"v1": "web body"}}
	video := &fakeSource{errs: map[string]error{"v1": errBoom}}
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"v1": success(schema.Document{ID: "d", Content: strings.Repeat("z", 300)}),
	}}
	model := &fakeLLM{chunks: []string{"ok"}}
	p := newTestPipeline(t, Deps{Intent: in, LLM: model, Web: web, MCPVideo: video, Documents: docs}, nil)

	req := streamRequest("raw")
	req.Verbose = true
	events := collect(p.Generate(context.Background(), req))

	codes := map[string]string{}
	for _, ev := range events {
		if ev.Kind == schema.EventStatus && ev.Code != "" {
			codes[ev.Step] = ev.Code
		}
	}
	assert.Contains(t, codes[en.AnalyzeComplete], `"enriched_query": "enriched"`)
	assert.Contains(t, codes[en.PlanDone], `"v1"`)
	assert.Equal(t, "web body", codes[en.SearchDone])
	assert.Equal(t, strings.Repeat("z", 200)+post.DisplayTruncationMarker, codes[en.AISearchContextDone])
	_, videoDiag := codes[en.YouTubeDone]
	assert.False(t, videoDiag, "a source without fragments reports no diagnostic")
	assert.NotContains(t, steps(events), en.YouTubeDone)
}

func TestGenerate_RealTokenCounterDoesNotDelayAnswer(t *testing.T) {
	tokens := llm.NewTokenCounter("gpt-4o")
	t.Cleanup(func() { <-tokens.Ready() })
	model := &fakeLLM{answer: "counted"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model, Tokens: tokens}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := NewRequest(userQuery("q")...)
	req.Planning = false
	req.ElapsedTime = false
	events := collect(p.Generate(ctx, req))

	assert.Equal(t, []schema.Event{schema.Answer("counted")}, events)
	assert.NoError(t, ctx.Err())
}

func TestGenerate_StageTimeoutDegradesSource(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.StageTimeoutMs = 20
	web := &fakeSource{block: true}
	model := &fakeLLM{answer: "still answered"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model, Web: web}, cfg)

	req := NewRequest(userQuery("q")...)
	req.Planning = false
	events := collect(p.Generate(context.Background(), req))

	assert.Equal(t, schema.Answer("still answered"), events[0])
	assert.Contains(t, model.system(t), schema.NoContext)
}

type panickingVideo struct{}

func (panickingVideo) SearchVideos(context.Context, string) (string, error) {
	panic("provider bug")
}

func TestGenerate_PanickingSourceIsSkipped(t *testing.T) {
	model := &fakeLLM{answer: "fine"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model, Video: panickingVideo{}}, nil)

	req := NewRequest(userQuery("q")...)
	req.IncludeMCPServer = false
	events := collect(p.Generate(context.Background(), req))
	assert.Equal(t, schema.Answer("fine"), events[0])
}

func TestGenerate_RequestDefaultsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.MaxTokens = 321
	cfg.LLM.Temperature = 0.4
	model := &fakeLLM{answer: "a"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model}, cfg)

	collect(p.Generate(context.Background(), NewRequest(userQuery("q")...)))

	zero := 0.0
	req := NewRequest(userQuery("q")...)
	req.MaxTokens = 10
	req.Temperature = &zero
	collect(p.Generate(context.Background(), req))

	model.mu.Lock()
	defer model.mu.Unlock()
	assert.Equal(t, llm.CompletionOptions{MaxTokens: 321, Temperature: 0.4}, model.options[0])
	assert.Equal(t, llm.CompletionOptions{MaxTokens: 10, Temperature: 0}, model.options[1])
}

func TestGenerate_UnsupportedLocaleFallsBackForStatus(t *testing.T) {
	ko, _ := locale.MustLoad().Resolve(locale.Default)
	model := &fakeLLM{chunks: []string{"a"}}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model}, nil)

	req := streamRequest("q")
	req.Locale = "fr-FR"
	events := collect(p.Generate(context.Background(), req))

	assert.Equal(t, schema.Status(ko.Analyzing), events[0])
	assert.Contains(t, model.system(t), "fr-FR")
}

func TestGenerate_ConcurrentRequestsAreIsolated(t *testing.T) {
	docs := &fakeDocuments{results: map[string]schema.DocumentSearchResult{
		"shared": success(schema.Document{ID: "same", Content: "body"}),
	}}
	model := &fakeLLM{answer: "a"}
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: model, Documents: docs}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := NewRequest(userQuery("shared")...)
			req.Planning = false
			collect(p.Generate(context.Background(), req))
		}()
	}
	wg.Wait()

	model.mu.Lock()
	defer model.mu.Unlock()
	require.Len(t, model.requests, 8)
	for _, msgs := range model.requests {
		assert.Contains(t, msgs[0].Content, "=== Document Context ===\nbody")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{LLM: &fakeLLM{}}, testConfig())
	assert.Error(t, err)
	_, err = New(Deps{Intent: &fakeIntent{}}, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Pipeline.Timezone = "Nowhere/Special"
	_, err = New(Deps{Intent: &fakeIntent{}, LLM: &fakeLLM{}}, cfg)
	assert.Error(t, err)
}

func TestClose_ReleasesClosersOnce(t *testing.T) {
	shared := &closingSource{}
	failing := &closingSource{err: errors.New("mcp close")}
	p := newTestPipeline(t, Deps{
		Intent:   &fakeIntent{},
		LLM:      &fakeLLM{},
		Web:      shared,
		Video:    shared,
		MCPVideo: failing,
	}, nil)

	err := p.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mcp close")
	assert.Equal(t, 1, shared.closed)
	assert.Equal(t, 1, failing.closed)

	assert.Equal(t, err, p.Close())
	assert.Equal(t, 1, shared.closed)
}

func TestClose_NoClosers(t *testing.T) {
	var nilSource *closingSource
	p := newTestPipeline(t, Deps{Intent: &fakeIntent{}, LLM: &fakeLLM{}, Web: nilSource}, nil)
	assert.NoError(t, p.Close())
}

func TestStageResult(t *testing.T) {
	ok := Succeeded(3)
	assert.True(t, ok.OK())
	assert.Equal(t, 3, ok.Value)

	bad := Failed[int](errBoom)
	assert.False(t, bad.OK())
	assert.ErrorIs(t, bad.Err, errBoom)

	var f Fragments
	f.add(Succeeded("a"))
	f.add(Succeeded(""))
	f.add(Failed[string](errBoom))
	assert.Equal(t, Fragments{Texts: []string{"a"}, Calls: 3, Failures: 1}, f)
}

func TestCollect(t *testing.T) {
	seq := func(events ...schema.Event) func(func(schema.Event) bool) {
		return func(yield func(schema.Event) bool) {
			for _, ev := range events {
				if !yield(ev) {
					return
				}
			}
		}
	}

	text, err := Collect(seq(schema.Status("s"), schema.Answer("a"), schema.Answer("b"), schema.Telemetry("took 1 seconds")))
	require.NoError(t, err)
	assert.Equal(t, "ab\n\ntook 1 seconds", text)

	text, err = Collect(seq(schema.Answer("part"), schema.Error("boom"), schema.Answer("never")))
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "part", text)
}

var _ Generator = (*Pipeline)(nil)
