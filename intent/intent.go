package intent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/llm"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

//go:embed prompts.yaml
var promptsYAML []byte

const (
	classifyTemperature = 0.3
	planTemperature     = 0.7
	maxResponseTokens   = 800
)

// ErrUnparseable is returned when the model answer is not a JSON object.
var ErrUnparseable = errors.New("intent: unparseable model output")

// Service classifies a query and plans searches for it.
type Service interface {
	Classify(ctx context.Context, query, locale string) (schema.IntentResult, error)
	Plan(ctx context.Context, userIntent schema.Intent, enrichedQuery, locale string) (schema.SearchPlan, error)
}

type prompts struct {
	Intent  string `yaml:"intent"`
	Planner string `yaml:"planner"`
}

// Analyzer implements Service with two chat completions.
type Analyzer struct {
	provider llm.Provider
	model    string
	maxPlans int
	location *time.Location
	now      func() time.Time
	prompts  prompts
}

type Option func(*Analyzer)

// WithModel selects a cheaper model for classification and planning.
func WithModel(model string) Option {
	return func(a *Analyzer) { a.model = model }
}

func WithMaxPlans(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxPlans = n
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		if loc != nil {
			a.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(provider llm.Provider, opts ...Option) (*Analyzer, error) {
	var p prompts
	if err := yaml.Unmarshal(promptsYAML, &p); err != nil {
		return nil, fmt.Errorf("load intent prompts: %w", err)
	}
	a := &Analyzer{
		provider: provider,
		maxPlans: 3,
		location: time.UTC,
		now:      time.Now,
		prompts:  p,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Classify returns the intent of query. Missing fields fall back to the
// general intent and the raw query.
func (a *Analyzer) Classify(ctx context.Context, query, locale string) (schema.IntentResult, error) {
	system := a.fill(a.prompts.Intent, map[string]string{"locale": locale})
	out, err := a.provider.Complete(ctx, []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: system},
		{Role: schema.RoleUser, Content: query},
	}, llm.CompletionOptions{
		Model:       a.model,
		Temperature: classifyTemperature,
		MaxTokens:   maxResponseTokens,
		JSON:        true,
	})
	if err != nil {
		return schema.IntentResult{}, fmt.Errorf("classify intent: %w", err)
	}
	return ParseIntent(out, query)
}

// Plan returns up to maxPlans search queries for enrichedQuery.
func (a *Analyzer) Plan(ctx context.Context, userIntent schema.Intent, enrichedQuery, locale string) (schema.SearchPlan, error) {
	system := a.fill(a.prompts.Planner, map[string]string{
		"locale":      locale,
		"user_intent": string(userIntent),
		"max_plans":   strconv.Itoa(a.maxPlans),
	})
	out, err := a.provider.Complete(ctx, []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: system},
		{Role: schema.RoleUser, Content: enrichedQuery},
	}, llm.CompletionOptions{
		Model:       a.model,
		Temperature: planTemperature,
		MaxTokens:   maxResponseTokens,
		JSON:        true,
	})
	if err != nil {
		return schema.SearchPlan{}, fmt.Errorf("plan searches: %w", err)
	}
	plan, err := ParsePlan(out, enrichedQuery, a.maxPlans)
	if err != nil {
		return schema.SearchPlan{}, err
	}
	logger.Debugf("intent: planned %d queries for %q", len(plan.SearchQueries), enrichedQuery)
	return plan, nil
}

func (a *Analyzer) fill(tmpl string, vars map[string]string) string {
	pairs := []string{"{current_date}", a.now().In(a.location).Format(time.DateOnly)}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ParseIntent extracts an IntentResult from model output.
func ParseIntent(out, query string) (schema.IntentResult, error) {
	doc, err := jsonObject(out)
	if err != nil {
		return schema.IntentResult{}, err
	}
	res := schema.IntentResult{
		UserIntent:        schema.Intent(stringOr(doc.Get("user_intent"), string(schema.IntentGeneralQuery))),
		EnrichedQuery:     stringOr(doc.Get("enriched_query"), query),
		SearchQuery:       stringOr(doc.Get("search_query"), query),
		ResourceGroupName: strings.TrimSpace(doc.Get("resource_group_name").String()),
	}
	return res, nil
}

// ParsePlan extracts search_queries, dropping blanks and capping at maxPlans.
// An absent or empty list collapses to the enriched query.
func ParsePlan(out, enrichedQuery string, maxPlans int) (schema.SearchPlan, error) {
	doc, err := jsonObject(out)
	if err != nil {
		return schema.SearchPlan{}, err
	}
	var queries []string
	for _, q := range doc.Get("search_queries").Array() {
		if s := strings.TrimSpace(q.String()); s != "" {
			queries = append(queries, s)
		}
		if maxPlans > 0 && len(queries) == maxPlans {
			break
		}
	}
	if len(queries) == 0 {
		queries = []string{enrichedQuery}
	}
	return schema.SearchPlan{SearchQueries: queries}, nil
}

func jsonObject(out string) (gjson.Result, error) {
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" || !gjson.Valid(s) {
		return gjson.Result{}, ErrUnparseable
	}
	doc := gjson.Parse(s)
	if !doc.IsObject() {
		return gjson.Result{}, ErrUnparseable
	}
	return doc, nil
}

func stringOr(r gjson.Result, def string) string {
	if s := strings.TrimSpace(r.String()); s != "" && r.Type == gjson.String {
		return s
	}
	return def
}
