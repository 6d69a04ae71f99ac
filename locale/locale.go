package locale

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Default is used for absent or unrecognized locales.
const Default = "ko-KR"

//go:embed messages.yaml
var messagesYAML []byte

// Messages are the user-facing status strings of one locale.
type Messages struct {
	InputNeeded         string `yaml:"input_needed"`
	Analyzing           string `yaml:"analyzing"`
	AnalyzeComplete     string `yaml:"analyze_complete"`
	IntentSmallTalk     string `yaml:"intent_small_talk"`
	IntentFailed        string `yaml:"intent_failed"`
	SearchPlanning      string `yaml:"search_planning"`
	PlanDone            string `yaml:"plan_done"`
	Searching           string `yaml:"searching"`
	SearchKeyword       string `yaml:"search_keyword"`
	SearchDone          string `yaml:"search_done"`
	SearchingYouTube    string `yaml:"searching_YouTube"`
	YouTubeDone         string `yaml:"YouTube_done"`
	AISearchContext     string `yaml:"ai_search_context"`
	AISearchContextDone string `yaml:"ai_search_context_done"`
	Answering           string `yaml:"answering"`
}

// Catalog resolves locale tags to message tables.
type Catalog struct {
	tables   map[string]Messages
	fallback string
}

// Load parses the embedded tables.
func Load() (*Catalog, error) {
	return Parse(messagesYAML, Default)
}

// MustLoad is Load for package initialization paths.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML keyed by locale tag.
func Parse(data []byte, fallback string) (*Catalog, error) {
	tables := map[string]Messages{}
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse locale messages: %w", err)
	}
	if _, ok := tables[fallback]; !ok {
		return nil, fmt.Errorf("locale messages: missing fallback locale %s", fallback)
	}
	return &Catalog{tables: tables, fallback: fallback}, nil
}

// Resolve returns the table for tag and the tag actually used.
func (c *Catalog) Resolve(tag string) (Messages, string) {
	if m, ok := c.tables[tag]; ok {
		return m, tag
	}
	return c.tables[c.fallback], c.fallback
}

// Supported lists known locale tags in sorted order.
func (c *Catalog) Supported() []string {
	out := make([]string, 0, len(c.tables))
	for k := range c.tables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
