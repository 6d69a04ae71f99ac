package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

//go:embed templates.yaml
var templatesYAML []byte

// Templates holds the answer system prompts keyed by intent family.
type Templates struct {
	General string `yaml:"general"`
	Product string `yaml:"product"`
}

// LoadTemplates parses the embedded answer templates.
func LoadTemplates() (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(templatesYAML, &t); err != nil {
		return Templates{}, fmt.Errorf("load answer templates: %w", err)
	}
	if t.General == "" || t.Product == "" {
		return Templates{}, fmt.Errorf("load answer templates: general and product templates are required")
	}
	return t, nil
}

// Input is everything the answer prompt is built from.
type Input struct {
	Intent   schema.Intent
	Date     time.Time
	Contexts string
	Question string
	Locale   string
}

// Assembler selects and fills the answer template. It is a pure function of
// its input and safe for concurrent use.
type Assembler struct {
	templates Templates
	location  *time.Location
}

func NewAssembler(t Templates, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{templates: t, location: loc}
}

// Template returns the system template for an intent; product_query gets the
// product template, everything else the general one.
func (a *Assembler) Template(intent schema.Intent) string {
	if intent == schema.IntentProductQuery {
		return a.templates.Product
	}
	return a.templates.General
}

// Assemble returns [system, user] messages for the generation call.
func (a *Assembler) Assemble(in Input) []schema.ChatMessage {
	// single pass, so braces inside retrieved text are never expanded
	r := strings.NewReplacer(
		"{current_date}", in.Date.In(a.location).Format(time.DateOnly),
		"{contexts}", in.Contexts,
		"{question}", in.Question,
		"{locale}", in.Locale,
	)
	return []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: r.Replace(a.Template(in.Intent))},
		{Role: schema.RoleUser, Content: in.Question},
	}
}
