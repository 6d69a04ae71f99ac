package schema

import (
	"strings"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of the conversation supplied by the caller.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastUserMessage returns the content of the most recent user turn.
func LastUserMessage(messages []ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}

// Intent classifies a user query into a handling category.
type Intent string

const (
	IntentSmallTalk    Intent = "small_talk"
	IntentGeneralQuery Intent = "general_query"
	IntentProductQuery Intent = "product_query"
)

// IntentResult is the classifier output. ResourceGroupName is carried as
// metadata and not consumed by the pipeline.
type IntentResult struct {
	UserIntent        Intent `json:"user_intent"`
	EnrichedQuery     string `json:"enriched_query"`
	SearchQuery       string `json:"search_query"`
	ResourceGroupName string `json:"resource_group_name,omitempty"`
}

// SearchPlan is the ordered list of queries fanned out to every retriever.
type SearchPlan struct {
	SearchQueries []string `json:"search_queries"`
}

// Document is one hit from the indexed document store.
type Document struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Content string  `json:"content,omitempty"`
	Summary string  `json:"summary,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

const DocumentSearchSuccess = "success"

// DocumentSearchResult mirrors the document search contract.
type DocumentSearchResult struct {
	Status    string     `json:"status"`
	Documents []Document `json:"documents"`
}

// OK reports whether the result carries usable documents.
func (r DocumentSearchResult) OK() bool {
	return r.Status == DocumentSearchSuccess && len(r.Documents) > 0
}

// DocumentRecord is a document admitted by the context budgeter.
type DocumentRecord struct {
	Identity string
	Text     string
}

// Context block labels, in source order.
const (
	LabelGrounding = "Grounding Search"
	LabelWeb       = "Web Search"
	LabelVideo     = "Youtube Search"
	LabelDocuments = "Document Context"
)

// NoContext replaces the aggregated context when no source produced a block.
const NoContext = "No relevant context found."

// ContextBlock is one labeled chunk of retrieved text.
type ContextBlock struct {
	Label string
	Body  string
}

func (b ContextBlock) String() string {
	return "=== " + b.Label + " ===\n" + b.Body
}

// AggregatedContext joins blocks with a blank line, or returns NoContext.
func AggregatedContext(blocks []ContextBlock) string {
	if len(blocks) == 0 {
		return NoContext
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}
