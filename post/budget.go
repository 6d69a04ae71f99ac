package post

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

const (
	TruncationMarker        = "... [truncated]"
	DisplayTruncationMarker = "... [truncated for display]"
)

// Budget bounds the document context of one request.
type Budget struct {
	// DocumentsPerQuery is how many hits of each query are considered.
	DocumentsPerQuery int
	// MaxDocumentChars caps a single document before the marker is appended.
	MaxDocumentChars int
	// MaxContextChars caps the sum of admitted document texts.
	MaxContextChars int
}

func DefaultBudget() Budget {
	return Budget{
		DocumentsPerQuery: 2,
		MaxDocumentChars:  10000,
		MaxContextChars:   400000,
	}
}

// BudgetStats summarizes what the budgeter did with the documents it saw.
type BudgetStats struct {
	Admitted   int `json:"admitted"`
	Duplicates int `json:"duplicates"`
	Empty      int `json:"empty"`
	Truncated  int `json:"truncated"`
	Rejected   int `json:"rejected"`
	TotalChars int `json:"total_chars"`
}

// Budgeter deduplicates and truncates documents for one request. It is not
// safe for concurrent use; create one per request.
type Budgeter struct {
	budget    Budget
	seen      map[string]struct{}
	records   []schema.DocumentRecord
	total     int
	exhausted bool
	stats     BudgetStats
}

func NewBudgeter(b Budget) *Budgeter {
	def := DefaultBudget()
	if b.DocumentsPerQuery <= 0 {
		b.DocumentsPerQuery = def.DocumentsPerQuery
	}
	if b.MaxDocumentChars <= 0 {
		b.MaxDocumentChars = def.MaxDocumentChars
	}
	if b.MaxContextChars <= 0 {
		b.MaxContextChars = def.MaxContextChars
	}
	return &Budgeter{budget: b, seen: map[string]struct{}{}}
}

// Admit considers the leading documents of the query at queryIdx. It returns
// false once the global ceiling has stopped the stage; callers must not issue
// further queries after that.
func (b *Budgeter) Admit(queryIdx int, docs []schema.Document) bool {
	if b.Exhausted() {
		return false
	}
	if len(docs) > b.budget.DocumentsPerQuery {
		docs = docs[:b.budget.DocumentsPerQuery]
	}
	for i, doc := range docs {
		id := Identity(doc, queryIdx, i+1)
		if _, dup := b.seen[id]; dup {
			logger.Debugf("budget: skipping duplicate document %s", id)
			b.stats.Duplicates++
			continue
		}
		b.seen[id] = struct{}{}

		text, ok := b.extract(doc)
		if !ok {
			logger.Warnf("budget: document %s has no usable content", id)
			b.stats.Empty++
			continue
		}

		n := utf8.RuneCountInString(text)
		if b.total+n > b.budget.MaxContextChars {
			logger.Warnf("budget: context ceiling %d reached at %d chars, dropping %s and stopping", b.budget.MaxContextChars, b.total, id)
			b.stats.Rejected++
			b.exhausted = true
			return false
		}
		b.records = append(b.records, schema.DocumentRecord{Identity: id, Text: text})
		b.total += n
		b.stats.Admitted++
	}
	if b.Exhausted() {
		logger.Warnf("budget: reached maximum context length %d, stopping document search", b.total)
		return false
	}
	return true
}

// Exhausted reports whether no further documents can be admitted.
func (b *Budgeter) Exhausted() bool {
	return b.exhausted || b.total >= b.budget.MaxContextChars
}

func (b *Budgeter) extract(doc schema.Document) (string, bool) {
	text := doc.Content
	if text == "" {
		text = doc.Summary
	}
	if text == "" {
		return "", false
	}
	out, cut := Truncate(text, b.budget.MaxDocumentChars, TruncationMarker)
	if cut {
		b.stats.Truncated++
	}
	return out, true
}

// Records returns admitted documents in admission order.
func (b *Budgeter) Records() []schema.DocumentRecord {
	return b.records
}

// Text joins admitted documents with blank lines.
func (b *Budgeter) Text() string {
	parts := make([]string, 0, len(b.records))
	for _, r := range b.records {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Total is the running sum of admitted text lengths in characters.
func (b *Budgeter) Total() int {
	return b.total
}

func (b *Budgeter) Stats() BudgetStats {
	s := b.stats
	s.TotalChars = b.total
	return s
}

// Identity is id, else title, else url, else doc_<queryIdx>_<docIdx>.
func Identity(doc schema.Document, queryIdx, docIdx int) string {
	switch {
	case doc.ID != "":
		return doc.ID
	case doc.Title != "":
		return doc.Title
	case doc.URL != "":
		return doc.URL
	}
	return "doc_" + strconv.Itoa(queryIdx) + "_" + strconv.Itoa(docIdx)
}

// Truncate keeps the first max characters of text and appends marker when
// anything was cut.
func Truncate(text string, max int, marker string) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text, false
	}
	i, n := 0, 0
	for i = range text {
		if n == max {
			break
		}
		n++
	}
	return text[:i] + marker, true
}
