package metrics

import (
	"encoding/json"
	"time"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
)

// RequestMetrics is the per-request record logged once a response finishes.
type RequestMetrics struct {
	RequestID string    `json:"request_id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
	Locale    string    `json:"locale"`

	Intent        string `json:"intent,omitempty"`
	IntentFailed  bool   `json:"intent_failed,omitempty"`
	PlanFailed    bool   `json:"plan_failed,omitempty"`
	SearchQueries int    `json:"search_queries"`
	SearchEngine  string `json:"search_engine,omitempty"`

	Sources map[string]SourceStats `json:"sources"`

	DocumentsAdmitted  int  `json:"documents_admitted"`
	DocumentsRejected  int  `json:"documents_rejected,omitempty"`
	DuplicateDocuments int  `json:"duplicate_documents,omitempty"`
	ContextChars       int  `json:"context_chars"`
	PromptTokens       int  `json:"prompt_tokens,omitempty"`
	Stream             bool `json:"stream"`

	TTFTMs         int64  `json:"ttft_ms,omitempty"`
	TotalLatencyMs int64  `json:"total_latency_ms"`
	Success        bool   `json:"success"`
	ErrorMsg       string `json:"error_msg,omitempty"`
}

// SourceStats summarizes one retrieval source within a request.
type SourceStats struct {
	Calls     int   `json:"calls"`
	Failures  int   `json:"failures"`
	Fragments int   `json:"fragments"`
	LatencyMs int64 `json:"latency_ms"`
}

func NewRequestMetrics(requestID, query string) *RequestMetrics {
	return &RequestMetrics{
		RequestID: requestID,
		Query:     query,
		Timestamp: time.Now(),
		Sources:   make(map[string]SourceStats),
	}
}

// AddSource merges stats for a source into the record.
func (m *RequestMetrics) AddSource(source string, s SourceStats) {
	if m.Sources == nil {
		m.Sources = make(map[string]SourceStats)
	}
	existing := m.Sources[source]
	existing.Calls += s.Calls
	existing.Failures += s.Failures
	existing.Fragments += s.Fragments
	existing.LatencyMs += s.LatencyMs
	m.Sources[source] = existing
}

// LogJSON writes the record as a single JSON log line.
func (m *RequestMetrics) LogJSON() {
	if data, err := json.Marshal(m); err == nil {
		logger.Infof("[PLANSEARCH_METRICS] %s", string(data))
	}
}
