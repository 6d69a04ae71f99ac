package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	stageLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plansearch_stage_latency_ms",
		Help:    "Latency of pipeline stages in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
	}, []string{"stage", "outcome"})

	retrievalFragments = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plansearch_retrieval_fragments",
		Help:    "Number of context fragments a retrieval source produced per request",
		Buckets: []float64{0, 1, 2, 3, 5, 8},
	}, []string{"source"})

	retrievalFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plansearch_retrieval_failures_total",
		Help: "Retrieval calls that failed and were skipped",
	}, []string{"source"})

	budgetDocuments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plansearch_budget_documents_total",
		Help: "Documents seen by the context budgeter by outcome (admitted/duplicate/empty/rejected/truncated)",
	}, []string{"outcome"})

	timeToFirstToken = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plansearch_time_to_first_token_seconds",
		Help:    "Elapsed time from request start to the first answer fragment",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 12, 20, 30, 60},
	})

	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plansearch_requests_total",
		Help: "Plan search requests by intent and result",
	}, []string{"intent", "result"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// Handler serves the default registry with the pipeline collectors registered.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}

// ObserveStage records the latency of one pipeline stage.
func ObserveStage(stage string, start time.Time, err error) {
	ensureRegistered()
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	stageLatency.WithLabelValues(stage, outcome).Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveFragments records how many fragments a source contributed.
func ObserveFragments(source string, n int) {
	ensureRegistered()
	retrievalFragments.WithLabelValues(source).Observe(float64(n))
}

func IncRetrievalFailure(source string) {
	ensureRegistered()
	retrievalFailures.WithLabelValues(source).Inc()
}

// AddBudgetOutcome adds n documents to the budgeter outcome counter.
func AddBudgetOutcome(outcome string, n int) {
	ensureRegistered()
	if n > 0 {
		budgetDocuments.WithLabelValues(outcome).Add(float64(n))
	}
}

func ObserveTTFT(d time.Duration) {
	ensureRegistered()
	timeToFirstToken.Observe(d.Seconds())
}

func IncRequest(intent, result string) {
	ensureRegistered()
	requests.WithLabelValues(intent, result).Inc()
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		stageLatency, retrievalFragments, retrievalFailures, budgetDocuments, timeToFirstToken, requests,
	}
}
