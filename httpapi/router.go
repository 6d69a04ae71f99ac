package httpapi

import (
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/metrics"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/orchestrator"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// NewRouter serves the pipeline over HTTP:
//
//	POST /plan_search  run one request, SSE when "stream" is true
//	GET  /metrics      prometheus collectors
//	GET  /healthz      liveness
func NewRouter(gen orchestrator.Generator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	h := &planSearchHandler{gen: gen}
	r.POST("/plan_search", h.serve)
	return r
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type planSearchHandler struct {
	gen orchestrator.Generator
}

func (h *planSearchHandler) serve(c *gin.Context) {
	req := orchestrator.NewRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.SearchEngine != "" {
		if _, err := config.ParseSearchEngine(string(req.SearchEngine)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	seq := h.gen.Generate(c.Request.Context(), req)
	if req.Stream {
		h.stream(c, seq)
		return
	}

	answer, err := orchestrator.Collect(seq)
	if err != nil {
		c.String(http.StatusBadGateway, "%s", schema.Error(err.Error()).Marker())
		return
	}
	c.String(http.StatusOK, "%s", answer)
}

// stream writes every event as one SSE message carrying its text marker,
// then a [DONE] sentinel.
func (h *planSearchHandler) stream(c *gin.Context, seq iter.Seq[schema.Event]) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for ev := range seq {
		if err := writeSSE(w, ev.Marker()); err != nil {
			logger.Warnf("plan_search stream aborted: %v", err)
			return
		}
		w.Flush()
	}
	_ = writeSSE(w, "[DONE]")
	w.Flush()
}

// writeSSE frames data as one event; embedded newlines become extra data lines.
func writeSSE(w gin.ResponseWriter, data string) error {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := w.WriteString(b.String())
	return err
}
