package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PLANSEARCH_LLM_API_KEY.
const EnvPrefix = "PLANSEARCH"

// Load reads an optional .env file, the YAML config at path (may be empty)
// and PLANSEARCH_* environment overrides on top of Default(), then validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of def so AutomaticEnv can override keys
// that the YAML file does not mention.
func setDefaults(v *viper.Viper, def *Config) {
	d := map[string]any{
		"llm.provider":    def.LLM.Provider,
		"llm.api_key":     def.LLM.APIKey,
		"llm.base_url":    def.LLM.BaseURL,
		"llm.api_version": def.LLM.APIVersion,
		"llm.model":       def.LLM.Model,
		"llm.query_model": def.LLM.QueryModel,
		"llm.temperature": def.LLM.Temperature,
		"llm.max_tokens":  def.LLM.MaxTokens,

		"embedding.provider":   def.Embedding.Provider,
		"embedding.api_key":    def.Embedding.APIKey,
		"embedding.base_url":   def.Embedding.BaseURL,
		"embedding.model":      def.Embedding.Model,
		"embedding.dimensions": def.Embedding.Dimensions,

		"pipeline.timezone":            def.Pipeline.Timezone,
		"pipeline.default_locale":      def.Pipeline.DefaultLocale,
		"pipeline.search_engine":       string(def.Pipeline.SearchEngine),
		"pipeline.stage_timeout_ms":    def.Pipeline.StageTimeoutMs,
		"pipeline.document_top_k":      def.Pipeline.DocumentTopK,
		"pipeline.documents_per_query": def.Pipeline.DocumentsPerQuery,
		"pipeline.max_document_chars":  def.Pipeline.MaxDocumentChars,
		"pipeline.max_context_chars":   def.Pipeline.MaxContextChars,

		"planner.max_plans": def.Planner.MaxPlans,

		"web.provider":           def.Web.Provider,
		"web.endpoint":           def.Web.Endpoint,
		"web.api_key":            def.Web.APIKey,
		"web.market":             def.Web.Market,
		"web.max_results":        def.Web.MaxResults,
		"web.max_context_length": def.Web.MaxContextLength,
		"web.crawl":              def.Web.Crawl,

		"grounding.results_per_query": def.Grounding.ResultsPerQuery,

		"video.api_key":       def.Video.APIKey,
		"video.endpoint":      def.Video.Endpoint,
		"video.max_results":   def.Video.MaxResults,
		"video.mcp_endpoint":  def.Video.MCPEndpoint,
		"video.mcp_transport": def.Video.MCPTransport,
		"video.mcp_tool":      def.Video.MCPTool,

		"documents.provider":                 def.Documents.Provider,
		"documents.milvus.address":           def.Documents.Milvus.Address,
		"documents.milvus.username":          def.Documents.Milvus.Username,
		"documents.milvus.password":          def.Documents.Milvus.Password,
		"documents.milvus.database":          def.Documents.Milvus.Database,
		"documents.milvus.collection":        def.Documents.Milvus.Collection,
		"documents.milvus.vector_field":      def.Documents.Milvus.VectorField,
		"documents.milvus.metric_type":       def.Documents.Milvus.MetricType,
		"documents.elasticsearch.addresses":  def.Documents.Elasticsearch.Addresses,
		"documents.elasticsearch.username":   def.Documents.Elasticsearch.Username,
		"documents.elasticsearch.password":   def.Documents.Elasticsearch.Password,
		"documents.elasticsearch.api_key":    def.Documents.Elasticsearch.APIKey,
		"documents.elasticsearch.index":      def.Documents.Elasticsearch.Index,
		"http.timeout_ms":                    def.HTTP.TimeoutMs,
		"http.retry":                         def.HTTP.Retry,
		"http.backoff_min_ms":                def.HTTP.BackoffMinMs,
		"http.backoff_max_ms":                def.HTTP.BackoffMaxMs,
		"http.host_allowlist":                def.HTTP.HostAllowlist,
		"http.max_consecutive_failures":      def.HTTP.MaxConsecutiveFailures,
		"http.circuit_open_seconds":          def.HTTP.CircuitOpenSeconds,

		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"server.name":     def.Server.Name,
		"server.addr":     def.Server.Addr,
		"server.mcp_addr": def.Server.MCPAddr,

		"telemetry.otlp_endpoint": def.Telemetry.OTLPEndpoint,
		"telemetry.insecure":      def.Telemetry.Insecure,
		"telemetry.sample_ratio":  def.Telemetry.SampleRatio,
	}
	for _, store := range []string{"milvus", "elasticsearch"} {
		f := def.Documents.Milvus.Fields
		if store == "elasticsearch" {
			f = def.Documents.Elasticsearch.Fields
		}
		prefix := "documents." + store + ".fields."
		d[prefix+"id"] = f.ID
		d[prefix+"title"] = f.Title
		d[prefix+"url"] = f.URL
		d[prefix+"content"] = f.Content
		d[prefix+"summary"] = f.Summary
	}
	for k, val := range d {
		v.SetDefault(k, val)
	}
}
