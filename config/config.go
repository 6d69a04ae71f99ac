package config

import "fmt"

// Config is the complete configuration of the plan-search service.
type Config struct {
	LLM       LLMConfig         `json:"llm" yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig   `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Pipeline  PipelineConfig    `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Planner   PlannerConfig     `json:"planner" yaml:"planner" mapstructure:"planner"`
	Web       WebConfig         `json:"web" yaml:"web" mapstructure:"web"`
	Grounding GroundingConfig   `json:"grounding" yaml:"grounding" mapstructure:"grounding"`
	Video     VideoConfig       `json:"video" yaml:"video" mapstructure:"video"`
	Documents DocumentsConfig   `json:"documents" yaml:"documents" mapstructure:"documents"`
	HTTP      *HTTPClientConfig `json:"http,omitempty" yaml:"http,omitempty" mapstructure:"http"`
	Log       LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
	Server    ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
	Telemetry TelemetryConfig   `json:"telemetry" yaml:"telemetry" mapstructure:"telemetry"`
}

// LLMConfig configures the chat completion service used for intent
// classification, planning, grounding synthesis and the final answer.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider" mapstructure:"provider"` // openai | azure
	APIKey      string  `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIVersion  string  `json:"api_version,omitempty" yaml:"api_version,omitempty" mapstructure:"api_version"`
	Model       string  `json:"model" yaml:"model" mapstructure:"model"`
	QueryModel  string  `json:"query_model,omitempty" yaml:"query_model,omitempty" mapstructure:"query_model"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EmbeddingConfig configures query embeddings for the vector document store.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider" mapstructure:"provider"`
	APIKey     string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Model      string `json:"model" yaml:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
}

// SearchEngine selects the web retrieval strategy.
type SearchEngine string

const (
	SearchEngineGrounding         SearchEngine = "grounding"
	SearchEngineSearchCrawling    SearchEngine = "search_crawling"
	SearchEngineGroundingCrawling SearchEngine = "grounding_crawling"
)

// Crawls reports whether the engine issues one search-and-crawl call per query.
func (e SearchEngine) Crawls() bool {
	return e == SearchEngineSearchCrawling || e == SearchEngineGroundingCrawling
}

func ParseSearchEngine(s string) (SearchEngine, error) {
	switch e := SearchEngine(s); e {
	case SearchEngineGrounding, SearchEngineSearchCrawling, SearchEngineGroundingCrawling:
		return e, nil
	}
	return "", fmt.Errorf("unknown search engine %q", s)
}

// PipelineConfig holds request defaults and hardening knobs.
type PipelineConfig struct {
	Timezone      string       `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
	DefaultLocale string       `json:"default_locale" yaml:"default_locale" mapstructure:"default_locale"`
	SearchEngine  SearchEngine `json:"search_engine" yaml:"search_engine" mapstructure:"search_engine"`
	// StageTimeoutMs bounds each collaborator call; 0 disables the deadline.
	StageTimeoutMs int `json:"stage_timeout_ms,omitempty" yaml:"stage_timeout_ms,omitempty" mapstructure:"stage_timeout_ms"`
	// DocumentTopK and DocumentsPerQuery feed the context budgeter.
	DocumentTopK      int `json:"document_top_k" yaml:"document_top_k" mapstructure:"document_top_k"`
	DocumentsPerQuery int `json:"documents_per_query" yaml:"documents_per_query" mapstructure:"documents_per_query"`
	MaxDocumentChars  int `json:"max_document_chars" yaml:"max_document_chars" mapstructure:"max_document_chars"`
	MaxContextChars   int `json:"max_context_chars" yaml:"max_context_chars" mapstructure:"max_context_chars"`
}

type PlannerConfig struct {
	MaxPlans int `json:"max_plans" yaml:"max_plans" mapstructure:"max_plans"`
}

// WebConfig configures the search-and-crawl web retriever.
type WebConfig struct {
	Provider         string `json:"provider" yaml:"provider" mapstructure:"provider"` // bing | duckduckgo
	Endpoint         string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	APIKey           string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Market           string `json:"market,omitempty" yaml:"market,omitempty" mapstructure:"market"`
	MaxResults       int    `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
	MaxContextLength int    `json:"max_context_length" yaml:"max_context_length" mapstructure:"max_context_length"`
	Crawl            bool   `json:"crawl" yaml:"crawl" mapstructure:"crawl"`
}

// GroundingConfig configures the batched grounding retriever.
type GroundingConfig struct {
	ResultsPerQuery int `json:"results_per_query" yaml:"results_per_query" mapstructure:"results_per_query"`
}

// VideoConfig configures both video search providers.
type VideoConfig struct {
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	MaxResults int    `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
	// MCP server exposing a video search tool.
	MCPEndpoint  string `json:"mcp_endpoint,omitempty" yaml:"mcp_endpoint,omitempty" mapstructure:"mcp_endpoint"`
	MCPTransport string `json:"mcp_transport,omitempty" yaml:"mcp_transport,omitempty" mapstructure:"mcp_transport"` // sse | streamable
	MCPTool      string `json:"mcp_tool,omitempty" yaml:"mcp_tool,omitempty" mapstructure:"mcp_tool"`
}

// DocumentsConfig selects and configures the indexed document store.
type DocumentsConfig struct {
	Provider      string              `json:"provider,omitempty" yaml:"provider,omitempty" mapstructure:"provider"` // milvus | elasticsearch
	Milvus        MilvusConfig        `json:"milvus" yaml:"milvus" mapstructure:"milvus"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch" yaml:"elasticsearch" mapstructure:"elasticsearch"`
}

type MilvusConfig struct {
	Address     string         `json:"address" yaml:"address" mapstructure:"address"`
	Username    string         `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password    string         `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	Database    string         `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`
	Collection  string         `json:"collection" yaml:"collection" mapstructure:"collection"`
	VectorField string         `json:"vector_field" yaml:"vector_field" mapstructure:"vector_field"`
	MetricType  string         `json:"metric_type" yaml:"metric_type" mapstructure:"metric_type"`
	Fields      DocumentFields `json:"fields" yaml:"fields" mapstructure:"fields"`
}

type ElasticsearchConfig struct {
	Addresses []string       `json:"addresses" yaml:"addresses" mapstructure:"addresses"`
	Username  string         `json:"username,omitempty" yaml:"username,omitempty" mapstructure:"username"`
	Password  string         `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	APIKey    string         `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Index     string         `json:"index" yaml:"index" mapstructure:"index"`
	Fields    DocumentFields `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// DocumentFields maps store field names onto document attributes.
type DocumentFields struct {
	ID      string `json:"id" yaml:"id" mapstructure:"id"`
	Title   string `json:"title" yaml:"title" mapstructure:"title"`
	URL     string `json:"url" yaml:"url" mapstructure:"url"`
	Content string `json:"content" yaml:"content" mapstructure:"content"`
	Summary string `json:"summary" yaml:"summary" mapstructure:"summary"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

type ServerConfig struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Addr    string `json:"addr" yaml:"addr" mapstructure:"addr"`
	MCPAddr string `json:"mcp_addr" yaml:"mcp_addr" mapstructure:"mcp_addr"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty" mapstructure:"otlp_endpoint"`
	Insecure     bool    `json:"insecure,omitempty" yaml:"insecure,omitempty" mapstructure:"insecure"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// Default returns a configuration with every default applied. Credentials
// and store endpoints are left empty.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Pipeline: PipelineConfig{
			Timezone:          "Asia/Seoul",
			DefaultLocale:     "ko-KR",
			SearchEngine:      SearchEngineSearchCrawling,
			DocumentTopK:      3,
			DocumentsPerQuery: 2,
			MaxDocumentChars:  10000,
			MaxContextChars:   400000,
		},
		Planner: PlannerConfig{MaxPlans: 3},
		Web: WebConfig{
			Provider:         "bing",
			Endpoint:         "https://api.bing.microsoft.com/v7.0/search",
			MaxResults:       5,
			MaxContextLength: 5000,
			Crawl:            true,
		},
		Grounding: GroundingConfig{ResultsPerQuery: 5},
		Video: VideoConfig{
			MaxResults:   3,
			MCPTransport: "sse",
			MCPTool:      "search_youtube_videos",
		},
		Documents: DocumentsConfig{
			Milvus: MilvusConfig{
				VectorField: "vector",
				MetricType:  "IP",
				Fields:      defaultFields(),
			},
			Elasticsearch: ElasticsearchConfig{Fields: defaultFields()},
		},
		HTTP: &HTTPClientConfig{
			TimeoutMs:              10000,
			Retry:                  1,
			BackoffMinMs:           100,
			BackoffMaxMs:           800,
			MaxConsecutiveFailures: 5,
			CircuitOpenSeconds:     5,
		},
		Log:       LogConfig{Level: "info", Format: "console"},
		Server:    ServerConfig{Name: "plan-search", Addr: ":8080", MCPAddr: ":8081"},
		Telemetry: TelemetryConfig{SampleRatio: 1},
	}
}

func defaultFields() DocumentFields {
	return DocumentFields{ID: "id", Title: "title", URL: "url", Content: "content", Summary: "summary"}
}
