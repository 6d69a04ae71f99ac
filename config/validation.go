package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateLLM()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateWeb()...)
	errs = append(errs, c.validateDocuments()...)
	errs = append(errs, c.validateHTTP()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateLLM() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
	case "azure":
		if c.LLM.BaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "llm.base_url",
				Message: "azure provider requires the resource endpoint in base_url",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported llm provider %q (want openai or azure)", c.LLM.Provider),
		})
	}

	if c.LLM.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.model",
			Message: "llm model is required",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("llm temperature must be in [0, 2], got %.2f", c.LLM.Temperature),
		})
	}

	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "llm.max_tokens",
			Message: fmt.Sprintf("llm max_tokens must be positive, got %d", c.LLM.MaxTokens),
		})
	}

	return errs
}

func (c *Config) validatePipeline() ValidationErrors {
	var errs ValidationErrors
	p := c.Pipeline

	if _, err := time.LoadLocation(p.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "pipeline.timezone",
			Message: fmt.Sprintf("unknown timezone %q", p.Timezone),
		})
	}

	if _, err := ParseSearchEngine(string(p.SearchEngine)); err != nil {
		errs = append(errs, ValidationError{
			Field:   "pipeline.search_engine",
			Message: err.Error(),
		})
	}

	if p.StageTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.stage_timeout_ms",
			Message: fmt.Sprintf("stage timeout must not be negative, got %d", p.StageTimeoutMs),
		})
	}

	if p.DocumentTopK <= 0 || p.DocumentsPerQuery <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.document_top_k",
			Message: "document_top_k and documents_per_query must be positive",
		})
	}

	if p.MaxDocumentChars <= 0 || p.MaxContextChars < p.MaxDocumentChars {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_context_chars",
			Message: fmt.Sprintf("max_context_chars (%d) must be >= max_document_chars (%d) > 0", p.MaxContextChars, p.MaxDocumentChars),
		})
	}

	if c.Planner.MaxPlans < 1 || c.Planner.MaxPlans > 10 {
		errs = append(errs, ValidationError{
			Field:   "planner.max_plans",
			Message: fmt.Sprintf("planner.max_plans must be in [1, 10], got %d", c.Planner.MaxPlans),
		})
	}

	return errs
}

func (c *Config) validateWeb() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Web.Provider) {
	case "", "duckduckgo":
	case "bing":
		if c.Web.APIKey != "" && c.Web.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "web.endpoint",
				Message: "bing search requires endpoint configuration",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "web.provider",
			Message: fmt.Sprintf("unsupported web search provider %q", c.Web.Provider),
		})
	}

	if c.Web.MaxResults <= 0 || c.Web.MaxContextLength <= 0 {
		errs = append(errs, ValidationError{
			Field:   "web.max_results",
			Message: "web max_results and max_context_length must be positive",
		})
	}

	if t := c.Video.MCPTransport; c.Video.MCPEndpoint != "" && t != "sse" && t != "streamable" {
		errs = append(errs, ValidationError{
			Field:   "video.mcp_transport",
			Message: fmt.Sprintf("unsupported mcp transport %q (want sse or streamable)", t),
		})
	}

	return errs
}

func (c *Config) validateDocuments() ValidationErrors {
	var errs ValidationErrors
	d := c.Documents

	switch strings.ToLower(d.Provider) {
	case "":
	case "milvus":
		if d.Milvus.Address == "" {
			errs = append(errs, ValidationError{
				Field:   "documents.milvus.address",
				Message: "milvus address is required for milvus provider",
			})
		}
		if d.Milvus.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "documents.milvus.collection",
				Message: "collection name is required for milvus provider",
			})
		}
		if c.Embedding.Model == "" || c.Embedding.Dimensions <= 0 {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "milvus provider requires an embedding model and positive dimensions",
			})
		}
	case "elasticsearch":
		if len(d.Elasticsearch.Addresses) == 0 {
			errs = append(errs, ValidationError{
				Field:   "documents.elasticsearch.addresses",
				Message: "at least one elasticsearch address is required",
			})
		}
		if d.Elasticsearch.Index == "" {
			errs = append(errs, ValidationError{
				Field:   "documents.elasticsearch.index",
				Message: "index name is required for elasticsearch provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "documents.provider",
			Message: fmt.Sprintf("unsupported document provider %q", d.Provider),
		})
	}

	return errs
}

func (c *Config) validateHTTP() ValidationErrors {
	var errs ValidationErrors
	h := c.HTTP
	if h == nil {
		return nil
	}

	if h.TimeoutMs < 0 || h.Retry < 0 || h.BackoffMinMs < 0 || h.BackoffMaxMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "http",
			Message: "http timeout, retry and backoff values must not be negative",
		})
	}

	if h.BackoffMaxMs > 0 && h.BackoffMaxMs < h.BackoffMinMs {
		errs = append(errs, ValidationError{
			Field:   "http.backoff_max_ms",
			Message: fmt.Sprintf("backoff_max_ms (%d) must be >= backoff_min_ms (%d)", h.BackoffMaxMs, h.BackoffMinMs),
		})
	}

	return errs
}
