package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = ""
	cfg.Pipeline.Timezone = "Mars/Olympus"
	cfg.Pipeline.SearchEngine = "bing_magic"
	cfg.Documents.Provider = "milvus"

	err := cfg.Validate()
	require.Error(t, err)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"llm.provider", "llm.model", "pipeline.timezone", "pipeline.search_engine",
		"documents.milvus.address", "documents.milvus.collection",
	} {
		assert.True(t, fields[f], "expected error for %s", f)
	}
	assert.Contains(t, err.Error(), "configuration error(s)")
}

func TestValidate_Elasticsearch(t *testing.T) {
	cfg := Default()
	cfg.Documents.Provider = "elasticsearch"
	cfg.Documents.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	assert.Error(t, cfg.Validate())

	cfg.Documents.Elasticsearch.Index = "docs"
	assert.NoError(t, cfg.Validate())
}

func TestParseSearchEngine(t *testing.T) {
	for _, s := range []string{"grounding", "search_crawling", "grounding_crawling"} {
		e, err := ParseSearchEngine(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(e))
	}
	_, err := ParseSearchEngine("bing")
	assert.Error(t, err)

	assert.False(t, SearchEngineGrounding.Crawls())
	assert.True(t, SearchEngineSearchCrawling.Crawls())
	assert.True(t, SearchEngineGroundingCrawling.Crawls())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plansearch.yaml")
	yaml := `
llm:
  provider: azure
  base_url: https://example.openai.azure.com
  model: gpt-4o-mini
pipeline:
  search_engine: grounding
  stage_timeout_ms: 1500
documents:
  provider: elasticsearch
  elasticsearch:
    addresses: ["http://es:9200"]
    index: manuals
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("PLANSEARCH_LLM_API_KEY", "sk-test")
	t.Setenv("PLANSEARCH_PLANNER_MAX_PLANS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "azure", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, SearchEngineGrounding, cfg.Pipeline.SearchEngine)
	assert.Equal(t, 1500, cfg.Pipeline.StageTimeoutMs)
	assert.Equal(t, 5, cfg.Planner.MaxPlans)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Documents.Elasticsearch.Addresses)
	assert.Equal(t, "content", cfg.Documents.Elasticsearch.Fields.Content)
	assert.Equal(t, 10000, cfg.HTTP.TimeoutMs)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
