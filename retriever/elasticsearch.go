package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// ElasticDocumentSearcher implements DocumentSearcher with a full-text
// multi_match query against an Elasticsearch index.
type ElasticDocumentSearcher struct {
	es     *elasticsearch.Client
	index  string
	fields config.DocumentFields
}

// NewElasticDocumentSearcher builds the client; transport may be nil.
func NewElasticDocumentSearcher(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*ElasticDocumentSearcher, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: transport,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticDocumentSearcher{es: es, index: cfg.Index, fields: cfg.Fields}, nil
}

type esHit struct {
	ID     string                 `json:"_id"`
	Score  float64                `json:"_score"`
	Source map[string]interface{} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticDocumentSearcher) SearchDocuments(ctx context.Context, q DocumentQuery) (schema.DocumentSearchResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 3
	}
	body, err := json.Marshal(e.query(q, topK))
	if err != nil {
		return schema.DocumentSearchResult{}, err
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.es)
	if err != nil {
		return schema.DocumentSearchResult{}, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return schema.DocumentSearchResult{}, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var r esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return schema.DocumentSearchResult{}, fmt.Errorf("decode elasticsearch response: %w", err)
	}

	docs := make([]schema.Document, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		doc := schema.Document{
			ID:      sourceString(h.Source, e.fields.ID),
			Title:   sourceString(h.Source, e.fields.Title),
			URL:     sourceString(h.Source, e.fields.URL),
			Summary: sourceString(h.Source, e.fields.Summary),
			Score:   h.Score,
		}
		if doc.ID == "" {
			doc.ID = h.ID
		}
		if q.IncludeContent {
			doc.Content = sourceString(h.Source, e.fields.Content)
		}
		docs = append(docs, doc)
	}
	return schema.DocumentSearchResult{Status: schema.DocumentSearchSuccess, Documents: docs}, nil
}

func (e *ElasticDocumentSearcher) query(q DocumentQuery, topK int) map[string]interface{} {
	matchFields := []string{}
	if e.fields.Title != "" {
		matchFields = append(matchFields, e.fields.Title+"^2")
	}
	for _, f := range []string{e.fields.Summary, e.fields.Content} {
		if f != "" {
			matchFields = append(matchFields, f)
		}
	}
	source := []string{}
	for _, f := range []string{e.fields.ID, e.fields.Title, e.fields.URL, e.fields.Summary} {
		if f != "" {
			source = append(source, f)
		}
	}
	if q.IncludeContent && e.fields.Content != "" {
		source = append(source, e.fields.Content)
	}
	return map[string]interface{}{
		"size":    topK,
		"_source": source,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Query,
				"fields": matchFields,
			},
		},
	}
}

func sourceString(src map[string]interface{}, field string) string {
	if field == "" {
		return ""
	}
	switch v := src[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
