package retriever

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/embedding"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/schema"
)

// milvusSearcher is the part of client.Client the document searcher uses.
type milvusSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// MilvusDocumentSearcher implements DocumentSearcher over a Milvus collection
// whose documents were embedded with the same model as the query.
type MilvusDocumentSearcher struct {
	client     milvusSearcher
	embed      embedding.Provider
	collection string
	vector     string
	metric     entity.MetricType
	fields     config.DocumentFields
}

func NewMilvusDocumentSearcher(ctx context.Context, cfg config.MilvusConfig, embed embedding.Provider) (*MilvusDocumentSearcher, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", cfg.Address, err)
	}
	return newMilvusDocumentSearcher(c, cfg, embed), nil
}

func newMilvusDocumentSearcher(c milvusSearcher, cfg config.MilvusConfig, embed embedding.Provider) *MilvusDocumentSearcher {
	metric := entity.MetricType(cfg.MetricType)
	if metric == "" {
		metric = entity.IP
	}
	vector := cfg.VectorField
	if vector == "" {
		vector = "vector"
	}
	return &MilvusDocumentSearcher{
		client:     c,
		embed:      embed,
		collection: cfg.Collection,
		vector:     vector,
		metric:     metric,
		fields:     cfg.Fields,
	}
}

func (m *MilvusDocumentSearcher) SearchDocuments(ctx context.Context, q DocumentQuery) (schema.DocumentSearchResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 3
	}
	vec, err := m.embed.GetEmbedding(ctx, q.Query)
	if err != nil {
		return schema.DocumentSearchResult{}, fmt.Errorf("embed query: %w", err)
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return schema.DocumentSearchResult{}, err
	}

	results, err := m.client.Search(ctx, m.collection, nil, "", m.outputFields(q.IncludeContent),
		[]entity.Vector{entity.FloatVector(vec)}, m.vector, m.metric, topK, sp)
	if err != nil {
		return schema.DocumentSearchResult{}, fmt.Errorf("milvus search %s: %w", m.collection, err)
	}

	docs := make([]schema.Document, 0, topK)
	for _, rs := range results {
		if rs.Err != nil {
			logger.Warnf("milvus: partial result error: %v", rs.Err)
			continue
		}
		for i := 0; i < rs.ResultCount; i++ {
			doc := schema.Document{
				ID:      columnString(rs.Fields.GetColumn(m.fields.ID), i),
				Title:   columnString(rs.Fields.GetColumn(m.fields.Title), i),
				URL:     columnString(rs.Fields.GetColumn(m.fields.URL), i),
				Summary: columnString(rs.Fields.GetColumn(m.fields.Summary), i),
			}
			if doc.ID == "" {
				doc.ID = columnString(rs.IDs, i)
			}
			if q.IncludeContent {
				doc.Content = columnString(rs.Fields.GetColumn(m.fields.Content), i)
			}
			if i < len(rs.Scores) {
				doc.Score = float64(rs.Scores[i])
			}
			docs = append(docs, doc)
		}
	}
	return schema.DocumentSearchResult{Status: schema.DocumentSearchSuccess, Documents: docs}, nil
}

func (m *MilvusDocumentSearcher) Close() error {
	return m.client.Close()
}

func (m *MilvusDocumentSearcher) outputFields(includeContent bool) []string {
	out := []string{}
	for _, f := range []string{m.fields.ID, m.fields.Title, m.fields.URL, m.fields.Summary} {
		if f != "" {
			out = append(out, f)
		}
	}
	if includeContent && m.fields.Content != "" {
		out = append(out, m.fields.Content)
	}
	return out
}

func columnString(col entity.Column, i int) string {
	if col == nil || i >= col.Len() {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
