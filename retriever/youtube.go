package retriever

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
)

// YouTubeSearcher implements VideoSearcher with the YouTube Data API v3.
type YouTubeSearcher struct {
	svc        *youtube.Service
	maxResults int64
}

// NewYouTubeSearcher builds the searcher from cfg. Extra client options are
// appended after the API key and endpoint.
func NewYouTubeSearcher(ctx context.Context, cfg config.VideoConfig, opts ...option.ClientOption) (*YouTubeSearcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube search requires api key")
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	n := int64(cfg.MaxResults)
	if n <= 0 {
		n = 3
	}
	return &YouTubeSearcher{svc: svc, maxResults: n}, nil
}

func (y *YouTubeSearcher) SearchVideos(ctx context.Context, query string) (string, error) {
	resp, err := y.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(y.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}

	var b strings.Builder
	n := 0
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		if n > 0 {
			b.WriteString("\n\n")
		}
		n++
		fmt.Fprintf(&b, "Title: %s\nChannel: %s\nPublished: %s\nURL: https://www.youtube.com/watch?v=%s\nDescription: %s",
			item.Snippet.Title,
			item.Snippet.ChannelTitle,
			item.Snippet.PublishedAt,
			item.Id.VideoId,
			item.Snippet.Description,
		)
	}
	logger.Infof("youtube search returned %d videos for query: %s", n, query)
	return b.String(), nil
}
