package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/httpx"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/plansearch/post"
)

const (
	ProviderBing       = "bing"
	ProviderDuckDuckGo = "duckduckgo"

	duckDuckGoEndpoint = "https://api.duckduckgo.com/"
)

// WebResult is a single web search hit.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient queries a web search API (Bing v7 or DuckDuckGo Instant Answer).
type SearchClient struct {
	Provider string
	Endpoint string
	APIKey   string
	Market   string
	Client   *httpx.Client
}

var (
	defaultHTTPOnce sync.Once
	defaultHTTP     *httpx.Client
)

// sharedHTTPClient backs searchers and crawlers built without a client.
func sharedHTTPClient() *httpx.Client {
	defaultHTTPOnce.Do(func() { defaultHTTP = httpx.NewFromConfig(nil) })
	return defaultHTTP
}

// NewSearchClient builds a search client; a nil client selects the shared default.
func NewSearchClient(cfg config.WebConfig, client *httpx.Client) *SearchClient {
	if client == nil {
		client = sharedHTTPClient()
	}
	return &SearchClient{
		Provider: strings.ToLower(cfg.Provider),
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Market:   cfg.Market,
		Client:   client,
	}
}

// Search returns up to numResults hits for query.
func (s *SearchClient) Search(ctx context.Context, query string, numResults int, locale string) ([]WebResult, error) {
	if numResults <= 0 {
		numResults = 5
	}
	var (
		results []WebResult
		err     error
	)
	switch s.Provider {
	case ProviderBing:
		results, err = s.searchBing(ctx, query, numResults, locale)
	case ProviderDuckDuckGo:
		results, err = s.searchDuckDuckGo(ctx, query, numResults)
	default:
		logger.Warnf("web search: unknown provider %s, using DuckDuckGo", s.Provider)
		results, err = s.searchDuckDuckGo(ctx, query, numResults)
	}
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	return results, nil
}

func (s *SearchClient) searchBing(ctx context.Context, query string, numResults int, locale string) ([]WebResult, error) {
	if s.Endpoint == "" {
		return nil, fmt.Errorf("bing search requires endpoint configuration")
	}
	if s.APIKey == "" {
		return nil, fmt.Errorf("bing search requires api key")
	}

	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(numResults))
	if mkt := s.market(locale); mkt != "" {
		q.Set("mkt", mkt)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.APIKey)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bing api returned status %d", resp.StatusCode)
	}

	var bingResp struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bingResp); err != nil {
		return nil, err
	}

	results := make([]WebResult, 0, len(bingResp.WebPages.Value))
	for _, v := range bingResp.WebPages.Value {
		if len(results) >= numResults {
			break
		}
		results = append(results, WebResult{Title: v.Name, URL: v.URL, Snippet: v.Snippet})
	}
	logger.Infof("web search: bing returned %d results for query: %s", len(results), query)
	return results, nil
}

func (s *SearchClient) searchDuckDuckGo(ctx context.Context, query string, numResults int) ([]WebResult, error) {
	endpoint := duckDuckGoEndpoint
	if s.Endpoint != "" && s.Provider == ProviderDuckDuckGo {
		endpoint = s.Endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo api returned status %d", resp.StatusCode)
	}

	var ddgResp struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
		RelatedTopics  []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ddgResp); err != nil {
		return nil, err
	}

	results := make([]WebResult, 0, numResults)
	if ddgResp.AbstractText != "" {
		results = append(results, WebResult{
			Title:   ddgResp.AbstractSource,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for _, topic := range ddgResp.RelatedTopics {
		if len(results) >= numResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		// topic text reads "<title> - <description>"
		title, _, _ := strings.Cut(topic.Text, " - ")
		if utf8.RuneCountInString(title) > 100 {
			title, _ = post.Truncate(title, 100, "")
		}
		results = append(results, WebResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	logger.Infof("web search: duckduckgo returned %d results for query: %s", len(results), query)
	return results, nil
}

// market maps a locale tag such as ko-KR onto a Bing market, unless one is
// configured explicitly.
func (s *SearchClient) httpClient() *httpx.Client {
	if s.Client != nil {
		return s.Client
	}
	return sharedHTTPClient()
}

func (s *SearchClient) market(locale string) string {
	if s.Market != "" {
		return s.Market
	}
	if strings.Contains(locale, "-") {
		return locale
	}
	return ""
}

// CrawlingWebSearcher implements WebSearcher: it searches, then fetches each
// hit's page text, falling back to the search snippet when crawling fails.
type CrawlingWebSearcher struct {
	search  *SearchClient
	crawler *Crawler
}

// NewCrawlingWebSearcher returns a WebSearcher. A nil crawler keeps snippets only.
func NewCrawlingWebSearcher(search *SearchClient, crawler *Crawler) *CrawlingWebSearcher {
	return &CrawlingWebSearcher{search: search, crawler: crawler}
}

func (w *CrawlingWebSearcher) SearchAndCrawl(ctx context.Context, query string, opts CrawlOptions) (string, error) {
	results, err := w.search.Search(ctx, query, opts.MaxResults, opts.Locale)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, r := range results {
		body := r.Snippet
		if w.crawler != nil && r.URL != "" {
			text, err := w.crawler.Fetch(ctx, r.URL)
			switch {
			case err != nil:
				logger.Debugf("web search: crawl %s failed, keeping snippet: %v", r.URL, err)
			case text != "":
				body = text
			}
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n%s", i+1, r.Title, r.URL, body)
		if opts.MaxContextLength > 0 && utf8.RuneCountInString(b.String()) >= opts.MaxContextLength {
			break
		}
	}
	out, _ := post.Truncate(b.String(), opts.MaxContextLength, post.TruncationMarker)
	return out, nil
}
