package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"market-radar/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const newsAPIBaseURL = "https://newsapi.org"

// truncationMarker matches the "[+1234 chars]" suffix NewsAPI appends to content.
var truncationMarker = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// NewsAPIProvider searches recent articles through NewsAPI's /v2/everything.
type NewsAPIProvider struct {
	upstream
	baseURL  string
	apiKey   string
	pageSize int
}

func NewNewsAPIProvider(apiKey, baseURL string, tracer trace.Tracer, observer Observer) *NewsAPIProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = newsAPIBaseURL
	}
	u := newUpstream("newsapi", tracer, 2, 4)
	u.observer = observer
	return &NewsAPIProvider{
		upstream: u,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   strings.TrimSpace(apiKey),
		pageSize: 50,
	}
}

func (p *NewsAPIProvider) CheckCredentials() error {
	if p.apiKey == "" {
		return fmt.Errorf("NEWS_API_KEY: %w", domain.ErrMissingCredentials)
	}
	return nil
}

// FetchRecentNews returns English articles matching query published since
// the given instant, most relevant first.
func (p *NewsAPIProvider) FetchRecentNews(ctx context.Context, query string, since time.Time) ([]domain.NewsArticle, error) {
	if err := p.CheckCredentials(); err != nil {
		return nil, domain.NewUpstreamError(p.name, "everything", 0, err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("from", since.UTC().Format("2006-01-02"))
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprintf("%d", p.pageSize))

	header := http.Header{}
	header.Set("X-Api-Key", p.apiKey)

	body, err := p.get(ctx, "everything", p.baseURL+"/v2/everything?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Status   string `json:"status"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		Articles []struct {
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
			PublishedAt string `json:"publishedAt"`
			Content     string `json:"content"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewUpstreamError(p.name, "everything", 0, fmt.Errorf("parse news payload: %w", err))
	}
	if raw.Status != "ok" {
		return nil, domain.NewUpstreamError(p.name, "everything", 0, fmt.Errorf("news status %q: %s %s", raw.Status, raw.Code, raw.Message))
	}

	articles := make([]domain.NewsArticle, 0, len(raw.Articles))
	for _, row := range raw.Articles {
		published, _ := time.Parse(time.RFC3339, strings.TrimSpace(row.PublishedAt))
		content := truncationMarker.ReplaceAllString(htmlStrip(row.Content), "")
		articles = append(articles, domain.NewsArticle{
			Title:       sanitizeText(row.Title, 300),
			Content:     sanitizeText(content, 4000),
			Description: sanitizeText(htmlStrip(row.Description), 1000),
			Source:      sanitizeText(row.Source.Name, 120),
			PublishedAt: published.UTC(),
			URL:         sanitizeText(row.URL, 500),
		})
	}
	return articles, nil
}
