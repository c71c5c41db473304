package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
)

const defaultTimeout = 30 * time.Second

type HTTPConfig func(client *HTTPAdapter)

// HTTPAdapter fetches articles from a JSON provider gateway. The gateway
// multiplexes providers behind /sources/{id}/articles so one adapter serves
// every configured source.
type HTTPAdapter struct {
	base   url.URL
	apiKey string
	http   *http.Client
}

var _ SourceAdapter = (*HTTPAdapter)(nil)

func NewHTTPAdapter(baseURL string, opts ...HTTPConfig) (*HTTPAdapter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	a := &HTTPAdapter{
		base: *base,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, cfg := range opts {
		cfg(a)
	}

	return a, nil
}

func WithHttpClient(httpClient *http.Client) HTTPConfig {
	return func(a *HTTPAdapter) {
		a.http = httpClient
	}
}

func WithAPIKey(key string) HTTPConfig {
	return func(a *HTTPAdapter) {
		a.apiKey = key
	}
}

type articlePayload struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	PublishedAt time.Time `json:"publishedAt"`
}

type fetchPayload struct {
	Status       string           `json:"status"`
	TotalResults int              `json:"totalResults"`
	Articles     []articlePayload `json:"articles"`
}

func (a *HTTPAdapter) FetchArticles(ctx context.Context, src *domain.Source, opts FetchOptions) (*FetchResult, error) {
	if src == nil || src.ID == "" {
		return nil, apperr.NewValidation("missing source")
	}

	reqURL := a.base.JoinPath("sources", src.ID, "articles")
	q := reqURL.Query()
	if opts.MaxArticles > 0 {
		q.Set("limit", strconv.Itoa(opts.MaxArticles))
	}
	if !opts.Since.IsZero() {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	reqURL.RawQuery = q.Encode()

	var payload fetchPayload
	rl, err := a.do(ctx, http.MethodGet, reqURL, nil, &payload)
	if err != nil {
		var rle *apperr.RateLimitError
		if errors.As(err, &rle) {
			return nil, apperr.NewRateLimited(src.ID, rle.ResetAt)
		}
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}
	if payload.Status != "" && payload.Status != "ok" {
		return nil, apperr.NewTransient(fmt.Sprintf("provider status %q", payload.Status), nil)
	}

	now := time.Now()
	articles := make([]*domain.Article, 0, len(payload.Articles))
	for _, p := range payload.Articles {
		if p.Title == "" || p.URL == "" {
			continue
		}
		publishedAt := p.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = now
		}
		ar := domain.NewArticle(p.Title, p.Description, p.Content, p.URL, src.ID, publishedAt)
		ar.SourceName = src.Name
		ar.Author = p.Author
		ar.FetchedAt = now
		articles = append(articles, ar)
	}

	total := payload.TotalResults
	if total == 0 {
		total = len(articles)
	}
	return &FetchResult{Articles: articles, TotalResults: total, RateLimit: rl}, nil
}

func (a *HTTPAdapter) HealthCheck(ctx context.Context) error {
	reqURL := a.base.JoinPath("healthz")
	if _, err := a.do(ctx, http.MethodGet, reqURL, nil, nil); err != nil {
		return fmt.Errorf("provider health check: %w", err)
	}
	return nil
}

func (a *HTTPAdapter) do(ctx context.Context, method string, reqURL *url.URL, reqData, respData any) (*RateLimitInfo, error) {
	var body io.Reader
	if reqData != nil {
		reqBytes, err := json.Marshal(reqData)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(reqBytes)
	}

	request, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	if reqData != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		request.Header.Set("X-Api-Key", a.apiKey)
	}

	resp, err := a.http.Do(request)
	if err != nil {
		return nil, apperr.NewTransient("provider request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewTransient("read provider response", err)
	}

	rl := parseRateLimit(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resetAt := time.Now().Add(time.Hour)
		if rl != nil && !rl.ResetAt.IsZero() {
			resetAt = rl.ResetAt
		}
		return rl, apperr.NewRateLimited("", resetAt)
	case resp.StatusCode >= 500:
		return rl, apperr.NewTransient(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return rl, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody))
	}

	if respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return rl, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return rl, nil
}

func parseRateLimit(h http.Header) *RateLimitInfo {
	remaining := h.Get("X-RateLimit-Remaining")
	reset := h.Get("X-RateLimit-Reset")
	if remaining == "" && reset == "" {
		return nil
	}

	info := &RateLimitInfo{Remaining: -1}
	if n, err := strconv.Atoi(remaining); err == nil {
		info.Remaining = n
	}
	if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
		info.ResetAt = time.Unix(ts, 0)
	}
	return info
}
