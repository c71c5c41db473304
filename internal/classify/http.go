package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dvujovic/news-pipeline/internal/apperr"
)

const defaultTimeout = 30 * time.Second

type HTTPConfig func(client *HTTPClassifier)

// HTTPClassifier calls a remote classification service. Any transport or
// service failure surfaces as ClassifierUnavailableError so the engine keeps
// the article's prior category.
type HTTPClassifier struct {
	base url.URL
	http *http.Client
}

var _ Classifier = (*HTTPClassifier)(nil)

func NewHTTPClassifier(baseUrl string, opts ...HTTPConfig) (*HTTPClassifier, error) {
	base, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	client := &HTTPClassifier{
		base: *base,
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, cfg := range opts {
		cfg(client)
	}

	return client, nil
}

func WithHttpClient(httpClient *http.Client) HTTPConfig {
	return func(client *HTTPClassifier) {
		client.http = httpClient
	}
}

type classifyRequest struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Categories []string `json:"categories"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, title, content string) (*Result, error) {
	if title == "" && content == "" {
		return nil, apperr.NewValidation("missing text to classify")
	}

	reqBytes, err := json.Marshal(classifyRequest{
		Title:      title,
		Content:    content,
		Categories: Categories,
	})
	if err != nil {
		return nil, err
	}

	reqURL := c.base.JoinPath("/classify")
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(request)
	if err != nil {
		return nil, apperr.NewClassifierUnavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.NewClassifierUnavailable(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.NewClassifierUnavailable(
			fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(respBody)))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperr.NewClassifierUnavailable(fmt.Errorf("unmarshal response: %w", err))
	}
	return &result, nil
}
