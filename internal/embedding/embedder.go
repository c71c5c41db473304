package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/google/uuid"
)

type Embedder struct {
	maxLength *int
	model     string

	client Client
}

type Vec struct {
	Embedding []float32
	Model     string
	ID        uuid.UUID
}

type EmbedderOption func(e *Embedder)

func NewEmbedder(client Client, opts ...EmbedderOption) *Embedder {
	base := &Embedder{
		model:  defaultModel,
		client: client,
	}

	for _, opt := range opts {
		opt(base)
	}

	return base
}

func WithModel(model string) EmbedderOption {
	return func(e *Embedder) {
		e.model = model
	}
}

func WithMaxLength(length int) EmbedderOption {
	return func(e *Embedder) {
		e.maxLength = &length
	}
}

// Model returns the model name stamped on generated vectors.
func (e *Embedder) Model() string { return e.model }

func (e *Embedder) EmbedArticle(ctx context.Context, ar *domain.Article) (*Vec, error) {
	prompt := mapArticleToPrompt(ar)

	slog.Debug("embedding article", "title", ar.Title, "content_length", len(ar.Content))

	embed, err := e.client.Generate(ctx, Request{
		Model:  e.model,
		Prompt: prompt,
	})
	if err != nil {
		return nil, err
	}

	return &Vec{
		Embedding: e.truncate(embed.Embedding),
		Model:     e.model,
		ID:        ar.ID,
	}, nil
}

func (e *Embedder) EmbedArticles(ctx context.Context, articles []*domain.Article) ([]Vec, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	prompts := make([]string, len(articles))
	for i, ar := range articles {
		prompts[i] = mapArticleToPrompt(ar)
	}

	slog.Debug("bulk embedding articles", "count", len(articles))

	resp, err := e.client.GenerateBatch(ctx, BatchRequest{
		Model:   e.model,
		Prompts: prompts,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(articles) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(articles), len(resp.Embeddings))
	}

	vecs := make([]Vec, len(articles))
	for i, emb := range resp.Embeddings {
		vecs[i] = Vec{
			Embedding: e.truncate(emb),
			Model:     e.model,
			ID:        articles[i].ID,
		}
	}
	return vecs, nil
}

func (e *Embedder) truncate(embedding []float32) []float32 {
	if e.maxLength != nil && len(embedding) > *e.maxLength {
		return embedding[:*e.maxLength]
	}
	return embedding
}

func mapArticleToPrompt(ar *domain.Article) string {
	content, title := strings.TrimSpace(ar.Content), strings.TrimSpace(ar.Title)
	if content == "" {
		content = strings.TrimSpace(ar.Description)
	}
	// prop with higher weight must be at the end (qwen)
	return fmt.Sprintf("%s\n%s", content, title)
}
