package es

import (
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// articleDocument is the flattened shape stored in the mirror index.
type articleDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	Language    string    `json:"language"`
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Keywords    []string  `json:"keywords"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
	IndexedAt   time.Time `json:"indexed_at"`
}

func mapToDocument(a *domain.Article, now time.Time) articleDocument {
	return articleDocument{
		ID:          a.ID.String(),
		Title:       a.Title,
		Description: a.Description,
		Content:     a.Content,
		Summary:     a.Summary,
		Author:      a.Author,
		URL:         a.URL,
		Language:    a.Language,
		SourceID:    a.SourceID,
		SourceName:  a.SourceName,
		Category:    a.Category,
		Priority:    string(a.Priority),
		Keywords:    a.Keywords,
		PublishedAt: a.PublishedAt,
		FetchedAt:   a.FetchedAt,
		IndexedAt:   now,
	}
}

func buildMapping() types.TypeMapping {
	return types.TypeMapping{
		Properties: map[string]types.Property{
			"id":           types.NewKeywordProperty(),
			"title":        textPropertyWithKeyword(),
			"description":  types.NewTextProperty(),
			"content":      types.NewTextProperty(),
			"summary":      types.NewTextProperty(),
			"author":       textPropertyWithKeyword(),
			"url":          types.NewKeywordProperty(),
			"language":     types.NewKeywordProperty(),
			"source_id":    types.NewKeywordProperty(),
			"source_name":  textPropertyWithKeyword(),
			"category":     types.NewKeywordProperty(),
			"priority":     types.NewKeywordProperty(),
			"keywords":     types.NewKeywordProperty(),
			"published_at": types.NewDateProperty(),
			"fetched_at":   types.NewDateProperty(),
			"indexed_at":   types.NewDateProperty(),
		},
	}
}

func textPropertyWithKeyword() types.Property {
	textProp := types.NewTextProperty()
	textProp.Fields = map[string]types.Property{
		"keyword": types.NewKeywordProperty(),
	}
	return textProp
}
