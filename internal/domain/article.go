package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ArticleDefaultLanguage = "english"
	ArticleDefaultCategory = "general"

	// wordsPerMinute is the reading speed used to derive ReadingTime.
	wordsPerMinute = 200
)

// Priority is the tier assigned to an article by the priority engine.
type Priority string

const (
	PriorityBreaking Priority = "breaking"
	PriorityTrending Priority = "trending"
	PriorityRegular  Priority = "regular"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityBreaking, PriorityTrending, PriorityRegular:
		return true
	}
	return false
}

// Article is the unit of work flowing through the pipeline. It is created by
// a source adapter, then mutated in order by the deduplication, classification
// and priority engines.
type Article struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url"`
	URLHash     string    `json:"urlHash"`
	SourceID    string    `json:"sourceId"`
	SourceName  string    `json:"sourceName,omitempty"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	FetchedAt   time.Time `json:"fetchedAt"`

	Category        string   `json:"category"`
	Priority        Priority `json:"priority"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Keywords        []string `json:"keywords,omitempty"`

	WordCount   int    `json:"wordCount"`
	ReadingTime int    `json:"readingTime"`
	Language    string `json:"language,omitempty"`

	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`

	IsDuplicate bool      `json:"isDuplicate"`
	DuplicateOf uuid.UUID `json:"duplicateOf,omitempty"`
	IsProcessed bool      `json:"isProcessed"`

	ViewCount  int64 `json:"viewCount"`
	LikeCount  int64 `json:"likeCount"`
	ShareCount int64 `json:"shareCount"`

	// UpdatedAt is the optimistic-concurrency token compared on updates.
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewArticle builds an article with derived fields (url hash, word count,
// reading time) populated and pipeline defaults applied.
func NewArticle(title, description, content, rawURL, sourceID string, publishedAt time.Time) *Article {
	words := len(strings.Fields(content))
	reading := words / wordsPerMinute
	if reading < 1 {
		reading = 1
	}

	return &Article{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Content:     content,
		URL:         rawURL,
		URLHash:     HashURL(rawURL),
		SourceID:    sourceID,
		PublishedAt: publishedAt,
		Category:    ArticleDefaultCategory,
		Priority:    PriorityRegular,
		WordCount:   words,
		ReadingTime: reading,
		Language:    ArticleDefaultLanguage,
	}
}

// HashURL returns the hex SHA-256 of a url, the deduplication key for
// exact-url matching.
func HashURL(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])
}

// MarkDuplicate flags the article as a duplicate of another one.
func (a *Article) MarkDuplicate(of uuid.UUID) {
	a.IsDuplicate = true
	a.DuplicateOf = of
}

// AgeAt returns how old the article is relative to now, by publish time.
func (a *Article) AgeAt(now time.Time) time.Duration {
	return now.Sub(a.PublishedAt)
}
