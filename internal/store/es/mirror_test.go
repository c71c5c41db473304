package es

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	pkgtesting "github.com/dvujovic/news-pipeline/pkg/testing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapToDocument(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := domain.NewArticle("Title", "Desc", "Content", "https://example.com/a", "src-1", now.Add(-time.Hour))
	a.Priority = domain.PriorityBreaking
	a.Keywords = []string{"one", "two"}

	doc := mapToDocument(a, now)
	assert.Equal(t, a.ID.String(), doc.ID)
	assert.Equal(t, "breaking", doc.Priority)
	assert.Equal(t, []string{"one", "two"}, doc.Keywords)
	assert.Equal(t, now, doc.IndexedAt)
}

func TestMirrorRoundTrip(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") != "" {
		t.Skip("elasticsearch tests disabled")
	}

	ctx := context.Background()
	esc := pkgtesting.NewESContainer(ctx, t)

	mirror, err := NewMirror(ctx, ClientConfig{
		Addresses: []string{esc.Address},
		IndexName: "news-articles-test",
	})
	require.NoError(t, err)

	articles := []*domain.Article{
		domain.NewArticle("First", "", "content", "https://example.com/1", "src-1", time.Now()),
		domain.NewArticle("Second", "", "content", "https://example.com/2", "src-1", time.Now()),
	}
	require.NoError(t, mirror.IndexArticles(ctx, articles))

	// Re-indexing the same documents is an upsert, not an error.
	require.NoError(t, mirror.IndexArticles(ctx, articles))

	ids := []uuid.UUID{articles[0].ID, articles[1].ID}
	require.NoError(t, mirror.DeleteFromIndex(ctx, ids))

	// Deleting ids that are already gone is tolerated.
	require.NoError(t, mirror.DeleteFromIndex(ctx, []uuid.UUID{uuid.New()}))
}
