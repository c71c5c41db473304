package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/embedding"
	"github.com/dvujovic/news-pipeline/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedArticle(t *testing.T, m *memory.Memory, title, content, url string, published time.Time) *domain.Article {
	t.Helper()
	a := domain.NewArticle(title, "", content, url, "src-1", published)
	require.NoError(t, m.CreateArticle(context.Background(), a))
	return a
}

func TestProcessExactURL(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Markets rally", "markets rallied today", "https://example.com/story", now)
	// Same url with cosmetic whitespace hashes identically.
	incoming := storedArticle(t, m, "Markets rally again", "", " https://example.com/story ", now)

	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Duplicates)

	got, err := m.Article(ctx, incoming.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDuplicate)
	assert.Equal(t, original.ID, got.DuplicateOf)

	sims, err := m.SimilaritiesFor(ctx, incoming.ID)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, domain.SimilarityExactURL, sims[0].Method)
	assert.Equal(t, 1.0, sims[0].Score)
}

func TestProcessExactTitle(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Senate passes budget bill", "long debate", "https://example.com/a", now)
	incoming := storedArticle(t, m, "Senate passes budget bill", "wire copy", "https://mirror.example.com/b", now)

	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)

	sims, err := m.SimilaritiesFor(ctx, incoming.ID)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, domain.SimilarityExactTitle, sims[0].Method)
	assert.Equal(t, original.ID, sims[0].DuplicateOf)
}

func TestProcessKeywordOverlap(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Storm hits the coast", "", "https://example.com/a", now)
	original.Keywords = []string{"hurricane", "evacuation", "florida", "landfall"}
	require.NoError(t, m.UpdateArticle(ctx, original))

	incoming := storedArticle(t, m, "Residents flee ahead of landfall", "", "https://example.com/b", now)
	incoming.Keywords = []string{"hurricane", "evacuation", "florida", "landfall", "shelters"}
	require.NoError(t, m.UpdateArticle(ctx, incoming))

	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)

	sims, err := m.SimilaritiesFor(ctx, incoming.ID)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, domain.SimilarityFuzzyContent, sims[0].Method)
	// 4 shared of 5 total keywords.
	assert.InDelta(t, 0.8, sims[0].Score, 0.01)
}

func TestProcessKeywordOverlapBelowThreshold(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Storm hits the coast", "", "https://example.com/a", now)
	original.Keywords = []string{"hurricane", "evacuation", "florida"}
	require.NoError(t, m.UpdateArticle(ctx, original))

	incoming := storedArticle(t, m, "Residents flee ahead of landfall", "", "https://example.com/b", now)
	incoming.Keywords = []string{"hurricane", "shelters", "traffic"}
	require.NoError(t, m.UpdateArticle(ctx, incoming))

	// One shared keyword of five: jaccard 0.2, below the 0.7 default.
	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Zero(t, res.Duplicates)
}

func TestProcessCosine(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Central bank raises rates", "", "https://example.com/a", now)
	original.Keywords = []string{"rates", "inflation"}
	original.Embedding = []float32{1, 0, 0, 0}
	require.NoError(t, m.UpdateArticle(ctx, original))

	incoming := storedArticle(t, m, "Borrowing costs climb further", "", "https://example.com/b", now)
	incoming.Keywords = []string{"mortgages", "lending"}
	incoming.Embedding = []float32{0.95, 0.1, 0, 0}
	require.NoError(t, m.UpdateArticle(ctx, incoming))

	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)

	sims, err := m.SimilaritiesFor(ctx, incoming.ID)
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, domain.SimilarityCosine, sims[0].Method)
	assert.Equal(t, original.ID, sims[0].DuplicateOf)
	assert.GreaterOrEqual(t, sims[0].Score, 0.85)
}

func TestProcessDimensionMismatchFails(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Central bank raises rates", "", "https://example.com/a", now)
	original.Keywords = []string{"rates"}
	original.Embedding = []float32{1, 0}
	require.NoError(t, m.UpdateArticle(ctx, original))

	incoming := storedArticle(t, m, "Borrowing costs climb further", "", "https://example.com/b", now)
	incoming.Keywords = []string{"lending"}
	incoming.Embedding = []float32{1, 0, 0}
	require.NoError(t, m.UpdateArticle(ctx, incoming))

	_, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	assert.Error(t, err)
}

func TestProcessEmptyTextComparesURLOnly(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	original := storedArticle(t, m, "Full story", "with body text", "https://example.com/a", now)
	original.Embedding = []float32{1, 0}
	require.NoError(t, m.UpdateArticle(ctx, original))

	incoming := storedArticle(t, m, "", "", "https://example.com/b", now)

	res, err := NewEngine(m).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Zero(t, res.Duplicates)
}

func TestProcessBatchMembersBecomeCandidates(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	// Outside the candidate window so only the batch order matters.
	published := time.Now().Add(-8 * 24 * time.Hour)

	first := storedArticle(t, m, "Exclusive interview published", "q and a", "https://example.com/a", published)
	second := storedArticle(t, m, "Exclusive interview published", "syndicated", "https://example.com/b", published)

	res, err := NewEngine(m).Process(ctx, []*domain.Article{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Duplicates)

	got, err := m.Article(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDuplicate)
	assert.Equal(t, first.ID, got.DuplicateOf)

	kept, err := m.Article(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsDuplicate)
}

func TestProcessBackfillsEmbeddings(t *testing.T) {
	ctx := context.Background()
	m := memory.New()

	a := storedArticle(t, m, "Fresh article", "body text", "https://example.com/a", time.Now())
	embedder := embedding.NewEmbedder(embedding.NewStaticClient())

	res, err := NewEngine(m, WithEmbedder(embedder)).Process(ctx, []*domain.Article{a})
	require.NoError(t, err)
	assert.Zero(t, res.Duplicates)
	assert.NotEmpty(t, a.Embedding)
	assert.Equal(t, embedder.Model(), a.EmbeddingModel)
}

func TestProcessPublishesEvents(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	now := time.Now()
	bus := domain.NewBus()
	defer bus.Close()

	storedArticle(t, m, "Same headline twice", "", "https://example.com/a", now)
	incoming := storedArticle(t, m, "Same headline twice", "", "https://example.com/b", now)

	_, err := NewEngine(m, WithBus(bus)).Process(ctx, []*domain.Article{incoming})
	require.NoError(t, err)

	select {
	case e := <-bus.Events():
		assert.Equal(t, domain.EventDuplicateFlagged, e.Kind)
		assert.Equal(t, incoming.ID, e.ArticleID)
	default:
		t.Fatal("expected a duplicate event")
	}
}
