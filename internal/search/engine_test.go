package search

import (
	"context"
	"testing"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.True(t, Normalize("   ").Empty())
	})

	t.Run("short query keeps phrase and ors terms", func(t *testing.T) {
		q := Normalize("Climate Summit")
		assert.Equal(t, "climate summit", q.Phrase)
		assert.Equal(t, []string{"climate", "summit"}, q.Terms)
		assert.Equal(t, store.OperatorOr, q.Operator)
	})

	t.Run("long query requires every term", func(t *testing.T) {
		q := Normalize("central bank interest rate decision today")
		assert.Empty(t, q.Phrase)
		assert.Len(t, q.Terms, 6)
		assert.Equal(t, store.OperatorAnd, q.Operator)
	})

	t.Run("repeated terms collapse", func(t *testing.T) {
		q := Normalize("news news news")
		assert.Equal(t, []string{"news"}, q.Terms)
	})
}

func seedEngine(t *testing.T) (*Engine, *memory.Memory, []*domain.Article) {
	t.Helper()
	ctx := context.Background()
	m := memory.New()
	now := time.Now()

	a1 := domain.NewArticle("Climate summit opens", "", "leaders gather for the climate summit", "https://example.com/1", "src-1", now.Add(-2*time.Hour))
	a1.Category = "world"
	a1.Author = "Ana Reporter"
	a2 := domain.NewArticle("Climate funding debate", "", "summit funding talks stall", "https://example.com/2", "src-2", now.Add(-3*24*time.Hour))
	a2.Category = "politics"
	a2.Priority = domain.PriorityTrending
	a3 := domain.NewArticle("Transfer window closes", "", "clubs finalize signings", "https://example.com/3", "src-1", now.Add(-10*24*time.Hour))
	a3.Category = "sports"

	for _, a := range []*domain.Article{a1, a2, a3} {
		require.NoError(t, m.CreateArticle(ctx, a))
	}
	return NewEngine(m), m, []*domain.Article{a1, a2, a3}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	e, _, seeded := seedEngine(t)

	t.Run("ranked hits with facets", func(t *testing.T) {
		res, err := e.Search(ctx, Params{Query: "climate summit"})
		require.NoError(t, err)
		assert.EqualValues(t, 2, res.Total)
		require.Len(t, res.Hits, 2)

		require.NotNil(t, res.Facets)
		assert.Equal(t, 1, res.Facets.Categories["world"])
		assert.Equal(t, 1, res.Facets.Categories["politics"])
		assert.Equal(t, 1, res.Facets.Authors["Ana Reporter"])
		assert.Equal(t, 1, res.Facets.Published["today"])
		assert.Equal(t, 1, res.Facets.Published["this_week"])
	})

	t.Run("empty query lists by tier", func(t *testing.T) {
		res, err := e.Search(ctx, Params{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, res.Total)
		assert.Equal(t, seeded[1].ID, res.Hits[0].Article.ID) // trending first
	})

	t.Run("category filter narrows matches and facets", func(t *testing.T) {
		res, err := e.Search(ctx, Params{Query: "climate", Categories: []string{"world"}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, res.Total)
		assert.Equal(t, map[string]int{"world": 1}, res.Facets.Categories)
	})

	t.Run("limit clamps", func(t *testing.T) {
		res, err := e.Search(ctx, Params{Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, maxLimit, res.Limit)

		res, err = e.Search(ctx, Params{Limit: -1})
		require.NoError(t, err)
		assert.Equal(t, defaultLimit, res.Limit)
	})

	t.Run("hits never nil", func(t *testing.T) {
		res, err := e.Search(ctx, Params{Query: "zzzznomatch"})
		require.NoError(t, err)
		assert.NotNil(t, res.Hits)
		assert.Empty(t, res.Hits)
	})
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	e, _, seeded := seedEngine(t)

	t.Run("excludes the article itself", func(t *testing.T) {
		hits, err := e.FindSimilar(ctx, seeded[0].ID, 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		for _, h := range hits {
			assert.NotEqual(t, seeded[0].ID, h.Article.ID)
		}
		assert.Equal(t, seeded[1].ID, hits[0].Article.ID)
	})

	t.Run("unknown article", func(t *testing.T) {
		_, err := e.FindSimilar(ctx, uuid.New(), 10)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestSuggest(t *testing.T) {
	ctx := context.Background()
	e, _, _ := seedEngine(t)

	t.Run("prefix match", func(t *testing.T) {
		got := e.Suggest(ctx, "clim", 10)
		assert.Contains(t, got, "Climate summit opens")
	})

	t.Run("no match returns empty slice", func(t *testing.T) {
		got := e.Suggest(ctx, "zzz", 10)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
