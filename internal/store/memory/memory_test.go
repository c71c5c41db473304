package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArticle(title, content, url string, published time.Time) *domain.Article {
	return domain.NewArticle(title, "", content, url, "src-1", published)
}

func TestArticleCRUD(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := newArticle("First", "some content here", "https://example.com/1", time.Now())
	require.NoError(t, m.CreateArticle(ctx, a))

	t.Run("load by id", func(t *testing.T) {
		got, err := m.Article(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Title, got.Title)
	})

	t.Run("load by url hash", func(t *testing.T) {
		got, err := m.ArticleByURLHash(ctx, a.URLHash)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := m.Article(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicates resolve to nothing by hash", func(t *testing.T) {
		dup := newArticle("Dup", "content", "https://example.com/dup", time.Now())
		require.NoError(t, m.CreateArticle(ctx, dup))

		loaded, err := m.Article(ctx, dup.ID)
		require.NoError(t, err)
		loaded.MarkDuplicate(a.ID)
		require.NoError(t, m.UpdateArticle(ctx, loaded))

		_, err = m.ArticleByURLHash(ctx, dup.URLHash)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUpdateArticleOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := newArticle("Versioned", "content", "https://example.com/v", time.Now())
	require.NoError(t, m.CreateArticle(ctx, a))

	first, err := m.Article(ctx, a.ID)
	require.NoError(t, err)
	second, err := m.Article(ctx, a.ID)
	require.NoError(t, err)

	first.Category = "politics"
	require.NoError(t, m.UpdateArticle(ctx, first))

	second.Category = "sports"
	err = m.UpdateArticle(ctx, second)
	assert.ErrorIs(t, err, store.ErrStaleWrite)

	got, err := m.Article(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "politics", got.Category)

	t.Run("unknown article", func(t *testing.T) {
		ghost := newArticle("Ghost", "", "https://example.com/ghost", time.Now())
		assert.ErrorIs(t, m.UpdateArticle(ctx, ghost), store.ErrNotFound)
	})
}

func TestListArticlesOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	m := New()
	now := time.Now()

	regularOld := newArticle("Regular old", "c", "https://example.com/r1", now.Add(-3*time.Hour))
	regularNew := newArticle("Regular new", "c", "https://example.com/r2", now.Add(-1*time.Hour))
	breaking := newArticle("Breaking", "c", "https://example.com/b", now.Add(-2*time.Hour))
	breaking.Priority = domain.PriorityBreaking
	trending := newArticle("Trending", "c", "https://example.com/t", now.Add(-4*time.Hour))
	trending.Priority = domain.PriorityTrending
	dup := newArticle("Duplicate", "c", "https://example.com/d", now)
	dup.MarkDuplicate(breaking.ID)

	for _, a := range []*domain.Article{regularOld, regularNew, breaking, trending, dup} {
		require.NoError(t, m.CreateArticle(ctx, a))
	}

	t.Run("tier then recency, duplicates excluded", func(t *testing.T) {
		got, err := m.ListArticles(ctx, store.ArticleFilter{})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "Breaking", got[0].Title)
		assert.Equal(t, "Trending", got[1].Title)
		assert.Equal(t, "Regular new", got[2].Title)
		assert.Equal(t, "Regular old", got[3].Title)
	})

	t.Run("include duplicates", func(t *testing.T) {
		got, err := m.ListArticles(ctx, store.ArticleFilter{IncludeDuplicates: true})
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("priority filter", func(t *testing.T) {
		got, err := m.ListArticles(ctx, store.ArticleFilter{
			Priorities: []domain.Priority{domain.PriorityBreaking},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Breaking", got[0].Title)
	})

	t.Run("time window filter", func(t *testing.T) {
		got, err := m.ListArticles(ctx, store.ArticleFilter{From: now.Add(-150 * time.Minute)})
		require.NoError(t, err)
		assert.Len(t, got, 2) // breaking and regular new
	})

	t.Run("limit", func(t *testing.T) {
		got, err := m.ListArticles(ctx, store.ArticleFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestSearchArticlesRanking(t *testing.T) {
	ctx := context.Background()
	m := New()
	now := time.Now()

	titleHit := newArticle("Quantum computing breakthrough", "general science news", "https://example.com/q1", now)
	contentHit := newArticle("Science roundup", "a quantum experiment in a lab", "https://example.com/q2", now)
	miss := newArticle("Sports final", "the match ended in a draw", "https://example.com/q3", now)

	for _, a := range []*domain.Article{titleHit, contentHit, miss} {
		require.NoError(t, m.CreateArticle(ctx, a))
	}

	t.Run("title match ranks above content match", func(t *testing.T) {
		q := store.TextQuery{Terms: []string{"quantum"}, Operator: store.OperatorOr}
		hits, total, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 10, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, hits, 2)
		assert.Equal(t, titleHit.ID, hits[0].Article.ID)
		assert.Greater(t, hits[0].Score, hits[1].Score)
	})

	t.Run("and operator requires all terms", func(t *testing.T) {
		q := store.TextQuery{Terms: []string{"quantum", "experiment"}, Operator: store.OperatorAnd}
		hits, total, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 10, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, hits, 1)
		assert.Equal(t, contentHit.ID, hits[0].Article.ID)
	})

	t.Run("phrase boost", func(t *testing.T) {
		q := store.TextQuery{
			Phrase:   "quantum computing",
			Terms:    []string{"quantum", "computing"},
			Operator: store.OperatorOr,
		}
		hits, _, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 10, 0)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, titleHit.ID, hits[0].Article.ID)
	})

	t.Run("empty query falls back to tier order with total", func(t *testing.T) {
		hits, total, err := m.SearchArticles(ctx, store.TextQuery{}, store.ArticleFilter{}, 2, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, hits, 2)
	})

	t.Run("pagination", func(t *testing.T) {
		q := store.TextQuery{Terms: []string{"quantum"}, Operator: store.OperatorOr}
		page1, total, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 1, 0)
		require.NoError(t, err)
		page2, _, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 1, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, page1, 1)
		require.Len(t, page2, 1)
		assert.NotEqual(t, page1[0].Article.ID, page2[0].Article.ID)
	})

	t.Run("offset past end", func(t *testing.T) {
		q := store.TextQuery{Terms: []string{"quantum"}, Operator: store.OperatorOr}
		hits, total, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 10, 50)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Empty(t, hits)
	})
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := newArticle("Climate summit opens", "c", "https://example.com/s1", time.Now())
	a.Author = "Jane Climber"
	require.NoError(t, m.CreateArticle(ctx, a))

	t.Run("matches titles and authors", func(t *testing.T) {
		got, err := m.Suggestions(ctx, "clim", 10)
		require.NoError(t, err)
		assert.Contains(t, got, "Climate summit opens")
		assert.Contains(t, got, "Jane Climber")
	})

	t.Run("empty partial returns empty list", func(t *testing.T) {
		got, err := m.Suggestions(ctx, "  ", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{}, got)
	})

	t.Run("no match returns empty list", func(t *testing.T) {
		got, err := m.Suggestions(ctx, "zzzz", 10)
		require.NoError(t, err)
		// Non-nil so the suggest endpoint serializes [] rather than null.
		assert.Equal(t, []string{}, got)
	})
}

func TestDeleteArticlesBefore(t *testing.T) {
	ctx := context.Background()
	m := New()
	now := time.Now()

	old := newArticle("Old", "c", "https://example.com/old", now.Add(-40*24*time.Hour))
	fresh := newArticle("Fresh", "c", "https://example.com/fresh", now)
	require.NoError(t, m.CreateArticle(ctx, old))
	require.NoError(t, m.CreateArticle(ctx, fresh))

	deleted, err := m.DeleteArticlesBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, old.ID, deleted[0])

	_, err = m.Article(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.Article(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestResetDailyCounters(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := newArticle("Counted", "c", "https://example.com/count", time.Now())
	a.ViewCount, a.LikeCount, a.ShareCount = 10, 5, 2
	require.NoError(t, m.CreateArticle(ctx, a))

	require.NoError(t, m.ResetDailyCounters(ctx))

	got, err := m.Article(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ViewCount)
	assert.Zero(t, got.LikeCount)
	assert.Zero(t, got.ShareCount)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	m := New()

	src := &domain.Source{ID: "s1", Name: "One", Type: domain.SourceTypeAPI, Priority: 1, IsActive: true}
	require.NoError(t, m.SaveSource(ctx, src))

	t.Run("deactivate is logical", func(t *testing.T) {
		require.NoError(t, m.DeactivateSource(ctx, "s1"))
		got, err := m.Source(ctx, "s1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		active, err := m.ListSources(ctx, true)
		require.NoError(t, err)
		assert.Empty(t, active)

		all, err := m.ListSources(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("deactivate unknown source", func(t *testing.T) {
		assert.ErrorIs(t, m.DeactivateSource(ctx, "ghost"), store.ErrNotFound)
	})
}

func TestJobsAndSimilarities(t *testing.T) {
	ctx := context.Background()
	m := New()

	j1 := domain.NewFetchJob("s1", 3, time.Now())
	j2 := domain.NewFetchJob("s2", 3, time.Now())
	require.NoError(t, m.SaveJob(ctx, j1))
	require.NoError(t, m.SaveJob(ctx, j2))

	t.Run("recent jobs newest first", func(t *testing.T) {
		jobs, err := m.RecentJobs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, j2.ID, jobs[0].ID)
	})

	t.Run("save updates existing job", func(t *testing.T) {
		j1.Status = domain.JobCompleted
		require.NoError(t, m.SaveJob(ctx, j1))
		jobs, err := m.RecentJobs(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("similarity audit trail", func(t *testing.T) {
		id := uuid.New()
		rec := domain.SimilarityRecord{
			ArticleID: id, DuplicateOf: uuid.New(),
			Score: 0.97, Method: domain.SimilarityExactTitle, CreatedAt: time.Now(),
		}
		require.NoError(t, m.AppendSimilarity(ctx, rec))
		got, err := m.SimilaritiesFor(ctx, id)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.SimilarityExactTitle, got[0].Method)
	})
}

func TestCompactRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	m := New()

	a := newArticle("Quantum leap", "physics content", "https://example.com/c1", time.Now())
	require.NoError(t, m.CreateArticle(ctx, a))
	require.NoError(t, m.Compact(ctx))

	q := store.TextQuery{Terms: []string{"quantum"}, Operator: store.OperatorOr}
	hits, _, err := m.SearchArticles(ctx, q, store.ArticleFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
