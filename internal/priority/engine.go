// Package priority ranks articles into breaking, trending and regular tiers
// from a weighted blend of keyword, freshness, source, category and
// engagement signals.
package priority

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/textutil"
	"github.com/dvujovic/news-pipeline/pkg/clock"
	"github.com/dvujovic/news-pipeline/pkg/utils"
)

// Factor weights sum to 1.0.
const (
	weightKeyword    = 0.35
	weightTime       = 0.25
	weightSource     = 0.15
	weightCategory   = 0.10
	weightEngagement = 0.10
	weightDuplicate  = 0.05

	defaultBreakingThreshold = 0.8
	defaultTrendingThreshold = 0.6

	// defaultMaxBreakingAge bounds how long an article may stay in the
	// breaking tier before maintenance demotes it to trending.
	defaultMaxBreakingAge = 24 * time.Hour

	titleHitWeight = 2.0

	// keywordRecencyBoost amplifies keyword hits on articles published
	// within the freshest time band.
	keywordRecencyBoost  = 1.5
	keywordRecencyWindow = 2 * time.Hour
)

var breakingTerms = map[string]struct{}{
	"breaking": {}, "urgent": {}, "alert": {}, "emergency": {}, "crisis": {},
	"explosion": {}, "earthquake": {}, "attack": {}, "killed": {}, "dead": {},
	"evacuate": {}, "shooting": {}, "crash": {}, "resigns": {}, "fired": {},
}

var trendingTerms = map[string]struct{}{
	"viral": {}, "trending": {}, "surge": {}, "record": {}, "historic": {},
	"unprecedented": {}, "milestone": {}, "landmark": {}, "soars": {},
	"plunges": {}, "backlash": {}, "controversy": {},
}

var categoryWeights = map[string]float64{
	"politics":      1.2,
	"world":         1.1,
	"business":      1.0,
	"technology":    0.9,
	"health":        0.9,
	"science":       0.8,
	"sports":        0.7,
	"entertainment": 0.6,
	"general":       0.5,
}

var sourceTypeWeights = map[domain.SourceType]float64{
	domain.SourceTypeAPI:    1.0,
	domain.SourceTypeFeed:   0.8,
	domain.SourceTypeCustom: 0.6,
}

type Option func(*Engine)

// Engine scores articles and assigns their priority tier.
type Engine struct {
	store store.Store
	bus   *domain.Bus
	clk   clock.Clock

	breakingThreshold float64
	trendingThreshold float64
	maxBreakingAge    time.Duration
}

func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             st,
		clk:               clock.Real{},
		breakingThreshold: defaultBreakingThreshold,
		trendingThreshold: defaultTrendingThreshold,
		maxBreakingAge:    defaultMaxBreakingAge,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithBus(bus *domain.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

func WithThresholds(breaking, trending float64) Option {
	return func(e *Engine) {
		e.breakingThreshold = breaking
		e.trendingThreshold = trending
	}
}

func WithMaxBreakingAge(age time.Duration) Option {
	return func(e *Engine) { e.maxBreakingAge = age }
}

// Scored explains one priority decision.
type Scored struct {
	Priority domain.Priority
	Score    float64
	Reasons  []string
}

// Score computes the blended priority score with per-factor reasons. The
// source may be nil when the article's source has been removed.
func (e *Engine) Score(a *domain.Article, src *domain.Source, now time.Time) Scored {
	keyword := keywordScore(a, a.AgeAt(now))
	freshness := timeScore(a.AgeAt(now))
	source := sourceScore(src)
	category := utils.ClampMax(categoryWeights[a.Category], 1.0)
	engagement := engagementScore(a)
	duplicate := 0.0
	if a.IsDuplicate {
		duplicate = -0.5
	}

	total := utils.Clamp01(
		weightKeyword*keyword +
			weightTime*freshness +
			weightSource*source +
			weightCategory*category +
			weightEngagement*engagement +
			weightDuplicate*duplicate)

	tier := domain.PriorityRegular
	switch {
	case total >= e.breakingThreshold:
		tier = domain.PriorityBreaking
	case total >= e.trendingThreshold:
		tier = domain.PriorityTrending
	}

	reasons := []string{
		reason("keyword", keyword),
		reason("time", freshness),
		reason("source", source),
		reason("category", category),
		reason("engagement", engagement),
	}
	if a.IsDuplicate {
		reasons = append(reasons, reason("duplicate", duplicate))
	}

	return Scored{Priority: tier, Score: utils.RoundDecimal(total, 4), Reasons: reasons}
}

func reason(factor string, score float64) string {
	return fmt.Sprintf("%s=%.2f", factor, score)
}

// Assign scores a batch and persists tier changes. Sources are resolved once
// per batch; a missing source degrades that factor to zero rather than
// failing the article.
func (e *Engine) Assign(ctx context.Context, articles []*domain.Article) (int, error) {
	now := e.clk.Now()

	sources := make(map[string]*domain.Source)
	assigned := 0
	for _, a := range articles {
		src, ok := sources[a.SourceID]
		if !ok {
			loaded, err := e.store.Source(ctx, a.SourceID)
			if err == nil {
				src = loaded
			}
			sources[a.SourceID] = src
		}

		scored := e.Score(a, src, now)
		a.Priority = scored.Priority
		a.IsProcessed = true

		if err := e.store.UpdateArticle(ctx, a); err != nil {
			slog.Error("failed to persist priority", "article_id", a.ID, "error", err)
			continue
		}
		assigned++

		if e.bus != nil {
			e.bus.Publish(domain.Event{
				Kind:      domain.EventPriorityAssigned,
				ArticleID: a.ID,
				SourceID:  a.SourceID,
				Priority:  scored.Priority,
				At:        now,
			})
		}
		slog.Debug("priority assigned",
			"article_id", a.ID, "priority", scored.Priority,
			"score", scored.Score, "reasons", scored.Reasons)
	}
	return assigned, nil
}

// DemoteStaleBreaking re-scores breaking articles older than the configured
// age and downgrades the ones that no longer reach the breaking threshold.
// The fresh score decides the new tier; the pass never promotes.
func (e *Engine) DemoteStaleBreaking(ctx context.Context) (int, error) {
	now := e.clk.Now()
	stale, err := e.store.ListArticles(ctx, store.ArticleFilter{
		Priorities: []domain.Priority{domain.PriorityBreaking},
		To:         now.Add(-e.maxBreakingAge),
	})
	if err != nil {
		return 0, fmt.Errorf("list stale breaking articles: %w", err)
	}

	sources := make(map[string]*domain.Source)
	demoted := 0
	for _, a := range stale {
		src, ok := sources[a.SourceID]
		if !ok {
			if loaded, err := e.store.Source(ctx, a.SourceID); err == nil {
				src = loaded
			}
			sources[a.SourceID] = src
		}

		scored := e.Score(a, src, now)
		if scored.Priority == domain.PriorityBreaking {
			continue
		}
		a.Priority = scored.Priority
		if err := e.store.UpdateArticle(ctx, a); err != nil {
			slog.Error("failed to demote article", "article_id", a.ID, "error", err)
			continue
		}
		demoted++
		slog.Debug("stale breaking article demoted",
			"article_id", a.ID, "priority", scored.Priority, "score", scored.Score)
	}
	return demoted, nil
}

// termSuffixes are stripped before the term lookup so inflected forms
// ("crashes", "evacuating") hit their base term.
var termSuffixes = []string{"ing", "ed", "es", "s"}

func matchesTerm(terms map[string]struct{}, w string) bool {
	if _, ok := terms[w]; ok {
		return true
	}
	for _, suffix := range termSuffixes {
		base, found := strings.CutSuffix(w, suffix)
		if !found || len(base) < 3 {
			continue
		}
		if _, ok := terms[base]; ok {
			return true
		}
	}
	return false
}

func keywordScore(a *domain.Article, age time.Duration) float64 {
	var score float64
	for _, w := range textutil.Tokenize(a.Title) {
		if matchesTerm(breakingTerms, w) {
			score += titleHitWeight
		}
		if matchesTerm(trendingTerms, w) {
			score += titleHitWeight * 0.5
		}
	}
	for _, w := range textutil.Tokenize(a.Description + " " + a.Content) {
		if matchesTerm(breakingTerms, w) {
			score += 1.0
		}
		if matchesTerm(trendingTerms, w) {
			score += 0.5
		}
	}
	if score > 0 && age <= keywordRecencyWindow {
		score *= keywordRecencyBoost
	}
	return utils.Clamp01(score / 4.0)
}

func timeScore(age time.Duration) float64 {
	switch {
	case age < 0:
		return 1.0
	case age <= 2*time.Hour:
		return 0.9
	case age <= 6*time.Hour:
		return 0.7
	default:
		decayed := 0.7 * math.Exp(-(age.Hours()-6)/24)
		return math.Max(decayed, 0.1)
	}
}

func sourceScore(src *domain.Source) float64 {
	if src == nil {
		return 0
	}
	typeWeight := sourceTypeWeights[src.Type]
	rank := src.Priority
	if rank < 1 {
		rank = 1
	}
	if rank > 10 {
		rank = 10
	}
	errorRate := utils.Clamp01(float64(src.ConsecutiveErrors) / float64(domain.SourceMaxConsecutiveErrors))
	return utils.Clamp01(typeWeight * float64(11-rank) / 10 * (1 - errorRate))
}

func engagementScore(a *domain.Article) float64 {
	raw := float64(a.ViewCount)*0.1 + float64(a.LikeCount)*2 + float64(a.ShareCount)*5
	return utils.ClampMax(math.Log(raw+1)/10, 1.0)
}
