package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/apperr"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/orchestrator"
	"github.com/dvujovic/news-pipeline/internal/scheduler"
	"github.com/dvujovic/news-pipeline/internal/search"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Router struct {
	e      *echo.Echo
	orch   *orchestrator.Orchestrator
	sched  *scheduler.Scheduler
	search *search.Engine
	store  store.Store
}

func NewRouter(e *echo.Echo, orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, se *search.Engine, st store.Store) *Router {
	return &Router{e: e, orch: orch, sched: sched, search: se, store: st}
}

func (r *Router) Bind() {
	r.e.POST("/fetch", r.fetchHandler)
	r.e.POST("/process", r.processHandler)
	r.e.POST("/maintenance", r.maintenanceHandler)

	r.e.GET("/search", r.searchHandler)
	r.e.GET("/search/suggest", r.suggestHandler)

	r.e.GET("/news/breaking", r.newsByTier(domain.PriorityBreaking))
	r.e.GET("/news/trending", r.newsByTier(domain.PriorityTrending))
	r.e.GET("/news/:id", r.articleHandler)
	r.e.GET("/news/:id/similar", r.similarHandler)

	r.e.GET("/sources", r.listSourcesHandler)
	r.e.POST("/sources", r.saveSourceHandler)
	r.e.PUT("/sources/:id", r.updateSourceHandler)
	r.e.DELETE("/sources/:id", r.deactivateSourceHandler)
	r.e.POST("/sources/:id/fetch", r.fetchSourceHandler)

	r.e.GET("/jobs", r.jobsHandler)
	r.e.GET("/metrics", r.metricsHandler)
	r.e.GET("/healthz", r.healthHandler)
}

func (r *Router) fetchHandler(c echo.Context) error {
	stats, err := r.orch.FetchNews(c.Request().Context())
	if errors.Is(err, orchestrator.ErrJobInFlight) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// processHandler reprocesses the given articles, or the whole unprocessed
// backlog when the body names no ids.
func (r *Router) processHandler(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid process payload", err)
	}

	ctx := c.Request().Context()
	var stats *orchestrator.ProcessStats
	var err error
	if len(req.IDs) == 0 {
		stats, err = r.orch.ProcessUnprocessed(ctx)
	} else {
		var articles []*domain.Article
		articles, err = r.loadArticles(ctx, req.IDs)
		if err != nil {
			return err
		}
		stats, err = r.orch.ProcessArticles(ctx, articles)
	}
	if errors.Is(err, orchestrator.ErrJobInFlight) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (r *Router) loadArticles(ctx context.Context, ids []string) ([]*domain.Article, error) {
	articles := make([]*domain.Article, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.NewValidationWrap("invalid article id: "+raw, err)
		}
		a, err := r.store.Article(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "article not found: "+raw)
		}
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (r *Router) maintenanceHandler(c echo.Context) error {
	stats, err := r.orch.RunMaintenance(c.Request().Context())
	if errors.Is(err, orchestrator.ErrJobInFlight) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (r *Router) searchHandler(c echo.Context) error {
	params := search.Params{
		Query:      c.QueryParam("q"),
		Categories: splitParam(c.QueryParam("category")),
		SourceIDs:  splitParam(c.QueryParam("source")),
		Limit:      intParam(c, "limit", 10),
		Offset:     intParam(c, "offset", 0),
	}
	for _, p := range splitParam(c.QueryParam("priority")) {
		priority := domain.Priority(p)
		if !priority.Valid() {
			return apperr.NewValidation("unknown priority: " + p)
		}
		params.Priorities = append(params.Priorities, priority)
	}
	var err error
	if params.From, err = timeParam(c, "from"); err != nil {
		return err
	}
	if params.To, err = timeParam(c, "to"); err != nil {
		return err
	}

	result, err := r.search.Search(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (r *Router) suggestHandler(c echo.Context) error {
	partial := c.QueryParam("q")
	limit := intParam(c, "limit", 10)
	return c.JSON(http.StatusOK, map[string]any{
		"suggestions": r.search.Suggest(c.Request().Context(), partial, limit),
	})
}

func (r *Router) newsByTier(tier domain.Priority) echo.HandlerFunc {
	return func(c echo.Context) error {
		articles, err := r.store.ListArticles(c.Request().Context(), store.ArticleFilter{
			Priorities: []domain.Priority{tier},
			Limit:      intParam(c, "limit", 20),
		})
		if err != nil {
			return err
		}
		if articles == nil {
			articles = []*domain.Article{}
		}
		return c.JSON(http.StatusOK, map[string]any{"articles": articles})
	}
}

func (r *Router) articleHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.NewValidationWrap("invalid article id", err)
	}
	a, err := r.store.Article(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "article not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (r *Router) similarHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.NewValidationWrap("invalid article id", err)
	}
	hits, err := r.search.FindSimilar(c.Request().Context(), id, intParam(c, "limit", 10))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "article not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"similar": hits})
}

type sourceRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Priority         int    `json:"priority"`
	RateLimitPerHour int    `json:"rateLimitPerHour"`
	IsActive         *bool  `json:"isActive"`
}

func (req sourceRequest) validate() error {
	if req.ID == "" {
		return apperr.NewValidation("source id is required")
	}
	if req.Name == "" {
		return apperr.NewValidation("source name is required")
	}
	switch domain.SourceType(req.Type) {
	case domain.SourceTypeAPI, domain.SourceTypeFeed, domain.SourceTypeCustom:
	default:
		return apperr.NewValidation("unknown source type: " + req.Type)
	}
	if req.Priority < 1 || req.Priority > 10 {
		return apperr.NewValidation("source priority must be 1..10")
	}
	return nil
}

func (r *Router) listSourcesHandler(c echo.Context) error {
	activeOnly := c.QueryParam("active") == "true"
	sources, err := r.store.ListSources(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	if sources == nil {
		sources = []*domain.Source{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sources": sources})
}

func (r *Router) saveSourceHandler(c echo.Context) error {
	var req sourceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid source payload", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	src := &domain.Source{
		ID:               req.ID,
		Name:             req.Name,
		Type:             domain.SourceType(req.Type),
		Priority:         req.Priority,
		RateLimitPerHour: req.RateLimitPerHour,
		IsActive:         true,
	}
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	if err := r.store.SaveSource(c.Request().Context(), src); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, src)
}

func (r *Router) updateSourceHandler(c echo.Context) error {
	id := c.Param("id")
	existing, err := r.store.Source(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "source not found")
	}
	if err != nil {
		return err
	}

	var req sourceRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid source payload", err)
	}
	req.ID = id
	if err := req.validate(); err != nil {
		return err
	}

	existing.Name = req.Name
	existing.Type = domain.SourceType(req.Type)
	existing.Priority = req.Priority
	existing.RateLimitPerHour = req.RateLimitPerHour
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if err := r.store.SaveSource(c.Request().Context(), existing); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}

// deactivateSourceHandler disables scheduling for a source. Its articles
// stay searchable; nothing is deleted.
func (r *Router) deactivateSourceHandler(c echo.Context) error {
	err := r.store.DeactivateSource(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "source not found")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (r *Router) fetchSourceHandler(c echo.Context) error {
	src, err := r.store.Source(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "source not found")
	}
	if err != nil {
		return err
	}
	if !src.IsActive {
		return apperr.NewValidation("source is deactivated")
	}

	articles, job, err := r.sched.FetchSource(c.Request().Context(), src)
	if errors.Is(err, scheduler.ErrFetchInFlight) {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return err
	}

	if len(articles) > 0 {
		if _, err := r.orch.ProcessArticles(c.Request().Context(), articles); err != nil &&
			!errors.Is(err, orchestrator.ErrJobInFlight) {
			return err
		}
	}
	return c.JSON(http.StatusOK, job)
}

func (r *Router) jobsHandler(c echo.Context) error {
	jobs, err := r.store.RecentJobs(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*domain.FetchJob{}
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": jobs})
}

func (r *Router) metricsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, r.orch.Metrics())
}

func (r *Router) healthHandler(c echo.Context) error {
	report := r.orch.Health(c.Request().Context())
	status := http.StatusOK
	if report.Status == orchestrator.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func timeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.NewValidationWrap("invalid "+name+" timestamp", err)
	}
	return t, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
