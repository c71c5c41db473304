package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dvujovic/news-pipeline/internal/adapter"
	"github.com/dvujovic/news-pipeline/internal/api"
	"github.com/dvujovic/news-pipeline/internal/classify"
	"github.com/dvujovic/news-pipeline/internal/config"
	"github.com/dvujovic/news-pipeline/internal/dedup"
	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/dvujovic/news-pipeline/internal/embedding"
	"github.com/dvujovic/news-pipeline/internal/orchestrator"
	"github.com/dvujovic/news-pipeline/internal/priority"
	"github.com/dvujovic/news-pipeline/internal/scheduler"
	"github.com/dvujovic/news-pipeline/internal/search"
	"github.com/dvujovic/news-pipeline/internal/store"
	"github.com/dvujovic/news-pipeline/internal/store/es"
	"github.com/dvujovic/news-pipeline/internal/store/memory"
	"github.com/dvujovic/news-pipeline/internal/store/pg"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	st, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := seedSources(ctx, st, cfg.Sources); err != nil {
		slog.Error("Failed to seed sources", "error", err)
		os.Exit(1)
	}

	var mirror store.IndexMirror
	if cfg.Storage.ES.Enabled() {
		m, err := es.NewMirror(ctx, es.ClientConfig{
			Addresses: cfg.Storage.ES.Addresses,
			IndexName: cfg.Storage.ES.IndexName,
			Username:  cfg.Storage.ES.Username,
			Password:  cfg.Storage.ES.Password,
		})
		if err != nil {
			slog.Error("Failed to create index mirror", "error", err)
			os.Exit(1)
		}
		mirror = m
	}

	src, err := adapter.NewHTTPAdapter(cfg.Provider.BaseURL, adapter.WithAPIKey(cfg.Provider.APIKey))
	if err != nil {
		slog.Error("Failed to create source adapter", "error", err)
		os.Exit(1)
	}

	bus := domain.NewBus()

	sched := scheduler.New(st, src,
		scheduler.WithBus(bus),
		scheduler.WithMaxConcurrent(cfg.Scheduler.MaxConcurrentJobs),
		scheduler.WithFetchTimeout(cfg.Scheduler.FetchTimeout()),
		scheduler.WithMaxRetries(cfg.Scheduler.MaxRetries),
		scheduler.WithMaxArticles(cfg.Scheduler.MaxArticles),
	)

	dedupEngine := dedup.NewEngine(st,
		dedup.WithBus(bus),
		dedup.WithEmbedder(newEmbedder(cfg)),
		dedup.WithThresholds(cfg.Dedup.TitleThreshold, cfg.Dedup.KeywordThreshold, cfg.Dedup.SimilarityThreshold),
		dedup.WithWindow(cfg.Dedup.Window()),
	)

	classifyEngine := classify.NewEngine(st, newClassifier(cfg),
		classify.WithBus(bus),
		classify.WithChunkSize(cfg.Classifier.ChunkSize),
		classify.WithConfidenceThreshold(cfg.Classifier.ConfidenceThreshold),
	)

	priorityEngine := priority.NewEngine(st,
		priority.WithBus(bus),
		priority.WithThresholds(cfg.Priority.BreakingThreshold, cfg.Priority.TrendingThreshold),
		priority.WithMaxBreakingAge(cfg.Priority.MaxBreakingAge()),
	)

	orch := orchestrator.New(st, sched, dedupEngine, classifyEngine, priorityEngine,
		orchestrator.WithBus(bus),
		orchestrator.WithMirror(mirror),
		orchestrator.WithFetchInterval(cfg.Scheduler.Interval()),
		orchestrator.WithRetentionDays(cfg.Retention.Days),
		orchestrator.WithMaintenanceHour(cfg.Retention.MaintenanceHour),
	)

	searchEngine := search.NewEngine(st)

	orch.Start(ctx)
	defer func() {
		orch.Stop()
		bus.Close()
		orch.Wait()
	}()

	server := api.NewServer(cfg.Server.Port)
	api.NewRouter(server.Echo, orch, sched, searchEngine, st).Bind()

	slog.Info("news pipeline starting",
		"port", cfg.Server.Port,
		"backend", cfg.Storage.Backend,
		"mirror", mirror != nil,
		"fetch_interval", cfg.Scheduler.Interval())

	if err := server.Start(); err != nil {
		server.Echo.Logger.Error("Failed to start server: ", err)
		os.Exit(1)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPG:
		pool, err := pg.NewConnectionPool(ctx, pg.PoolConfig{ConnStr: cfg.Storage.DSN})
		if err != nil {
			return nil, err
		}
		return pg.NewStore(ctx, pool)
	default:
		return memory.New(), nil
	}
}

func newEmbedder(cfg *config.Config) *embedding.Embedder {
	var opts []embedding.EmbedderOption
	if cfg.Embedding.Model != "" {
		opts = append(opts, embedding.WithModel(cfg.Embedding.Model))
	}
	if cfg.Embedding.MaxLength > 0 {
		opts = append(opts, embedding.WithMaxLength(cfg.Embedding.MaxLength))
	}

	if cfg.Embedding.BaseURL == "" {
		return embedding.NewEmbedder(embedding.NewStaticClient(), opts...)
	}
	client, err := embedding.NewOllamaClient(cfg.Embedding.BaseURL)
	if err != nil {
		slog.Warn("invalid embedding url, using deterministic embeddings", "error", err)
		return embedding.NewEmbedder(embedding.NewStaticClient(), opts...)
	}
	return embedding.NewEmbedder(client, opts...)
}

func newClassifier(cfg *config.Config) classify.Classifier {
	if cfg.Classifier.BaseURL == "" {
		return classify.NewKeywordClassifier()
	}
	client, err := classify.NewHTTPClassifier(cfg.Classifier.BaseURL)
	if err != nil {
		slog.Warn("invalid classifier url, using keyword classifier", "error", err)
		return classify.NewKeywordClassifier()
	}
	return client
}

func seedSources(ctx context.Context, st store.Store, seeds []config.SourceConfig) error {
	for _, seed := range seeds {
		if _, err := st.Source(ctx, seed.ID); err == nil {
			continue
		}
		if err := st.SaveSource(ctx, seed.Source()); err != nil {
			return err
		}
		slog.Info("source seeded", "source_id", seed.ID)
	}
	return nil
}
