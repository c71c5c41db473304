// Package config loads pipeline settings: defaults, then an optional YAML
// file, then environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvujovic/news-pipeline/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "NEWS_PIPELINE_CONFIG"

	portEnv           = "PORT"
	storageBackendEnv = "STORAGE_BACKEND"
	databaseDSNEnv    = "DATABASE_DSN"
	esAddressesEnv    = "ES_ADDRESSES"
	esUsernameEnv     = "ES_USERNAME"
	esPasswordEnv     = "ES_PASSWORD"
	providerURLEnv    = "PROVIDER_URL"
	providerKeyEnv    = "PROVIDER_API_KEY"
	classifierURLEnv  = "CLASSIFIER_URL"
	embeddingURLEnv   = "EMBEDDING_BASE_URL"
	embeddingModelEnv = "EMBEDDING_MODEL"
)

// Backend selects the primary store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendPG     Backend = "pg"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Provider   ProviderConfig   `yaml:"provider"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Priority   PriorityConfig   `yaml:"priority"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retention  RetentionConfig  `yaml:"retention"`
	Sources    []SourceConfig   `yaml:"sources"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type StorageConfig struct {
	Backend Backend  `yaml:"backend"`
	DSN     string   `yaml:"dsn"`
	ES      ESConfig `yaml:"es"`
}

// ESConfig enables the search-index mirror when addresses are set.
type ESConfig struct {
	Addresses []string `yaml:"addresses"`
	IndexName string   `yaml:"indexName"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

func (c ESConfig) Enabled() bool {
	return len(c.Addresses) > 0
}

type ProviderConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
}

type SchedulerConfig struct {
	IntervalMinutes   int `yaml:"intervalMinutes"`
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	FetchTimeoutSecs  int `yaml:"fetchTimeoutSeconds"`
	MaxRetries        int `yaml:"maxRetries"`
	MaxArticles       int `yaml:"maxArticles"`
}

func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c SchedulerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

type DedupConfig struct {
	TitleThreshold      float64 `yaml:"titleThreshold"`
	KeywordThreshold    float64 `yaml:"keywordThreshold"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	WindowDays          int     `yaml:"windowDays"`
}

func (c DedupConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

type ClassifierConfig struct {
	BaseURL             string  `yaml:"baseUrl"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	ChunkSize           int     `yaml:"chunkSize"`
}

type PriorityConfig struct {
	BreakingThreshold   float64 `yaml:"breakingThreshold"`
	TrendingThreshold   float64 `yaml:"trendingThreshold"`
	MaxBreakingAgeHours int     `yaml:"maxBreakingAgeHours"`
}

func (c PriorityConfig) MaxBreakingAge() time.Duration {
	return time.Duration(c.MaxBreakingAgeHours) * time.Hour
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"baseUrl"`
	Model     string `yaml:"model"`
	MaxLength int    `yaml:"maxLength"`
}

type RetentionConfig struct {
	Days            int `yaml:"days"`
	MaintenanceHour int `yaml:"maintenanceHour"`
}

// SourceConfig seeds the source table at startup.
type SourceConfig struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Type             string `yaml:"type"`
	Priority         int    `yaml:"priority"`
	RateLimitPerHour int    `yaml:"rateLimitPerHour"`
}

// Source converts the seed entry to the domain shape.
func (c SourceConfig) Source() *domain.Source {
	return &domain.Source{
		ID:               c.ID,
		Name:             c.Name,
		Type:             domain.SourceType(c.Type),
		Priority:         c.Priority,
		RateLimitPerHour: c.RateLimitPerHour,
		IsActive:         true,
	}
}

// Load builds the effective configuration. A missing .env or YAML file is
// not an error; defaults cover every setting.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("skipping .env", "error", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		applyDefaults(cfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Storage: StorageConfig{
			Backend: BackendMemory,
			ES:      ESConfig{IndexName: "news-articles"},
		},
		Provider: ProviderConfig{BaseURL: "http://localhost:9000"},
		Scheduler: SchedulerConfig{
			IntervalMinutes:   15,
			MaxConcurrentJobs: 3,
			FetchTimeoutSecs:  30,
			MaxRetries:        3,
			MaxArticles:       100,
		},
		Dedup: DedupConfig{
			TitleThreshold:      0.95,
			KeywordThreshold:    0.7,
			SimilarityThreshold: 0.85,
			WindowDays:          7,
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold: 0.6,
			ChunkSize:           20,
		},
		Priority: PriorityConfig{
			BreakingThreshold:   0.8,
			TrendingThreshold:   0.6,
			MaxBreakingAgeHours: 24,
		},
		Retention: RetentionConfig{
			Days:            30,
			MaintenanceHour: 3,
		},
	}
}

// applyDefaults refills zero values the YAML file may have clobbered.
func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.ES.IndexName == "" {
		cfg.Storage.ES.IndexName = def.Storage.ES.IndexName
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if cfg.Scheduler.IntervalMinutes <= 0 {
		cfg.Scheduler.IntervalMinutes = def.Scheduler.IntervalMinutes
	}
	if cfg.Scheduler.MaxConcurrentJobs <= 0 {
		cfg.Scheduler.MaxConcurrentJobs = def.Scheduler.MaxConcurrentJobs
	}
	if cfg.Scheduler.FetchTimeoutSecs <= 0 {
		cfg.Scheduler.FetchTimeoutSecs = def.Scheduler.FetchTimeoutSecs
	}
	if cfg.Scheduler.MaxRetries <= 0 {
		cfg.Scheduler.MaxRetries = def.Scheduler.MaxRetries
	}
	if cfg.Scheduler.MaxArticles <= 0 {
		cfg.Scheduler.MaxArticles = def.Scheduler.MaxArticles
	}
	if cfg.Dedup.TitleThreshold <= 0 {
		cfg.Dedup.TitleThreshold = def.Dedup.TitleThreshold
	}
	if cfg.Dedup.KeywordThreshold <= 0 {
		cfg.Dedup.KeywordThreshold = def.Dedup.KeywordThreshold
	}
	if cfg.Dedup.SimilarityThreshold <= 0 {
		cfg.Dedup.SimilarityThreshold = def.Dedup.SimilarityThreshold
	}
	if cfg.Dedup.WindowDays <= 0 {
		cfg.Dedup.WindowDays = def.Dedup.WindowDays
	}
	if cfg.Classifier.ConfidenceThreshold <= 0 {
		cfg.Classifier.ConfidenceThreshold = def.Classifier.ConfidenceThreshold
	}
	if cfg.Classifier.ChunkSize <= 0 {
		cfg.Classifier.ChunkSize = def.Classifier.ChunkSize
	}
	if cfg.Priority.BreakingThreshold <= 0 {
		cfg.Priority.BreakingThreshold = def.Priority.BreakingThreshold
	}
	if cfg.Priority.TrendingThreshold <= 0 {
		cfg.Priority.TrendingThreshold = def.Priority.TrendingThreshold
	}
	if cfg.Priority.MaxBreakingAgeHours <= 0 {
		cfg.Priority.MaxBreakingAgeHours = def.Priority.MaxBreakingAgeHours
	}
	if cfg.Retention.Days <= 0 {
		cfg.Retention.Days = def.Retention.Days
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(storageBackendEnv); v != "" {
		c.Storage.Backend = Backend(v)
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(esAddressesEnv); v != "" {
		c.Storage.ES.Addresses = splitCSV(v)
	}
	if v := os.Getenv(esUsernameEnv); v != "" {
		c.Storage.ES.Username = v
	}
	if v := os.Getenv(esPasswordEnv); v != "" {
		c.Storage.ES.Password = v
	}
	if v := os.Getenv(providerURLEnv); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(providerKeyEnv); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.BaseURL = v
	}
	if v := os.Getenv(embeddingURLEnv); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv(embeddingModelEnv); v != "" {
		c.Embedding.Model = v
	}
}

func (c *Config) validate() error {
	if err := validatePort(c.Server.Port); err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPG:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage backend %q requires a dsn", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Retention.MaintenanceHour < 0 || c.Retention.MaintenanceHour > 23 {
		return fmt.Errorf("maintenance hour must be 0..23, got %d", c.Retention.MaintenanceHour)
	}
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source entry missing id")
		}
	}
	return nil
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
