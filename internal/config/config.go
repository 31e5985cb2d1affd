package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Cache     CacheConfig
	Expansion ExpansionConfig
	Training  TrainingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OllamaConfig struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
}

type StorageConfig struct {
	DataDir   string
	RolesFile string // empty means the built-in role set
}

type RetrievalConfig struct {
	MaxResults    int
	VectorWeight  float64
	KeywordWeight float64
}

type CacheConfig struct {
	EmbeddingTTL time.Duration
	ResponseTTL  time.Duration
}

type ExpansionConfig struct {
	Timeout         time.Duration
	MaxAlternatives int
	MaxTerms        int
}

type TrainingConfig struct {
	ExportDir          string
	WorkerInterval     time.Duration
	ImproverThreshold  float64
	ImproverMinQuality float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			GenModel:   "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Retrieval: RetrievalConfig{
			MaxResults:    5,
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
		},
		Cache: CacheConfig{
			EmbeddingTTL: time.Hour,
			ResponseTTL:  30 * time.Minute,
		},
		Expansion: ExpansionConfig{
			Timeout:         5 * time.Second,
			MaxAlternatives: 2,
			MaxTerms:        2,
		},
		Training: TrainingConfig{
			ExportDir:          filepath.Join(dataDir, "training"),
			WorkerInterval:     30 * time.Second,
			ImproverThreshold:  0.8,
			ImproverMinQuality: 4.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "knowd")
	}
	return filepath.Join(".", "knowd-data")
}

// Load builds the configuration from defaults and KNOWD_* environment
// variable overrides, then validates it. The API token is required: set it
// via KNOWD_API_TOKEN.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.APIToken == "" {
		return fmt.Errorf("missing required config: API token. Set it via environment variable KNOWD_API_TOKEN")
	}
	if cfg.Retrieval.MaxResults < 1 || cfg.Retrieval.MaxResults > 20 {
		return fmt.Errorf("retrieval.max_results must be between 1 and 20, got %d", cfg.Retrieval.MaxResults)
	}
	sum := cfg.Retrieval.VectorWeight + cfg.Retrieval.KeywordWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.3f", sum)
	}
	if cfg.Retrieval.VectorWeight < 0 || cfg.Retrieval.KeywordWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if cfg.Cache.EmbeddingTTL <= 0 || cfg.Cache.ResponseTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if cfg.Training.ImproverThreshold < 0 || cfg.Training.ImproverThreshold > 1 {
		return fmt.Errorf("training.improver_threshold must be in [0, 1], got %.3f", cfg.Training.ImproverThreshold)
	}
	if cfg.Training.ImproverMinQuality < 1.0 || cfg.Training.ImproverMinQuality > 5.0 {
		return fmt.Errorf("training.improver_min_quality must be in [1.0, 5.0], got %.3f", cfg.Training.ImproverMinQuality)
	}
	return nil
}
