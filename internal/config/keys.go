package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KNOWD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "KNOWD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "KNOWD_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.gen_model", typ: kString, env: "KNOWD_OLLAMA_GEN_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.GenModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.GenModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "KNOWD_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KNOWD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.roles_file", typ: kString, env: "KNOWD_ROLES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Storage.RolesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RolesFile },
	},
	{
		key: "retrieval.max_results", typ: kInt, env: "KNOWD_RETRIEVAL_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxResults },
	},
	{
		key: "retrieval.vector_weight", typ: kFloat, env: "KNOWD_RETRIEVAL_VECTOR_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.VectorWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.VectorWeight },
	},
	{
		key: "retrieval.keyword_weight", typ: kFloat, env: "KNOWD_RETRIEVAL_KEYWORD_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.KeywordWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.KeywordWeight },
	},
	{
		key: "cache.embedding_ttl", typ: kDuration, env: "KNOWD_CACHE_EMBEDDING_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.EmbeddingTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.EmbeddingTTL },
	},
	{
		key: "cache.response_ttl", typ: kDuration, env: "KNOWD_CACHE_RESPONSE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.ResponseTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.ResponseTTL },
	},
	{
		key: "expansion.timeout", typ: kDuration, env: "KNOWD_EXPANSION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Expansion.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Expansion.Timeout },
	},
	{
		key: "expansion.max_alternatives", typ: kInt, env: "KNOWD_EXPANSION_MAX_ALTERNATIVES",
		apply:   func(cfg *Config, v any) { cfg.Expansion.MaxAlternatives = v.(int) },
		extract: func(cfg Config) any { return cfg.Expansion.MaxAlternatives },
	},
	{
		key: "expansion.max_terms", typ: kInt, env: "KNOWD_EXPANSION_MAX_TERMS",
		apply:   func(cfg *Config, v any) { cfg.Expansion.MaxTerms = v.(int) },
		extract: func(cfg Config) any { return cfg.Expansion.MaxTerms },
	},
	{
		key: "training.export_dir", typ: kString, env: "KNOWD_TRAINING_EXPORT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Training.ExportDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Training.ExportDir },
	},
	{
		key: "training.worker_interval", typ: kDuration, env: "KNOWD_TRAINING_WORKER_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Training.WorkerInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Training.WorkerInterval },
	},
	{
		key: "training.improver_threshold", typ: kFloat, env: "KNOWD_TRAINING_IMPROVER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Training.ImproverThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Training.ImproverThreshold },
	},
	{
		key: "training.improver_min_quality", typ: kFloat, env: "KNOWD_TRAINING_IMPROVER_MIN_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.Training.ImproverMinQuality = v.(float64) },
		extract: func(cfg Config) any { return cfg.Training.ImproverMinQuality },
	},
	{
		key: "log.level", typ: kString, env: "KNOWD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}
