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
	kBool
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
		key: "server.port", typ: kInt, env: EnvPrefix + "SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: EnvPrefix + "SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "inference.backend", typ: kString, env: EnvPrefix + "INFERENCE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Inference.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Backend },
	},
	{
		key: "inference.text_model", typ: kString, env: EnvPrefix + "INFERENCE_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.TextModel },
	},
	{
		key: "inference.vision_model", typ: kString, env: EnvPrefix + "INFERENCE_VISION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.VisionModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.VisionModel },
	},
	{
		key: "inference.timeout", typ: kDuration, env: EnvPrefix + "INFERENCE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Inference.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Inference.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: EnvPrefix + "OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "openrouter.api_key", typ: kString, env: EnvPrefix + "OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "openrouter.base_url", typ: kString, env: EnvPrefix + "OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.BaseURL },
	},
	{
		key: "geocode.base_url", typ: kString, env: EnvPrefix + "GEOCODE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Geocode.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.BaseURL },
	},
	{
		key: "geocode.user_agent", typ: kString, env: EnvPrefix + "GEOCODE_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Geocode.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.UserAgent },
	},
	{
		key: "geocode.email", typ: kString, env: EnvPrefix + "GEOCODE_EMAIL",
		apply:   func(cfg *Config, v any) { cfg.Geocode.Email = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.Email },
	},
	{
		key: "geocode.cache_size", typ: kInt, env: EnvPrefix + "GEOCODE_CACHE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Geocode.CacheSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Geocode.CacheSize },
	},
	{
		key: "geocode.pacing", typ: kDuration, env: EnvPrefix + "GEOCODE_PACING",
		apply:   func(cfg *Config, v any) { cfg.Geocode.Pacing = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Geocode.Pacing },
	},
	{
		key: "geocode.lexicon_path", typ: kString, env: EnvPrefix + "GEOCODE_LEXICON_PATH",
		apply:   func(cfg *Config, v any) { cfg.Geocode.LexiconPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.LexiconPath },
	},
	{
		key: "storage.data_dir", typ: kString, env: EnvPrefix + "STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: EnvPrefix + "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: EnvPrefix + "LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: EnvPrefix + "WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "worker.max_attempts", typ: kInt, env: EnvPrefix + "WORKER_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Worker.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.MaxAttempts },
	},
	{
		key: "compare.batch_size", typ: kInt, env: EnvPrefix + "COMPARE_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Compare.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Compare.BatchSize },
	},
	{
		key: "compare.pause", typ: kDuration, env: EnvPrefix + "COMPARE_PAUSE",
		apply:   func(cfg *Config, v any) { cfg.Compare.Pause = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Compare.Pause },
	},
	{
		key: "retry.schedule", typ: kString, env: EnvPrefix + "RETRY_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Retry.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Retry.Schedule },
	},
	{
		key: "retry.max_resets", typ: kInt, env: EnvPrefix + "RETRY_MAX_RESETS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxResets = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxResets },
	},
	{
		key: "retry.stuck_after", typ: kDuration, env: EnvPrefix + "RETRY_STUCK_AFTER",
		apply:   func(cfg *Config, v any) { cfg.Retry.StuckAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Retry.StuckAfter },
	},
}

// parse converts a raw string into the key's Go type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			if pv, err := s.parse(v); err == nil {
				s.apply(cfg, pv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config, env lookupFunc) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw, ok := env(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
