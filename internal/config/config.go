package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "NESTSCOUT_"

type Config struct {
	Server     ServerConfig
	Inference  InferenceConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Geocode    GeocodeConfig
	Storage    StorageConfig
	Log        LogConfig
	Worker     WorkerConfig
	Compare    CompareConfig
	Retry      RetryConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type InferenceConfig struct {
	Backend     string
	TextModel   string
	VisionModel string
	Timeout     time.Duration
}

type OllamaConfig struct {
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
}

type GeocodeConfig struct {
	BaseURL     string
	UserAgent   string
	Email       string
	CacheSize   int
	Pacing      time.Duration
	LexiconPath string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type WorkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

type CompareConfig struct {
	BatchSize int
	Pause     time.Duration
}

type RetryConfig struct {
	Schedule   string
	MaxResets  int
	StuckAfter time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       4000,
			MCPEnabled: false,
		},
		Inference: InferenceConfig{
			Backend:     "ollama",
			TextModel:   "qwen2.5:7b",
			VisionModel: "qwen2.5vl:7b",
			Timeout:     30 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		OpenRouter: OpenRouterConfig{
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Geocode: GeocodeConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "nestscout/1.0",
			CacheSize: 10000,
			Pacing:    500 * time.Millisecond,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Worker: WorkerConfig{
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  3,
		},
		Compare: CompareConfig{
			BatchSize: 3,
			Pause:     time.Second,
		},
		Retry: RetryConfig{
			Schedule:   "@every 15m",
			MaxResets:  3,
			StuckAfter: 10 * time.Minute,
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.nestscout.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/nestscout/config.json
// and secrets fall back to $XDG_DATA_HOME/nestscout/secrets.json.
//
// Environment variables (NESTSCOUT_*) override backend values on all
// platforms. Values from .env never override the real environment.
func Load() (Config, error) {
	dotenv, err := readDotEnv(".env")
	if err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), NewKeychain(), environ(dotenv))
}

// readDotEnv parses a .env file. A missing file yields no values.
func readDotEnv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vals, nil
}

// lookupFunc resolves an environment variable.
type lookupFunc func(key string) (string, bool)

// environ consults the process environment first and dotenv second.
func environ(dotenv map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

func loadWith(b ConfigBackend, kc SecretStore, env lookupFunc) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg, env)

	// Try platform secret store for the API key if still empty.
	if cfg.OpenRouter.APIKey == "" {
		if key, err := kc.Get(secretService, openRouterAccount); err == nil && key != "" {
			cfg.OpenRouter.APIKey = key
		}
	}

	cfg.Inference.Backend = strings.ToLower(strings.TrimSpace(cfg.Inference.Backend))
	if cfg.Inference.Backend == "openrouter" && cfg.OpenRouter.APIKey == "" {
		msg := "missing required config: OpenRouter API key. " +
			"Set it via environment variable " + EnvPrefix + "OPENROUTER_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}
