package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/history"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// Config is the full runtime configuration of the orchestrator
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	CORSOrigin      string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL          string
	ConnectTries int
	ConnectDelay time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type LLMConfig struct {
	Provider           string
	APIKey             string
	Model              string
	BaseURL            string
	DefaultTemperature float64
	DefaultMaxTokens   int
}

type GenerationConfig struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	InitialTimeout     time.Duration
	PerRetryTimeout    time.Duration
	MaximumTimeout     time.Duration
	ActivityWindow     time.Duration
	ProgressInterval   time.Duration
	Planning           bool
	HistoryTokenBudget int
	HistoryDepth       int
}

type LoggingConfig struct {
	Level       string
	Development bool
}

// Load reads an optional .env file from the working directory or the nearest
// module root, then builds the configuration from the environment.
func Load() (*Config, error) {
	if path, ok := findEnvFile(); ok {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	retry := generation.DefaultRetryConfig()
	timeouts := generation.DefaultTimeoutConfig()
	defaults := generation.DefaultConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:            e.str("PORT", "8080"),
			CORSOrigin:      e.str("CORS_ORIGIN", "*"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          e.str("DATABASE_URL", ""),
			ConnectTries: e.integer("DATABASE_CONNECT_RETRIES", 10),
			ConnectDelay: e.duration("DATABASE_CONNECT_DELAY", 3*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			TokenTTL:  e.duration("TOKEN_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			Provider:           strings.ToLower(e.str("LLM_PROVIDER", llm.ProviderDeepSeek)),
			APIKey:             e.str("LLM_API_KEY", ""),
			Model:              e.str("LLM_MODEL", ""),
			BaseURL:            e.str("LLM_BASE_URL", ""),
			DefaultTemperature: e.float("LLM_DEFAULT_TEMPERATURE", defaults.Temperature),
			DefaultMaxTokens:   e.integer("LLM_DEFAULT_MAX_TOKENS", defaults.ChatMaxTokens),
		},
		Generation: GenerationConfig{
			MaxAttempts:        e.integer("GENERATION_MAX_ATTEMPTS", retry.MaxAttempts),
			BaseDelay:          e.duration("GENERATION_RETRY_BASE_DELAY", retry.BaseDelay),
			MaxDelay:           e.duration("GENERATION_RETRY_MAX_DELAY", retry.MaxDelay),
			InitialTimeout:     e.duration("GENERATION_TIMEOUT_INITIAL", timeouts.Initial),
			PerRetryTimeout:    e.duration("GENERATION_TIMEOUT_PER_RETRY", timeouts.PerRetry),
			MaximumTimeout:     e.duration("GENERATION_TIMEOUT_MAXIMUM", timeouts.Maximum),
			ActivityWindow:     e.duration("GENERATION_ACTIVITY_WINDOW", timeouts.ActivityWindow),
			ProgressInterval:   e.duration("GENERATION_PROGRESS_INTERVAL", defaults.ProgressInterval),
			Planning:           e.boolean("GENERATION_PLANNING", defaults.Planning),
			HistoryTokenBudget: e.integer("GENERATION_HISTORY_TOKEN_BUDGET", defaults.HistoryTokenBudget),
			HistoryDepth:       e.integer("HISTORY_MAX_DEPTH", history.DefaultMaxDepth),
		},
		Logging: LoggingConfig{
			Level:       e.str("LOG_LEVEL", "info"),
			Development: e.boolean("LOG_DEVELOPMENT", false),
		},
	}

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if !llm.KnownProvider(c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" && c.LLM.Provider != llm.ProviderOllama {
		errs = append(errs, fmt.Errorf("LLM_API_KEY is required for provider %q", c.LLM.Provider))
	}
	g := c.Generation
	if g.MaxAttempts <= 0 {
		errs = append(errs, errors.New("GENERATION_MAX_ATTEMPTS must be positive"))
	}
	if g.BaseDelay <= 0 || g.MaxDelay <= 0 {
		errs = append(errs, errors.New("retry delays must be positive"))
	}
	if g.InitialTimeout <= 0 || g.PerRetryTimeout < 0 || g.MaximumTimeout <= 0 || g.ActivityWindow <= 0 {
		errs = append(errs, errors.New("generation timeouts must be positive"))
	}
	if g.HistoryDepth <= 0 {
		errs = append(errs, errors.New("HISTORY_MAX_DEPTH must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateServer additionally requires what the HTTP server needs
func (c *Config) ValidateServer() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

// ProviderConfig returns the settings for llm.NewCapability
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider: c.LLM.Provider,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
	}
}

// ModelName is the configured model, or the provider's default
func (c *Config) ModelName() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	return llm.DefaultModel(c.LLM.Provider)
}

// OrchestratorConfig returns the settings for generation.NewOrchestrator
func (c *Config) OrchestratorConfig() generation.Config {
	cfg := generation.DefaultConfig()
	g := c.Generation
	cfg.Retry.MaxAttempts = g.MaxAttempts
	cfg.Retry.BaseDelay = g.BaseDelay
	cfg.Retry.MaxDelay = g.MaxDelay
	cfg.Timeout = generation.TimeoutConfig{
		Initial:        g.InitialTimeout,
		PerRetry:       g.PerRetryTimeout,
		Maximum:        g.MaximumTimeout,
		ActivityWindow: g.ActivityWindow,
	}
	cfg.ProgressInterval = g.ProgressInterval
	cfg.Planning = g.Planning
	cfg.HistoryTokenBudget = g.HistoryTokenBudget
	cfg.Temperature = c.LLM.DefaultTemperature
	cfg.ChatMaxTokens = c.LLM.DefaultMaxTokens
	return cfg
}

func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// env collects parse errors so every bad variable is reported at once
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return f
}

func (e *env) boolean(key string, fallback bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return b
}

// duration accepts Go durations ("90s") or bare seconds ("90")
func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return fallback
	}
	return d
}
