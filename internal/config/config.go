package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/service"
	"github.com/Veraticus/fattura-reconcile/internal/session"
)

// EnvPrefix prefixes every environment override, e.g. RECON_API_BASE_URL.
const EnvPrefix = "RECON"

// TokenEnv is read when no token is configured through viper.
const TokenEnv = "FATTURA_API_TOKEN"

// Config is the typed view of the recon configuration.
type Config struct {
	Cache          CacheConfig
	API            APIConfig
	Storage        StorageConfig
	Logging        LoggingConfig
	Display        DisplayConfig
	Retry          service.RetryOptions
	Reconciliation session.Config
	Loader         LoaderConfig
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// CacheConfig holds the smart cache TTL policy.
type CacheConfig struct {
	Multipliers map[cache.EntityType]float64
	BaseTTL     time.Duration
}

// LoaderConfig bounds list fetches.
type LoaderConfig struct {
	PageSize int
	MaxItems int
}

// StorageConfig locates the local state database.
type StorageConfig struct {
	Path string
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// DisplayConfig controls amount formatting.
type DisplayConfig struct {
	Locale   string
	Currency string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	rec := session.DefaultConfig()

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("cache.base_ttl", cache.DefaultBaseTTL)
	for t, m := range cache.DefaultMultipliers() {
		v.SetDefault("cache.multipliers."+string(t), m)
	}
	v.SetDefault("loader.page_size", 500)
	v.SetDefault("loader.max_items", 0)
	v.SetDefault("reconciliation.confidence_threshold", rec.ConfidenceThreshold)
	v.SetDefault("reconciliation.auto_apply", rec.AutoApply)
	v.SetDefault("reconciliation.pattern_learning", rec.PatternLearning)
	v.SetDefault("reconciliation.max_suggestions", rec.MaxSuggestions)
	v.SetDefault("storage.path", "~/.local/share/recon/state.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("display.locale", "it")
	v.SetDefault("display.currency", "€")
}

// Load builds a validated Config from v. Values come from, in order of
// precedence, flags bound to v, RECON_* environment variables, the config
// file, FATTURA_API_TOKEN for the token, and finally the defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Token:   v.GetString("api.token"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Retry: service.RetryOptions{
			MaxAttempts:  v.GetInt("retry.max_attempts"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			MaxDelay:     v.GetDuration("retry.max_delay"),
			Multiplier:   v.GetFloat64("retry.multiplier"),
		},
		Cache: CacheConfig{
			BaseTTL:     v.GetDuration("cache.base_ttl"),
			Multipliers: make(map[cache.EntityType]float64),
		},
		Loader: LoaderConfig{
			PageSize: v.GetInt("loader.page_size"),
			MaxItems: v.GetInt("loader.max_items"),
		},
		Reconciliation: session.Config{
			ConfidenceThreshold: v.GetFloat64("reconciliation.confidence_threshold"),
			AutoApply:           v.GetBool("reconciliation.auto_apply"),
			PatternLearning:     v.GetBool("reconciliation.pattern_learning"),
			MaxSuggestions:      v.GetInt("reconciliation.max_suggestions"),
		},
		Storage: StorageConfig{Path: ExpandPath(v.GetString("storage.path"))},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Display: DisplayConfig{
			Locale:   v.GetString("display.locale"),
			Currency: v.GetString("display.currency"),
		},
	}

	// A map read returns only the highest layer, so known types are read key
	// by key to fall back to their defaults.
	for _, t := range cache.EntityTypes {
		cfg.Cache.Multipliers[t] = v.GetFloat64("cache.multipliers." + string(t))
	}
	for key := range v.GetStringMap("cache.multipliers") {
		cfg.Cache.Multipliers[cache.EntityType(key)] = v.GetFloat64("cache.multipliers." + key)
	}

	if cfg.API.Token == "" {
		cfg.API.Token = os.Getenv(TokenEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url", common.ErrMissingConfig)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", common.ErrInvalidConfig)
	}
	if c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", common.ErrInvalidConfig)
	}
	if c.Cache.BaseTTL <= 0 {
		return fmt.Errorf("%w: cache.base_ttl must be positive", common.ErrInvalidConfig)
	}
	for t, m := range c.Cache.Multipliers {
		if !knownType(t) {
			return fmt.Errorf("%w: cache.multipliers: unknown entity type %q", common.ErrInvalidConfig, t)
		}
		if !(m >= 0) {
			return fmt.Errorf("%w: cache.multipliers.%s must be a non-negative number", common.ErrInvalidConfig, t)
		}
	}
	if c.Loader.PageSize < 1 || c.Loader.PageSize > 1000 {
		return fmt.Errorf("%w: loader.page_size %d outside [1,1000]", common.ErrInvalidConfig, c.Loader.PageSize)
	}
	if c.Loader.MaxItems < 0 {
		return fmt.Errorf("%w: loader.max_items must not be negative", common.ErrInvalidConfig)
	}
	if err := c.Reconciliation.Validate(); err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path", common.ErrMissingConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

func knownType(t cache.EntityType) bool {
	for _, known := range cache.EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// LoadEnvFiles loads KEY=value files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(ExpandPath(path)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}
