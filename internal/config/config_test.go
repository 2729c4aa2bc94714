package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(TokenEnv, "")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 5*time.Minute, cfg.Cache.BaseTTL)
	assert.InDelta(t, 0.2, cfg.Cache.Multipliers[cache.Reconciliation], 1e-9)
	assert.InDelta(t, 2.0, cfg.Cache.Multipliers[cache.Anagraphics], 1e-9)
	assert.InDelta(t, 0.8, cfg.Reconciliation.ConfidenceThreshold, 1e-9)
	assert.False(t, cfg.Reconciliation.AutoApply)
	assert.True(t, cfg.Reconciliation.PatternLearning)
	assert.Equal(t, 20, cfg.Reconciliation.MaxSuggestions)
	assert.Equal(t, 500, cfg.Loader.PageSize)
	assert.False(t, strings.HasPrefix(cfg.Storage.Path, "~"))
	assert.True(t, strings.HasSuffix(cfg.Storage.Path, filepath.Join("recon", "state.db")))
}

func TestLoad_ConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://fatture.example.com
  timeout: 10s
cache:
  base_ttl: 1m
  multipliers:
    invoices: 3
reconciliation:
  confidence_threshold: 0.65
  auto_apply: true
storage:
  path: `+filepath.Join(dir, "state.db")+`
`), 0o600))

	t.Setenv("RECON_RECONCILIATION_MAX_SUGGESTIONS", "7")
	t.Setenv(TokenEnv, "secret")

	v := newViper(t)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://fatture.example.com", cfg.API.BaseURL)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.BaseTTL)
	assert.InDelta(t, 3.0, cfg.Cache.Multipliers[cache.Invoices], 1e-9)
	assert.InDelta(t, 0.2, cfg.Cache.Multipliers[cache.Reconciliation], 1e-9)
	assert.InDelta(t, 0.65, cfg.Reconciliation.ConfidenceThreshold, 1e-9)
	assert.True(t, cfg.Reconciliation.AutoApply)
	assert.Equal(t, 7, cfg.Reconciliation.MaxSuggestions)
	assert.Equal(t, filepath.Join(dir, "state.db"), cfg.Storage.Path)
}

func TestLoad_ConfiguredTokenWins(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	v := newViper(t)
	v.Set("api.token", "from-config")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-config", cfg.API.Token)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		value   any
		name    string
		key     string
		wantErr error
	}{
		{name: "threshold above one", key: "reconciliation.confidence_threshold", value: 1.5, wantErr: common.ErrInvalidConfig},
		{name: "negative threshold", key: "reconciliation.confidence_threshold", value: -0.1, wantErr: common.ErrInvalidConfig},
		{name: "NaN threshold", key: "reconciliation.confidence_threshold", value: math.NaN(), wantErr: common.ErrInvalidConfig},
		{name: "zero ttl", key: "cache.base_ttl", value: "0s", wantErr: common.ErrInvalidConfig},
		{name: "negative multiplier", key: "cache.multipliers.invoices", value: -1, wantErr: common.ErrInvalidConfig},
		{name: "NaN multiplier", key: "cache.multipliers.invoices", value: math.NaN(), wantErr: common.ErrInvalidConfig},
		{name: "unknown multiplier", key: "cache.multipliers.vendors", value: 1, wantErr: common.ErrInvalidConfig},
		{name: "no retry attempts", key: "retry.max_attempts", value: 0, wantErr: common.ErrInvalidConfig},
		{name: "page size too large", key: "loader.page_size", value: 5000, wantErr: common.ErrInvalidConfig},
		{name: "missing base url", key: "api.base_url", value: "", wantErr: common.ErrMissingConfig},
		{name: "bad log level", key: "logging.level", value: "loud", wantErr: common.ErrInvalidConfig},
		{name: "bad log format", key: "logging.format", value: "xml", wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECON_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RECON_TEST_DOTENV") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("RECON_TEST_DOTENV"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("RECON_TEST_DIR", "/srv/recon")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/state.db", want: filepath.Join(home, "state.db")},
		{in: "$RECON_TEST_DIR/state.db", want: "/srv/recon/state.db"},
		{in: "/abs/state.db", want: "/abs/state.db"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestConfigDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "recon"), dir)
}
