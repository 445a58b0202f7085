package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 12*time.Second, cfg.ExpectedBlockTime)
	assert.Equal(t, 5*time.Second, cfg.MaxBlockProcessingTime)
	assert.Equal(t, 2*time.Second, cfg.MaxAvgResponseTime)
	assert.Equal(t, 3, cfg.ErrorThreshold)
	assert.Equal(t, 30*time.Second, cfg.MinSwitchInterval)
	assert.Equal(t, 20, cfg.HealthWindow)
	assert.Equal(t, ProviderAlchemy, cfg.DefaultProvider)
	assert.Empty(t, cfg.Providers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALCHEMY_URL", "https://alchemy.example/rpc")
	t.Setenv("CHAINSTACK_URL", "https://chainstack.example/rpc")
	t.Setenv("ERROR_THRESHOLD", "5")
	t.Setenv("MIN_SWITCH_INTERVAL", "1m")
	t.Setenv("DEFAULT_PROVIDER", ProviderChainstack)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ErrorThreshold)
	assert.Equal(t, time.Minute, cfg.MinSwitchInterval)
	assert.Equal(t, ProviderChainstack, cfg.DefaultProvider)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "https://alchemy.example/rpc", cfg.Providers[ProviderAlchemy].URL)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"expected_block_time": 2.5,
		"error_threshold": 4,
		"default_provider": "chainstack",
		"providers": {
			"chainstack": {"url": "https://file.example/rpc"}
		}
	}`), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ERROR_THRESHOLD", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.ExpectedBlockTime, "file durations are seconds, fractions allowed")
	assert.Equal(t, 7, cfg.ErrorThreshold, "environment wins over the file")
	assert.Equal(t, ProviderChainstack, cfg.DefaultProvider)
	assert.Equal(t, "https://file.example/rpc", cfg.Providers[ProviderChainstack].URL)
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.json"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("no providers", func(t *testing.T) {
		cfg := Default()
		require.ErrorIs(t, cfg.Validate(), ErrNoProviders)
	})

	t.Run("unknown default provider", func(t *testing.T) {
		cfg := Default()
		cfg.Providers["other"] = ProviderConfig{URL: "https://other.example"}
		require.ErrorIs(t, cfg.Validate(), ErrUnknownDefaultProvider)
	})

	t.Run("missing provider url", func(t *testing.T) {
		cfg := Default()
		cfg.Providers[ProviderAlchemy] = ProviderConfig{URL: ""}
		require.ErrorIs(t, cfg.Validate(), ErrMissingProviderURL)
	})

	t.Run("valid", func(t *testing.T) {
		cfg := Default()
		cfg.Providers[ProviderAlchemy] = ProviderConfig{URL: "https://alchemy.example"}
		require.NoError(t, cfg.Validate())
	})
}
