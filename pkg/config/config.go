// Package config loads and validates the streaming service configuration.
//
// Configuration is resolved in three layers: compiled defaults, an optional
// JSON file pointed at by CONFIG_PATH, and environment variable overrides.
// Later layers win. The resolved Config is constructed once at startup and
// threaded explicitly into the components that need it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/streamx-network/streamx/pkg/utils"
)

// Configuration errors returned by Load and Validate.
var (
	ErrNoProviders            = errors.New("no providers configured")
	ErrUnknownDefaultProvider = errors.New("default provider not found in providers configuration")
	ErrMissingProviderURL     = errors.New("provider is missing URL configuration")
)

// Well-known provider names used by the default deployment.
const (
	ProviderAlchemy    = "alchemy"
	ProviderChainstack = "chainstack"
)

// ProviderConfig describes a single remote node endpoint.
type ProviderConfig struct {
	URL string `json:"url"`
}

// Config holds all tunables for the streaming service.
type Config struct {
	// ExpectedBlockTime is the chain's nominal block production interval.
	ExpectedBlockTime time.Duration `json:"expected_block_time"`
	// MaxBlockProcessingTime is the slack allowed on top of ExpectedBlockTime
	// before block delay counts against a provider's health.
	MaxBlockProcessingTime time.Duration `json:"max_block_processing_time"`
	// MaxAvgResponseTime is the ceiling on a provider's average RPC latency.
	MaxAvgResponseTime time.Duration `json:"max_avg_response_time"`
	// ErrorThreshold is the number of consecutive errors that marks a
	// provider unhealthy.
	ErrorThreshold int `json:"error_threshold"`
	// MinSwitchInterval is the cool-down between provider switches.
	MinSwitchInterval time.Duration `json:"min_switch_interval"`
	// HealthWindow is the number of observations retained per provider.
	HealthWindow int `json:"health_window"`
	// PollInterval paces the streaming loop between successful cycles.
	PollInterval time.Duration `json:"poll_interval"`
	// ErrorPause is the longer pause applied after a failed cycle.
	ErrorPause time.Duration `json:"error_pause"`
	// ProbeInterval is the cron cadence for standby provider probes.
	ProbeInterval time.Duration `json:"probe_interval"`

	DefaultProvider string                    `json:"default_provider"`
	Providers       map[string]ProviderConfig `json:"providers"`
}

// fileConfig mirrors Config but with durations expressed in seconds, matching
// the deployed config.json format.
type fileConfig struct {
	ExpectedBlockTime      *float64                  `json:"expected_block_time"`
	MaxBlockProcessingTime *float64                  `json:"max_block_processing_time"`
	MaxAvgResponseTime     *float64                  `json:"max_avg_response_time"`
	ErrorThreshold         *int                      `json:"error_threshold"`
	MinSwitchInterval      *float64                  `json:"min_switch_interval"`
	HealthWindow           *int                      `json:"health_window"`
	DefaultProvider        *string                   `json:"default_provider"`
	Providers              map[string]ProviderConfig `json:"providers"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		ExpectedBlockTime:      12 * time.Second,
		MaxBlockProcessingTime: 5 * time.Second,
		MaxAvgResponseTime:     2 * time.Second,
		ErrorThreshold:         3,
		MinSwitchInterval:      30 * time.Second,
		HealthWindow:           20,
		PollInterval:           500 * time.Millisecond,
		ErrorPause:             2 * time.Second,
		ProbeInterval:          15 * time.Second,
		DefaultProvider:        ProviderAlchemy,
		Providers:              map[string]ProviderConfig{},
	}
}

// Load resolves the configuration from defaults, the optional CONFIG_PATH
// JSON file, and environment variables, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := utils.Env("CONFIG_PATH", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return err
	}

	secs := func(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
	if fc.ExpectedBlockTime != nil {
		c.ExpectedBlockTime = secs(*fc.ExpectedBlockTime)
	}
	if fc.MaxBlockProcessingTime != nil {
		c.MaxBlockProcessingTime = secs(*fc.MaxBlockProcessingTime)
	}
	if fc.MaxAvgResponseTime != nil {
		c.MaxAvgResponseTime = secs(*fc.MaxAvgResponseTime)
	}
	if fc.ErrorThreshold != nil {
		c.ErrorThreshold = *fc.ErrorThreshold
	}
	if fc.MinSwitchInterval != nil {
		c.MinSwitchInterval = secs(*fc.MinSwitchInterval)
	}
	if fc.HealthWindow != nil {
		c.HealthWindow = *fc.HealthWindow
	}
	if fc.DefaultProvider != nil {
		c.DefaultProvider = *fc.DefaultProvider
	}
	for name, pc := range fc.Providers {
		c.Providers[name] = pc
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.ExpectedBlockTime = utils.EnvDuration("EXPECTED_BLOCK_TIME", c.ExpectedBlockTime)
	c.MaxBlockProcessingTime = utils.EnvDuration("MAX_BLOCK_PROCESSING_TIME", c.MaxBlockProcessingTime)
	c.MaxAvgResponseTime = utils.EnvDuration("MAX_AVG_RESPONSE_TIME", c.MaxAvgResponseTime)
	c.ErrorThreshold = utils.EnvInt("ERROR_THRESHOLD", c.ErrorThreshold)
	c.MinSwitchInterval = utils.EnvDuration("MIN_SWITCH_INTERVAL", c.MinSwitchInterval)
	c.HealthWindow = utils.EnvInt("HEALTH_WINDOW", c.HealthWindow)
	c.PollInterval = utils.EnvDuration("POLL_INTERVAL", c.PollInterval)
	c.ErrorPause = utils.EnvDuration("ERROR_PAUSE", c.ErrorPause)
	c.ProbeInterval = utils.EnvDuration("PROBE_INTERVAL", c.ProbeInterval)
	c.DefaultProvider = utils.Env("DEFAULT_PROVIDER", c.DefaultProvider)

	// Provider URLs for the default deployment pair. A provider is only added
	// when its URL is present so Validate can reject an empty set.
	if url := utils.Env("ALCHEMY_URL", ""); url != "" {
		c.Providers[ProviderAlchemy] = ProviderConfig{URL: url}
	}
	if url := utils.Env("CHAINSTACK_URL", ""); url != "" {
		c.Providers[ProviderChainstack] = ProviderConfig{URL: url}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefaultProvider, c.DefaultProvider)
	}
	for name, pc := range c.Providers {
		if pc.URL == "" {
			return fmt.Errorf("%w: %q", ErrMissingProviderURL, name)
		}
	}
	return nil
}
