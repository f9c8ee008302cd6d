/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyTiers                   = "tiers"
	cfgKeyEndpointOverrides       = "endpointOverrides"
	cfgKeyDefaultPolicyCapacity   = "defaultPolicy.capacity"
	cfgKeyDefaultPolicyWindow     = "defaultPolicy.window"
	cfgKeyStateTTL                = "stateTTL"
	cfgKeyDryRun                  = "dryRun"
	cfgKeyHealthCheckInterval     = "health.checkInterval"
	cfgKeyHealthDegradedThreshold = "health.degradedThreshold"
	cfgKeyHealthCriticalThreshold = "health.criticalThreshold"
)

// PolicyConfig describes a rate-limit policy: capacity tokens per window.
// Window is expressed in seconds.
type PolicyConfig struct {
	Capacity  int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	WindowSec int `mapstructure:"window" yaml:"window" json:"window"`
}

func (pc PolicyConfig) policy() Policy {
	return Policy{Capacity: pc.Capacity, Window: time.Duration(pc.WindowSec) * time.Second}
}

// EndpointOverrideConfig describes a per-endpoint policy override.
type EndpointOverrideConfig struct {
	Method    string `mapstructure:"method" yaml:"method" json:"method"`
	Path      string `mapstructure:"path" yaml:"path" json:"path"`
	Capacity  int    `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	WindowSec int    `mapstructure:"window" yaml:"window" json:"window"`
}

// HealthConfig is a configuration for adaptive health-based scaling.
type HealthConfig struct {
	CheckInterval     time.Duration `mapstructure:"checkInterval" yaml:"checkInterval" json:"checkInterval"`
	DegradedThreshold float64       `mapstructure:"degradedThreshold" yaml:"degradedThreshold" json:"degradedThreshold"`
	CriticalThreshold float64       `mapstructure:"criticalThreshold" yaml:"criticalThreshold" json:"criticalThreshold"`
}

// Config represents a set of configuration parameters for rate limiting.
// Configuration can be loaded in different formats (YAML, JSON) using
// config.Loader, viper, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Tiers             map[string]PolicyConfig  `mapstructure:"tiers" yaml:"tiers" json:"tiers"`
	EndpointOverrides []EndpointOverrideConfig `mapstructure:"endpointOverrides" yaml:"endpointOverrides" json:"endpointOverrides"`
	DefaultPolicy     PolicyConfig             `mapstructure:"defaultPolicy" yaml:"defaultPolicy" json:"defaultPolicy"`
	StateTTL          time.Duration            `mapstructure:"stateTTL" yaml:"stateTTL" json:"stateTTL"`
	DryRun            bool                     `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	Health            HealthConfig             `mapstructure:"health" yaml:"health" json:"health"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:     opts.keyPrefix,
		DefaultPolicy: PolicyConfig{Capacity: DefaultPolicy.Capacity, WindowSec: int(DefaultPolicy.Window.Seconds())},
		StateTTL:      DefaultBucketStateTTL,
		Health: HealthConfig{
			CheckInterval:     DefaultHealthCheckInterval,
			DegradedThreshold: DefaultHealthDegradedThreshold,
			CriticalThreshold: DefaultHealthCriticalThreshold,
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyDefaultPolicyCapacity, DefaultPolicy.Capacity)
	dp.SetDefault(cfgKeyDefaultPolicyWindow, int(DefaultPolicy.Window.Seconds()))
	dp.SetDefault(cfgKeyStateTTL, DefaultBucketStateTTL)
	dp.SetDefault(cfgKeyHealthCheckInterval, DefaultHealthCheckInterval)
	dp.SetDefault(cfgKeyHealthDegradedThreshold, DefaultHealthDegradedThreshold)
	dp.SetDefault(cfgKeyHealthCriticalThreshold, DefaultHealthCriticalThreshold)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	c.Tiers = nil
	if err = dp.UnmarshalKey(cfgKeyTiers, &c.Tiers); err != nil {
		return err
	}
	for tierName, pc := range c.Tiers {
		if _, err = ParseClientTier(tierName); err != nil {
			return dp.WrapKeyErr(cfgKeyTiers, err)
		}
		if pc.Capacity <= 0 || pc.WindowSec <= 0 {
			return dp.WrapKeyErr(cfgKeyTiers,
				fmt.Errorf("tier %q: capacity and window should be positive", tierName))
		}
	}

	c.EndpointOverrides = nil
	if err = dp.UnmarshalKey(cfgKeyEndpointOverrides, &c.EndpointOverrides); err != nil {
		return err
	}
	for _, oc := range c.EndpointOverrides {
		if oc.Method == "" || oc.Path == "" {
			return dp.WrapKeyErr(cfgKeyEndpointOverrides, fmt.Errorf("method and path cannot be empty"))
		}
		if oc.Capacity <= 0 || oc.WindowSec <= 0 {
			return dp.WrapKeyErr(cfgKeyEndpointOverrides,
				fmt.Errorf("%s %s: capacity and window should be positive", oc.Method, oc.Path))
		}
	}

	if c.DefaultPolicy.Capacity, err = dp.GetInt(cfgKeyDefaultPolicyCapacity); err != nil {
		return err
	}
	if c.DefaultPolicy.WindowSec, err = dp.GetInt(cfgKeyDefaultPolicyWindow); err != nil {
		return err
	}
	if c.DefaultPolicy.Capacity <= 0 || c.DefaultPolicy.WindowSec <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultPolicyCapacity, fmt.Errorf("should be positive"))
	}

	if c.StateTTL, err = dp.GetDuration(cfgKeyStateTTL); err != nil {
		return err
	}
	if c.StateTTL <= 0 {
		return dp.WrapKeyErr(cfgKeyStateTTL, fmt.Errorf("should be positive"))
	}

	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}

	if c.Health.CheckInterval, err = dp.GetDuration(cfgKeyHealthCheckInterval); err != nil {
		return err
	}
	if c.Health.DegradedThreshold, err = dp.GetFloat64(cfgKeyHealthDegradedThreshold); err != nil {
		return err
	}
	if c.Health.CriticalThreshold, err = dp.GetFloat64(cfgKeyHealthCriticalThreshold); err != nil {
		return err
	}
	if c.Health.CriticalThreshold < c.Health.DegradedThreshold {
		return dp.WrapKeyErr(cfgKeyHealthCriticalThreshold,
			fmt.Errorf("should be >= %s", cfgKeyHealthDegradedThreshold))
	}

	return nil
}
