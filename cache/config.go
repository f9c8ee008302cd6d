/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyKeyNamespace    = "keyNamespace"
	cfgKeyDefaultTTL      = "defaultTTL"
	cfgKeyTTLs            = "ttls"
	cfgKeyLockTTL         = "lockTTL"
	cfgKeyCompressMinSize = "compressMinSize"
)

// Default cache parameters.
const (
	DefaultKeyNamespace = "cache:"
	DefaultTTL          = 5 * time.Minute
	DefaultLockTTL      = 10 * time.Second

	// DefaultCompressMinSize is the smallest payload the codec compresses.
	DefaultCompressMinSize = config.ByteSize(1024)
)

// defaultTTLs maps key prefixes to expiries mirroring the production
// cache policy. Longest matching prefix wins.
var defaultTTLs = map[string]time.Duration{
	"projects:list":      5 * time.Minute,
	"project:details":    10 * time.Minute,
	"compliance:scores":  time.Hour,
	"compliance:details": 30 * time.Minute,
	"costs:daily":        24 * time.Hour,
	"costs:summary":      time.Hour,
	"user:permissions":   10 * time.Minute,
	"resource:list":      30 * time.Minute,
	"audit:summary":      time.Hour,
}

// Config represents a set of configuration parameters for the tiered cache.
// Configuration can be loaded in different formats (YAML, JSON) using
// config.Loader, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// KeyNamespace prefixes every cache key in the shared store.
	KeyNamespace string `mapstructure:"keyNamespace" yaml:"keyNamespace" json:"keyNamespace"`

	// DefaultTTL applies when neither an explicit TTL nor a TTLs prefix matches.
	DefaultTTL time.Duration `mapstructure:"defaultTTL" yaml:"defaultTTL" json:"defaultTTL"`

	// TTLs maps key prefixes to expiries in seconds.
	TTLs map[string]int `mapstructure:"ttls" yaml:"ttls" json:"ttls"`

	// LockTTL bounds how long a crashed compute can keep other instances waiting.
	LockTTL time.Duration `mapstructure:"lockTTL" yaml:"lockTTL" json:"lockTTL"`

	// CompressMinSize is the smallest payload stored compressed.
	// Zero disables compression.
	CompressMinSize config.ByteSize `mapstructure:"compressMinSize" yaml:"compressMinSize" json:"compressMinSize"`

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
	ttls := make(map[string]int, len(defaultTTLs))
	for prefix, ttl := range defaultTTLs {
		ttls[prefix] = int(ttl.Seconds())
	}
	return &Config{
		keyPrefix:       opts.keyPrefix,
		KeyNamespace:    DefaultKeyNamespace,
		DefaultTTL:      DefaultTTL,
		TTLs:            ttls,
		LockTTL:         DefaultLockTTL,
		CompressMinSize: DefaultCompressMinSize,
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
	dp.SetDefault(cfgKeyKeyNamespace, DefaultKeyNamespace)
	dp.SetDefault(cfgKeyDefaultTTL, DefaultTTL)
	dp.SetDefault(cfgKeyLockTTL, DefaultLockTTL)
	dp.SetDefault(cfgKeyCompressMinSize, uint64(DefaultCompressMinSize))
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.KeyNamespace, err = dp.GetString(cfgKeyKeyNamespace); err != nil {
		return err
	}

	if c.DefaultTTL, err = dp.GetDuration(cfgKeyDefaultTTL); err != nil {
		return err
	}
	if c.DefaultTTL <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultTTL, fmt.Errorf("should be positive"))
	}

	c.TTLs = nil // configured TTLs replace the defaults, they do not merge
	if err = dp.UnmarshalKey(cfgKeyTTLs, &c.TTLs); err != nil {
		return err
	}
	if c.TTLs == nil {
		c.TTLs = make(map[string]int, len(defaultTTLs))
		for prefix, ttl := range defaultTTLs {
			c.TTLs[prefix] = int(ttl.Seconds())
		}
	}
	for prefix, ttlSec := range c.TTLs {
		if ttlSec <= 0 {
			return dp.WrapKeyErr(cfgKeyTTLs, fmt.Errorf("prefix %q: ttl should be positive", prefix))
		}
	}

	if c.LockTTL, err = dp.GetDuration(cfgKeyLockTTL); err != nil {
		return err
	}
	if c.LockTTL <= 0 {
		return dp.WrapKeyErr(cfgKeyLockTTL, fmt.Errorf("should be positive"))
	}

	if c.CompressMinSize, err = dp.GetSizeInBytes(cfgKeyCompressMinSize); err != nil {
		return err
	}

	return nil
}

// ttlTable builds the prefix-to-TTL lookup used by the cache.
func (c *Config) ttlTable() map[string]time.Duration {
	table := make(map[string]time.Duration, len(c.TTLs))
	for prefix, ttlSec := range c.TTLs {
		table[prefix] = time.Duration(ttlSec) * time.Second
	}
	return table
}
