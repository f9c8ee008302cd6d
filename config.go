/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package coordkit

import (
	"github.com/acronis/go-appkit/config"

	"github.com/cloudward/go-coordkit/cache"
	"github.com/cloudward/go-coordkit/ratelimit"
	"github.com/cloudward/go-coordkit/redisstore"
)

// Config aggregates the configuration of all coordination components so the
// whole tree loads with a single config.Loader call.
type Config struct {
	Redis     *redisstore.Config `mapstructure:"redisStore" yaml:"redisStore" json:"redisStore"`
	RateLimit *ratelimit.Config  `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Cache     *cache.Config      `mapstructure:"cache" yaml:"cache" json:"cache"`
}

var _ config.Config = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{
		Redis:     redisstore.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
		Cache:     cache.NewConfig(),
	}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Redis:     redisstore.NewDefaultConfig(),
		RateLimit: ratelimit.NewDefaultConfig(),
		Cache:     cache.NewDefaultConfig(),
	}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
