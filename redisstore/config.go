/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package redisstore

import (
	"fmt"
	"time"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "redisStore"

const (
	cfgKeyAddress      = "address"
	cfgKeyPassword     = "password"
	cfgKeyDatabase     = "database"
	cfgKeyPoolSize     = "poolSize"
	cfgKeyDialTimeout  = "timeouts.dial"
	cfgKeyReadTimeout  = "timeouts.read"
	cfgKeyWriteTimeout = "timeouts.write"
)

// Default configuration values.
const (
	DefaultAddress      = "127.0.0.1:6379"
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 1 * time.Second
	DefaultWriteTimeout = 1 * time.Second
)

// Config represents a set of configuration parameters for the shared store
// connection. Configuration can be loaded in different formats (YAML, JSON)
// using config.Loader, viper, or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Password string         `mapstructure:"password" yaml:"password" json:"password"`
	Database int            `mapstructure:"database" yaml:"database" json:"database"`
	PoolSize int            `mapstructure:"poolSize" yaml:"poolSize" json:"poolSize"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`

	keyPrefix string
}

// TimeoutsConfig is a configuration for the store connection timeouts.
type TimeoutsConfig struct {
	Dial  time.Duration `mapstructure:"dial" yaml:"dial" json:"dial"`
	Read  time.Duration `mapstructure:"read" yaml:"read" json:"read"`
	Write time.Duration `mapstructure:"write" yaml:"write" json:"write"`
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
		keyPrefix: opts.keyPrefix,
		Address:   DefaultAddress,
		Timeouts: TimeoutsConfig{
			Dial:  DefaultDialTimeout,
			Read:  DefaultReadTimeout,
			Write: DefaultWriteTimeout,
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
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyDialTimeout, DefaultDialTimeout)
	dp.SetDefault(cfgKeyReadTimeout, DefaultReadTimeout)
	dp.SetDefault(cfgKeyWriteTimeout, DefaultWriteTimeout)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}

	if c.Password, err = dp.GetString(cfgKeyPassword); err != nil {
		return err
	}

	if c.Database, err = dp.GetInt(cfgKeyDatabase); err != nil {
		return err
	}
	if c.Database < 0 {
		return dp.WrapKeyErr(cfgKeyDatabase, fmt.Errorf("should be >= 0"))
	}

	if c.PoolSize, err = dp.GetInt(cfgKeyPoolSize); err != nil {
		return err
	}
	if c.PoolSize < 0 {
		return dp.WrapKeyErr(cfgKeyPoolSize, fmt.Errorf("should be >= 0"))
	}

	if c.Timeouts.Dial, err = dp.GetDuration(cfgKeyDialTimeout); err != nil {
		return err
	}
	if c.Timeouts.Read, err = dp.GetDuration(cfgKeyReadTimeout); err != nil {
		return err
	}
	if c.Timeouts.Write, err = dp.GetDuration(cfgKeyWriteTimeout); err != nil {
		return err
	}

	return nil
}
