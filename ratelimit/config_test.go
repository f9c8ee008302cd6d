/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-appkit/config"
)

type AppConfig struct {
	RateLimit *Config `mapstructure:"rateLimit" json:"rateLimit" yaml:"rateLimit"`
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
rateLimit:
  tiers:
    public:
      capacity: 50
      window: 60
    service:
      capacity: 20000
      window: 60
  endpointOverrides:
    - method: POST
      path: /api/v2/projects
      capacity: 10
      window: 60
    - method: GET
      path: /api/v2/costs
      capacity: 100
      window: 60
  defaultPolicy:
    capacity: 2000
    window: 120
  stateTTL: 12h
  dryRun: true
  health:
    checkInterval: 30s
    degradedThreshold: 200
    criticalThreshold: 800
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Tiers = map[string]PolicyConfig{
					"public":  {Capacity: 50, WindowSec: 60},
					"service": {Capacity: 20000, WindowSec: 60},
				}
				cfg.EndpointOverrides = []EndpointOverrideConfig{
					{Method: "POST", Path: "/api/v2/projects", Capacity: 10, WindowSec: 60},
					{Method: "GET", Path: "/api/v2/costs", Capacity: 100, WindowSec: 60},
				}
				cfg.DefaultPolicy = PolicyConfig{Capacity: 2000, WindowSec: 120}
				cfg.StateTTL = 12 * time.Hour
				cfg.DryRun = true
				cfg.Health = HealthConfig{
					CheckInterval:     30 * time.Second,
					DegradedThreshold: 200,
					CriticalThreshold: 800,
				}
				return cfg
			},
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"rateLimit": {
		"tiers": {
			"authenticated": {"capacity": 500, "window": 60}
		},
		"stateTTL": "1h"
	}
}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Tiers = map[string]PolicyConfig{
					"authenticated": {Capacity: 500, WindowSec: 60},
				}
				cfg.StateTTL = time.Hour
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appCfg := AppConfig{RateLimit: NewDefaultConfig()}
			expectedAppCfg := AppConfig{RateLimit: tt.expectedCfg()}
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, appCfg.RateLimit)
			require.NoError(t, err)
			require.Equal(t, expectedAppCfg, appCfg)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, DefaultPolicy.Capacity, cfg.DefaultPolicy.Capacity)
	require.Equal(t, int(DefaultPolicy.Window.Seconds()), cfg.DefaultPolicy.WindowSec)
	require.Equal(t, DefaultBucketStateTTL, cfg.StateTTL)
	require.False(t, cfg.DryRun)
	require.Equal(t, DefaultHealthCheckInterval, cfg.Health.CheckInterval)
	require.Equal(t, float64(DefaultHealthDegradedThreshold), cfg.Health.DegradedThreshold)
	require.Equal(t, float64(DefaultHealthCriticalThreshold), cfg.Health.CriticalThreshold)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		yamlData   string
		wantErrMsg string
	}{
		{
			name: "unknown tier name",
			yamlData: `
rateLimit:
  tiers:
    premium:
      capacity: 10
      window: 60
`,
			wantErrMsg: `unknown client tier "premium"`,
		},
		{
			name: "non-positive tier capacity",
			yamlData: `
rateLimit:
  tiers:
    public:
      capacity: 0
      window: 60
`,
			wantErrMsg: "capacity and window should be positive",
		},
		{
			name: "override without path",
			yamlData: `
rateLimit:
  endpointOverrides:
    - method: GET
      capacity: 10
      window: 60
`,
			wantErrMsg: "method and path cannot be empty",
		},
		{
			name: "non-positive state TTL",
			yamlData: `
rateLimit:
  stateTTL: 0s
`,
			wantErrMsg: "should be positive",
		},
		{
			name: "critical threshold below degraded",
			yamlData: `
rateLimit:
  health:
    degradedThreshold: 900
    criticalThreshold: 100
`,
			wantErrMsg: "should be >= health.degradedThreshold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.wantErrMsg)
		})
	}
}
