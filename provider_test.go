/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package coordkit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/cloudward/go-coordkit/cache"
)

const testCfgData = `
redisStore:
  address: "%ADDR%"
  timeouts:
    dial: 1s
rateLimit:
  tiers:
    public:
      capacity: 3
      window: 60
  dryRun: false
  health:
    checkInterval: 5s
cache:
  defaultTTL: 1m
  lockTTL: 2s
`

func loadTestConfig(t *testing.T, addr string) *Config {
	t.Helper()
	cfgData := bytes.ReplaceAll([]byte(testCfgData), []byte("%ADDR%"), []byte(addr))
	cfg := NewDefaultConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(
		bytes.NewBuffer(cfgData), config.DataTypeYAML, cfg))
	return cfg
}

func TestConfigLoadsWholeTree(t *testing.T) {
	cfg := loadTestConfig(t, "redis.internal:6379")

	require.Equal(t, "redis.internal:6379", cfg.Redis.Address)
	require.Equal(t, time.Second, cfg.Redis.Timeouts.Dial)
	require.Equal(t, 3, cfg.RateLimit.Tiers["public"].Capacity)
	require.Equal(t, 5*time.Second, cfg.RateLimit.Health.CheckInterval)
	require.Equal(t, time.Minute, cfg.Cache.DefaultTTL)
	require.Equal(t, 2*time.Second, cfg.Cache.LockTTL)

	// Keys absent from the data keep their defaults.
	require.Equal(t, cache.DefaultKeyNamespace, cfg.Cache.KeyNamespace)
	require.Equal(t, float64(1000), cfg.RateLimit.Health.CriticalThreshold)
}

func TestProvider(t *testing.T) {
	srv := miniredis.RunT(t)
	provider := New(loadTestConfig(t, srv.Addr()), Opts{})
	defer func() { require.NoError(t, provider.Close()) }()

	ctx := context.Background()
	require.NoError(t, provider.Ping(ctx))

	t.Run("lock and cache share the store", func(t *testing.T) {
		err := provider.Locker.WithLock(ctx, "warmup", 0, func(ctx context.Context) error {
			return provider.Cache.Put(ctx, "projects:list:all", []byte("v"), 0)
		})
		require.NoError(t, err)
		require.True(t, srv.Exists("cache:projects:list:all"))
		require.False(t, srv.Exists("lock:warmup"))
	})

	t.Run("middlewares are wired", func(t *testing.T) {
		handler := provider.RequestScopeMiddleware()(
			provider.RateLimitMiddleware("TestService")(
				http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
					require.NotNil(t, cache.RequestScopeFromContext(r.Context()))
				})))

		codes := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			r := httptest.NewRequest(http.MethodGet, "/api/v2/projects", nil)
			r.RemoteAddr = "203.0.113.10:54321"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			codes = append(codes, w.Code)
		}
		// Tier "public" allows 3 requests per window.
		require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})
}

func TestProviderNilConfigUsesDefaults(t *testing.T) {
	provider := New(nil, Opts{})
	defer func() { _ = provider.Close() }()
	require.NotNil(t, provider.Store)
	require.NotNil(t, provider.Cache)
	require.NotNil(t, provider.RateLimiter)
}
