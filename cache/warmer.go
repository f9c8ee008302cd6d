/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"context"

	"github.com/acronis/go-appkit/log"
)

// WarmupLoader produces the entries the cache should be pre-populated with.
type WarmupLoader func(ctx context.Context) (map[string][]byte, error)

// Warmer pre-populates the shared cache tier, typically once at startup.
// Warming is best effort: a service that starts with a cold cache is slower,
// not broken, so no warming failure is ever fatal.
type Warmer struct {
	cache  *TieredCache
	logger log.FieldLogger
}

// NewWarmer creates a new Warmer for the cache.
func NewWarmer(cache *TieredCache, logger log.FieldLogger) *Warmer {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Warmer{cache: cache, logger: logger}
}

// Warm loads entries from the loader and stores them in the cache, returning
// the number of entries stored. Failures are logged and skipped.
func (w *Warmer) Warm(ctx context.Context, loader WarmupLoader) int {
	entries, err := loader(ctx)
	if err != nil {
		w.logger.Error("cache warming loader failed", log.Error(err))
		return 0
	}

	warmed := 0
	for key, value := range entries {
		if err := w.cache.Put(ctx, key, value, 0); err != nil {
			w.logger.Warn("failed to warm cache entry",
				log.String("cache_key", key), log.Error(err))
			continue
		}
		warmed++
	}
	w.logger.Info("cache warmed", log.Int("count", warmed))
	return warmed
}
