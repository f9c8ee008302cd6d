/*
Copyright © 2025 Cloudward B.V.

Released under MIT license.
*/

package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/acronis/go-appkit/log"
)

// scanBatchSize is the COUNT hint for keyspace scans during invalidation.
const scanBatchSize = 100

// Invalidate removes all entries matching pattern from both tiers and
// returns how many were removed from the shared tier. An exact key (no
// wildcards) is deleted directly; wildcard patterns are resolved with an
// incremental keyspace scan, so a large match set never blocks the store.
func (c *TieredCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	if scope := RequestScopeFromContext(ctx); scope != nil {
		scope.DeleteByPattern(pattern)
	}

	if !strings.ContainsAny(pattern, "*?") {
		removed, err := c.store.Delete(ctx, c.keyNamespace+pattern)
		if err != nil {
			return 0, fmt.Errorf("invalidate cache key %q: %w", pattern, err)
		}
		c.metrics.AddInvalidatedEntries(int(removed))
		return int(removed), nil
	}

	// Deleting keys mid-scan shifts positional cursors and skips matches,
	// so the scan runs to completion before any deletes are issued.
	var matched []string
	var cursor uint64
	for {
		keys, next, err := c.store.Scan(ctx, cursor, c.keyNamespace+pattern, scanBatchSize)
		if err != nil {
			return 0, fmt.Errorf("scan cache keys %q: %w", pattern, err)
		}
		matched = append(matched, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}

	removed := 0
	for len(matched) > 0 {
		batch := matched
		if len(batch) > scanBatchSize {
			batch = batch[:scanBatchSize]
		}
		matched = matched[len(batch):]
		deleted, err := c.store.Delete(ctx, batch...)
		if err != nil {
			return removed, fmt.Errorf("delete cache keys %q: %w", pattern, err)
		}
		removed += int(deleted)
	}

	if removed > 0 {
		c.logger.Info("invalidated cache entries",
			log.String("cache_pattern", pattern), log.Int("count", removed))
	}
	c.metrics.AddInvalidatedEntries(removed)
	return removed, nil
}

// InvalidateResource removes all entries related to a resource. It is meant
// to be called when the resource is modified. An empty resourceID widens the
// invalidation to every entry of the resource type.
func (c *TieredCache) InvalidateResource(ctx context.Context, resourceType, resourceID string) (int, error) {
	patterns := []string{
		resourceType + ":*",
		"*:" + resourceType + ":*",
	}
	if resourceID != "" {
		patterns = append(patterns, resourceType+":"+resourceID+":*")
	}

	removed := 0
	for _, pattern := range patterns {
		n, err := c.Invalidate(ctx, pattern)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}
