// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache for rendered tree query results
// (the forest and per-category trees). Every key embeds the current tree
// generation; a mutation bumps the generation, which orphans every entry
// written before it. Orphans age out through the TTL.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"taxonomy/internal/metrics"
)

const (
	// treeKeyPrefix is the Valkey key prefix for cached tree results.
	treeKeyPrefix = "tree:"

	// generationKey holds the counter bumped on every tree mutation.
	generationKey = treeKeyPrefix + "generation"

	// DefaultTreeTTL is how long a cached result stays around.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache caches tree query results in Valkey.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// generation returns the current tree generation. A missing counter is
// generation zero.
func (tc *TreeCache) generation(ctx context.Context) (int64, error) {
	gen, err := tc.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (tc *TreeCache) key(gen int64, key string) string {
	return treeKeyPrefix + strconv.FormatInt(gen, 10) + ":" + key
}

// Get retrieves a cached result together with the generation it was looked
// up under. Pass that generation to Set when storing a freshly computed
// result, so a mutation committed in between orphans the write instead of
// labelling stale data as current. Errors count as misses; a negative
// generation means it could not be read and Set will skip the write.
func (tc *TreeCache) Get(ctx context.Context, key string) ([]byte, int64, bool) {
	gen, err := tc.generation(ctx)
	if err != nil {
		slog.Warn("tree cache generation error", "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, -1, false
	}

	val, err := tc.client.Get(ctx, tc.key(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, gen, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, gen, false
	}
	slog.Debug("tree cache hit", "key", key, "generation", gen)
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return val, gen, true
}

// Set stores a result under generation gen with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, gen int64, key string, data []byte) {
	if gen < 0 {
		return
	}
	if err := tc.client.Set(ctx, tc.key(gen, key), data, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "key", key, "error", err)
	}
}

// Invalidate bumps the tree generation so no earlier entry is served again.
func (tc *TreeCache) Invalidate(ctx context.Context) {
	gen, err := tc.client.Incr(ctx, generationKey).Result()
	if err != nil {
		slog.Warn("tree cache invalidate error", "error", err)
		return
	}
	slog.Debug("tree cache invalidated", "generation", gen)
}

// Purge deletes every cached tree result. The generation counter survives,
// so a reader still holding an older generation keeps writing orphans.
func (tc *TreeCache) Purge(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := tc.client.Scan(ctx, cursor, treeKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("tree cache scan error", "error", err)
			return
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return k == generationKey })
		if len(keys) > 0 {
			if err := tc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("tree cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("tree cache purged", "deleted", deleted)
	}
}
