// Package boardcache keeps rendered board snapshots and processed reorder
// keys in Redis. A nil client disables both.
package boardcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/metrics"
)

// storeIfCurrent writes the snapshot only while the project version still
// matches the one read before the board was loaded.
var storeIfCurrent = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if (v or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// Cache stores board snapshots per project. Every eviction bumps a version
// counter so a snapshot read before a write can not be stored after it.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{redis: client, ttl: ttl}
}

// Load returns the cached board of projectID. Redis failures and corrupt
// entries count as misses.
func (c *Cache) Load(ctx context.Context, projectID string) (domain.Board, bool) {
	if c == nil || c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, boardKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.BoardCache.WithLabelValues("miss").Inc()
		} else {
			metrics.BoardCache.WithLabelValues("error").Inc()
			_ = c.redis.Del(ctx, boardKey(projectID)).Err()
		}
		return domain.Board{}, false
	}
	var board domain.Board
	if err := json.Unmarshal(data, &board); err != nil {
		metrics.BoardCache.WithLabelValues("error").Inc()
		_ = c.redis.Del(ctx, boardKey(projectID)).Err()
		return domain.Board{}, false
	}
	metrics.BoardCache.WithLabelValues("hit").Inc()
	return board, true
}

// Version returns the eviction counter of projectID. ok is false when the
// cache is disabled or Redis is unreachable; callers must then skip Store.
func (c *Cache) Version(ctx context.Context, projectID string) (int64, bool) {
	if c == nil || c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	v, err := c.redis.Get(ctx, versionKey(projectID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		metrics.BoardCache.WithLabelValues("error").Inc()
		return 0, false
	}
	return v, true
}

// Store caches board unless the project was evicted after version was read.
func (c *Cache) Store(ctx context.Context, board domain.Board, version int64) {
	if c == nil || c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		metrics.BoardCache.WithLabelValues("error").Inc()
		return
	}
	keys := []string{versionKey(board.ProjectID), boardKey(board.ProjectID)}
	stored, err := storeIfCurrent.Run(ctx, c.redis, keys,
		strconv.FormatInt(version, 10), data, c.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		metrics.BoardCache.WithLabelValues("error").Inc()
	case stored == 0:
		metrics.BoardCache.WithLabelValues("stale").Inc()
	}
}

// Evict drops the snapshots of the given projects and bumps their versions.
func (c *Cache) Evict(ctx context.Context, projectIDs ...string) error {
	if c == nil || c.redis == nil || len(projectIDs) == 0 {
		return nil
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range projectIDs {
			pipe.Incr(ctx, versionKey(id))
			pipe.Del(ctx, boardKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict boards: %w", err)
	}
	return nil
}

func boardKey(projectID string) string {
	return "taskboard:board:" + projectID
}

func versionKey(projectID string) string {
	return "taskboard:board-version:" + projectID
}

// claimKey stores digest under a fresh key, or returns the digest already
// stored there.
var claimKey = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	return cur
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return false
`)

// Deduper records processed idempotency keys so a retried request is applied
// once across all instances. Each key remembers the digest of the payload it
// was first used with.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

func (d *Deduper) key(scope, key string) string {
	return fmt.Sprintf("taskboard:idem:%s:%s", scope, key)
}

// Add records key with digest and reports whether it was new. For a known
// key it returns the digest stored with it. Without Redis every key is new.
func (d *Deduper) Add(ctx context.Context, scope, key, digest string) (string, bool, error) {
	if d == nil || d.client == nil {
		return "", true, nil
	}
	prior, err := claimKey.Run(ctx, d.client, []string{d.key(scope, key)}, digest, d.ttl.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	return prior, false, nil
}

// Remove forgets key so a failed request may be retried.
func (d *Deduper) Remove(ctx context.Context, scope, key string) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Del(ctx, d.key(scope, key)).Err()
}
