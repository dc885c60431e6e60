package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskboard-labs/taskboard/internal/platform/env"
)

// Config configures the Redis connection used for board snapshots and
// reorder de-duplication. An empty URL disables Redis.
type Config struct {
	URL       string
	BoardTTL  time.Duration
	DedupeTTL time.Duration
}

func ConfigFromEnv() (Config, error) {
	boardTTL, err := env.Duration("TASKBOARD_REDIS_BOARD_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	dedupeTTL, err := env.Duration("TASKBOARD_REDIS_DEDUPE_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:       strings.TrimSpace(env.String("TASKBOARD_REDIS_URL", "")),
		BoardTTL:  boardTTL,
		DedupeTTL: dedupeTTL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

func (c Config) Validate() error {
	if c.BoardTTL < 0 {
		return errors.New("TASKBOARD_REDIS_BOARD_TTL must be >= 0")
	}
	if c.DedupeTTL <= 0 {
		return errors.New("TASKBOARD_REDIS_DEDUPE_TTL must be positive")
	}
	return nil
}

// Options accepts either a redis:// URL or the "host:port,password=...,ssl=true"
// connection string form.
func Options(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("redis url is required")
	}
	if opts, err := redis.ParseURL(raw); err == nil {
		return opts, nil
	}
	parts := strings.Split(raw, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	return opts, nil
}

// NewClient returns nil when Redis is disabled.
func NewClient(cfg Config) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts, err := Options(cfg.URL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Ping(ctx).Err()
}
