// Package redis implements the access-token denylist on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

// Denylist stores revoked tokens as `<prefix>:denylist:<sha256>` keys with a
// TTL matching the token's remaining lifetime.
type Denylist struct {
	client *goredis.Client
	prefix string
	logger *common.Logger
}

var _ interfaces.Denylist = (*Denylist)(nil)

// NewDenylist connects to Redis and verifies the connection with PING.
func NewDenylist(ctx context.Context, logger *common.Logger, cfg common.RedisConfig) (*Denylist, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	logger.Info().Str("address", cfg.Address).Int("db", cfg.DB).Msg("Redis denylist connected")
	return NewDenylistWithClient(client, cfg.Prefix, logger), nil
}

// NewDenylistWithClient wraps an existing client.
func NewDenylistWithClient(client *goredis.Client, prefix string, logger *common.Logger) *Denylist {
	if prefix == "" {
		prefix = "gatekeep"
	}
	return &Denylist{client: client, prefix: prefix, logger: logger}
}

func (d *Denylist) key(token string) string {
	return d.prefix + ":denylist:" + tokens.Hash(token)
}

// Add denylists token for ttl. A non-positive ttl means the token has already
// expired and is ignored.
func (d *Denylist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to denylist token: %w", err)
	}
	return nil
}

func (d *Denylist) Contains(ctx context.Context, token string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check denylist: %w", err)
	}
	return n > 0, nil
}

func (d *Denylist) Close() error {
	return d.client.Close()
}
