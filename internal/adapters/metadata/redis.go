package metadata

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/okian/skyrank/internal/domain/model"
)

const defaultPrefix = "meta"

// Redis reads metadata from hashes written by the profile service:
// <prefix>:player:<uuid> and <prefix>:profile:<uuid>. Member entries merge
// both hashes, profile fields winning on conflict.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// RedisOption configures a Redis provider.
type RedisOption func(*Redis)

// WithKeyPrefix sets the hash key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis creates a provider over client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup implements Provider with a single pipelined round trip.
func (r *Redis) Lookup(ctx context.Context, kind model.EntityKind, keys []string) (map[string]map[string]string, error) {
	if len(keys) == 0 {
		return map[string]map[string]string{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string][]*redis.MapStringStringCmd, len(keys))
	for _, k := range keys {
		if _, ok := cmds[k]; ok {
			continue
		}
		for _, hk := range r.hashKeys(kind, k) {
			cmds[k] = append(cmds[k], pipe.HGetAll(ctx, hk))
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		if failedAll(cmds) {
			return nil, fmt.Errorf("metadata.Lookup: %w: %w", ErrLookup, err)
		}
	}

	out := make(map[string]map[string]string, len(cmds))
	for k, list := range cmds {
		meta := map[string]string{}
		ok := true
		for _, cmd := range list {
			v, err := cmd.Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				ok = false
				break
			}
			maps.Copy(meta, v)
		}
		if ok {
			out[k] = meta
		}
	}
	return out, nil
}

// hashKeys returns the hashes holding metadata for an entity key.
func (r *Redis) hashKeys(kind model.EntityKind, key string) []string {
	if kind == model.KindMember {
		if player, profile, ok := strings.Cut(key, ":"); ok {
			return []string{
				r.prefix + ":player:" + player,
				r.prefix + ":profile:" + profile,
			}
		}
	}
	return []string{r.prefix + ":profile:" + key}
}

func failedAll(cmds map[string][]*redis.MapStringStringCmd) bool {
	for _, list := range cmds {
		for _, cmd := range list {
			if err := cmd.Err(); err == nil || errors.Is(err, redis.Nil) {
				return false
			}
		}
	}
	return true
}
