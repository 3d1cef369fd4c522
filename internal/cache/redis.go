package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// generationTTL outlives any cached line list so a generation cannot reset
// while lines read under it are still stored.
const generationTTL = 24 * time.Hour

var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []domain.CartLine
	if err2 := json.Unmarshal(data, &lines); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart lines failed: %w", err2)
	}
	return lines, nil
}

func (r *RedisCache) Generation(ctx context.Context, cartID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(cartID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) Set(ctx context.Context, cartID string, generation int64, lines []domain.CartLine) error {
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart lines failed: %w", err)
	}

	// jitter spreads expirations of carts cached at the same moment
	ttl := r.baseTTL + time.Duration(rand.IntN(5))*time.Minute
	stored, err := setIfGeneration.Run(ctx, r.client,
		[]string{cacheKey(cartID), generationKey(cartID)},
		strconv.FormatInt(generation, 10), payload, int64(ttl/time.Second),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrGenerationChanged
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, cartIDs ...string) error {
	if len(cartIDs) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range cartIDs {
			pipe.Del(ctx, cacheKey(id))
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Both keys of a cart share a hash tag so the script runs on one slot.
func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:{%s}:lines", cartID)
}

func generationKey(cartID string) string {
	return fmt.Sprintf("cart:{%s}:gen", cartID)
}
