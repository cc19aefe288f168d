package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prodscout/server/internal/agent/model"
	errx "github.com/prodscout/server/internal/core/error"
)

const productJSONField = "json"

// RedisProductStore keeps full product records as hashes keyed by SKU,
// next to the vector index the retriever searches.
type RedisProductStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisProductStore(rdb redis.Cmdable, prefix string) *RedisProductStore {
	return &RedisProductStore{rdb: rdb, prefix: prefix}
}

func (s *RedisProductStore) key(sku string) string {
	return s.prefix + sku
}

func (s *RedisProductStore) Put(ctx context.Context, p model.Product) error {
	if p.SKU == "" {
		return fmt.Errorf("product sku is required")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product %s: %w", p.SKU, err)
	}
	if err := s.rdb.HSet(ctx, s.key(p.SKU), productJSONField, b).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisProductStore) Get(ctx context.Context, sku string) (*model.Product, error) {
	raw, err := s.rdb.HGet(ctx, s.key(sku), productJSONField).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	var p model.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal product %s: %w", sku, err)
	}
	return &p, nil
}

var _ ProductStore = (*RedisProductStore)(nil)
