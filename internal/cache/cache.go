// Package cache is a redis-backed cache-aside layer for public product reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avdonin/marketplace/internal/models"
)

const defaultTTL = 5 * time.Minute

type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{client: client, ttl: defaultTTL}
}

func key(id uint) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *ProductCache) GetProduct(ctx context.Context, id uint) (*models.Product, bool) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) SetProduct(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache: marshal product %d: %w", p.ID, err)
	}
	return c.client.Set(ctx, key(p.ID), data, c.ttl).Err()
}

func (c *ProductCache) InvalidateProduct(ctx context.Context, id uint) error {
	return c.client.Del(ctx, key(id)).Err()
}
