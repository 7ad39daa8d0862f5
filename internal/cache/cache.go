package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	catalogKey        = "catalog:products"
	notificationKeyFn = "webhook:seen:%s"
)

// Client is a thin Redis wrapper: a TTL read cache for the product catalog
// and a best-effort replay marker for gateway notifications. Neither is a
// correctness mechanism; the store's transactions and the guarded status
// transition remain authoritative.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string, db int, catalogTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: catalogTTL}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProducts returns the cached catalog, or ok=false on a miss or any
// Redis error.
func (c *Client) GetProducts(ctx context.Context) ([]models.Product, bool) {
	data, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if err != nil {
		return nil, false
	}
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false
	}
	return products, true
}

// SetProducts caches the catalog with the configured TTL.
func (c *Client) SetProducts(ctx context.Context, products []models.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, catalogKey, data, c.ttl).Err()
}

// InvalidateProducts drops the cached catalog, e.g. after an administrative
// stock override.
func (c *Client) InvalidateProducts(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}

// MarkNotificationSeen records a gateway transaction id and reports whether
// this delivery was the first. Used only as a fast path to skip work on
// obvious replays.
func (c *Client) MarkNotificationSeen(ctx context.Context, txnID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(notificationKeyFn, txnID)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}
