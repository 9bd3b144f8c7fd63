package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/config"
	"github.com/invoscore/backend/pkg/logger"
	"github.com/invoscore/backend/pkg/utils"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", cfg.Addr))

	return &Client{client: client, ttl: cfg.CacheTTL}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Raw exposes the underlying connection for the event publisher.
func (c *Client) Raw() *redis.Client {
	return c.client
}

func assessmentKey(buyerID, tenantID string) string {
	return utils.CacheKey("assessment", tenantID, buyerID)
}

func (c *Client) GetLatest(ctx context.Context, buyerID, tenantID string) (*models.Assessment, bool) {
	data, err := c.client.Get(ctx, assessmentKey(buyerID, tenantID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Failed to read assessment cache", zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, false
	}

	var a models.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		logger.Warn("Failed to decode cached assessment", zap.String("buyer_id", buyerID), zap.Error(err))
		return nil, false
	}

	logger.Debug("Assessment cache hit", zap.String("buyer_id", buyerID))
	return &a, true
}

func (c *Client) SetLatest(ctx context.Context, a *models.Assessment) {
	data, err := json.Marshal(a)
	if err != nil {
		logger.Warn("Failed to encode assessment for cache", zap.String("buyer_id", a.BuyerID), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, assessmentKey(a.BuyerID, a.TenantID), data, c.ttl).Err(); err != nil {
		logger.Warn("Failed to cache assessment", zap.String("buyer_id", a.BuyerID), zap.Error(err))
		return
	}

	logger.Debug("Assessment cached", zap.String("buyer_id", a.BuyerID), zap.Duration("ttl", c.ttl))
}

func (c *Client) Invalidate(ctx context.Context, buyerID, tenantID string) {
	if err := c.client.Del(ctx, assessmentKey(buyerID, tenantID)).Err(); err != nil {
		logger.Warn("Failed to invalidate assessment cache", zap.String("buyer_id", buyerID), zap.Error(err))
	}
}
