// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ObservationCache 缓存每个会话最近一次的画面观察描述，
// 让 check-camera 工具调用无需回表即可取到最新观察。
// 缓存未命中时调用方回退到数据库查询。
type ObservationCache interface {
	SetLatest(ctx context.Context, conversationID uint, description string) error
	GetLatest(ctx context.Context, conversationID uint) (string, error)
}

type redisObservationCache struct {
	redisClient *redis.Client
}

// NewObservationCache 创建一个新的 ObservationCache 实例。
func NewObservationCache(redisClient *redis.Client) ObservationCache {
	return &redisObservationCache{redisClient: redisClient}
}

const observationTTL = 30 * time.Minute

// SetLatest 写入会话最近的画面观察描述。
func (c *redisObservationCache) SetLatest(ctx context.Context, conversationID uint, description string) error {
	key := fmt.Sprintf("conversation:%d:latest_observation", conversationID)
	if err := c.redisClient.Set(ctx, key, description, observationTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache observation: %w", err)
	}
	return nil
}

// GetLatest 读取会话最近的画面观察描述。未命中时返回 redis.Nil。
func (c *redisObservationCache) GetLatest(ctx context.Context, conversationID uint) (string, error) {
	key := fmt.Sprintf("conversation:%d:latest_observation", conversationID)
	desc, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		return "", err
	}
	return desc, nil
}
