package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"video_quiz_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

const qaCacheTTL = 24 * time.Hour

// QAAnswerCache 基于 Redis 的问答结果缓存
type QAAnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQAAnswerCache(rdb *redis.Client) *QAAnswerCache {
	return &QAAnswerCache{rdb: rdb, ttl: qaCacheTTL}
}

// Get 未命中返回 (nil, nil)
func (c *QAAnswerCache) Get(ctx context.Context, key string) (*model.ContextAnswer, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var answer model.ContextAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *QAAnswerCache) Set(ctx context.Context, key string, answer *model.ContextAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}
