package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/strengthstats/rankengine/internal/ranking/updates"

	"github.com/go-redis/redis/v8"
)

// UpdatesChannel is the redis pub/sub channel carrying percentile update
// notifications for downstream consumers (leaderboard refreshers, websocket
// fan-out, cache invalidators).
const UpdatesChannel = "rankengine:percentile_updated"

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, update updates.Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := p.rdb.Publish(ctx, UpdatesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}
