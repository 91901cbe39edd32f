package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
)

// StatusCache mirrors live run state into Redis so status polls and multiple
// frontends never touch the controller's mutable state.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(cfg config.RedisConfig) *StatusCache {
	return &StatusCache{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: 24 * time.Hour,
	}
}

func (c *StatusCache) Close() error { return c.client.Close() }

func statusKey(sessionID string) string { return "greencoach:session:" + sessionID }

// SetStatus stores a snapshot of the run for status polling.
func (c *StatusCache) SetStatus(ctx context.Context, run core.PipelineRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKey(run.Config.SessionID), b, c.ttl).Err()
}

// GetStatus fetches the last stored snapshot. The bool reports presence.
func (c *StatusCache) GetStatus(ctx context.Context, sessionID string) (core.PipelineRun, bool, error) {
	b, err := c.client.Get(ctx, statusKey(sessionID)).Bytes()
	if err == redis.Nil {
		return core.PipelineRun{}, false, nil
	}
	if err != nil {
		return core.PipelineRun{}, false, err
	}
	var run core.PipelineRun
	if err := json.Unmarshal(b, &run); err != nil {
		return core.PipelineRun{}, false, err
	}
	return run, true, nil
}

// AcquireLock takes a best-effort distributed lock; used by the retention
// pruner so only one instance prunes per window.
func (c *StatusCache) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "greencoach:lock:"+name, time.Now().Format(time.RFC3339), ttl).Result()
}
