package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/ports/repository"

	goredis "github.com/go-redis/redis/v8"
)

var _ repository.CheckpointRepository = (*CheckpointRepo)(nil)

// CheckpointRepo stores per-job session checkpoints so an interrupted run
// can resume a still-live remote session instead of starting over.
type CheckpointRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewCheckpointRepo(client RedisClient, ttl time.Duration) repository.CheckpointRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CheckpointRepo{client: client, ttl: ttl}
}

func (r *CheckpointRepo) key(jobID string) string {
	return fmt.Sprintf("review_checkpoint:%s", jobID)
}

func (r *CheckpointRepo) Save(ctx context.Context, jobID string, cp *repository.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(jobID), data, r.ttl)
}

func (r *CheckpointRepo) Find(ctx context.Context, jobID string) (*repository.Checkpoint, error) {
	data, err := r.client.Get(ctx, r.key(jobID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var cp repository.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (r *CheckpointRepo) Clear(ctx context.Context, jobID string) error {
	return r.client.Del(ctx, r.key(jobID))
}
