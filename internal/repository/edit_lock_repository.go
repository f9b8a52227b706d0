package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EditLockRepository implements the advisory "a human is editing this" signal
// on Redis. Best effort: locks expire on their own, admins may force-release.
// Never a substitute for the expected-version assertion on writes.
type EditLockRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewEditLockRepository constructs the repository.
func NewEditLockRepository(client *redis.Client, logger *zap.Logger) *EditLockRepository {
	return &EditLockRepository{client: client, logger: logger}
}

func editLockKey(recordID string) string {
	return fmt.Sprintf("grade:editlock:%s", recordID)
}

// Acquire takes the advisory lock for actorID. When the lock is already held
// it returns the current holder and acquired=false; re-acquiring by the same
// holder refreshes the TTL.
func (r *EditLockRepository) Acquire(ctx context.Context, recordID, actorID string, ttl time.Duration) (acquired bool, holder string, err error) {
	if r.client == nil {
		return true, actorID, nil
	}
	key := editLockKey(recordID)
	ok, err := r.client.SetNX(ctx, key, actorID, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("acquire edit lock %s: %w", recordID, err)
	}
	if ok {
		return true, actorID, nil
	}
	current, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Lock expired between SETNX and GET; try once more.
		ok, err = r.client.SetNX(ctx, key, actorID, ttl).Result()
		if err != nil {
			return false, "", fmt.Errorf("acquire edit lock %s: %w", recordID, err)
		}
		return ok, actorID, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("inspect edit lock %s: %w", recordID, err)
	}
	if current == actorID {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			r.logger.Warn("refresh edit lock ttl failed", zap.String("record_id", recordID), zap.Error(err))
		}
		return true, actorID, nil
	}
	return false, current, nil
}

// Holder returns the actor currently holding the lock, empty when unheld.
func (r *EditLockRepository) Holder(ctx context.Context, recordID string) (string, error) {
	if r.client == nil {
		return "", nil
	}
	holder, err := r.client.Get(ctx, editLockKey(recordID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("inspect edit lock %s: %w", recordID, err)
	}
	return holder, nil
}

// Release drops the lock when held by actorID, or unconditionally with force.
// Releasing an unheld lock is a no-op.
func (r *EditLockRepository) Release(ctx context.Context, recordID, actorID string, force bool) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	key := editLockKey(recordID)
	if force {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("force release edit lock %s: %w", recordID, err)
		}
		return true, nil
	}
	holder, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect edit lock %s: %w", recordID, err)
	}
	if holder != actorID {
		return false, nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("release edit lock %s: %w", recordID, err)
	}
	return true, nil
}
