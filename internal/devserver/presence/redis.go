package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey    = "chatline:online"
	connCountPrefix = "chatline:conns:"
)

// RedisTracker keeps the online set in Redis so several dev server instances
// agree on presence. Connection counts live in per-user keys; the online set
// holds the user IDs with a count above zero.
type RedisTracker struct {
	client *redis.Client
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func (t *RedisTracker) Connect(ctx context.Context, userID int64) (bool, error) {
	key := connCountPrefix + strconv.FormatInt(userID, 10)
	count, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr connection count: %w", err)
	}
	if err := t.client.SAdd(ctx, onlineSetKey, userID).Err(); err != nil {
		return false, fmt.Errorf("add to online set: %w", err)
	}
	return count == 1, nil
}

func (t *RedisTracker) Disconnect(ctx context.Context, userID int64) (bool, error) {
	key := connCountPrefix + strconv.FormatInt(userID, 10)
	count, err := t.client.Decr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("decr connection count: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	// Count reached zero (or below after a missed connect): clean up fully.
	pipe := t.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, onlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove from online set: %w", err)
	}
	return count == 0, nil
}

func (t *RedisTracker) Online(ctx context.Context) ([]int64, error) {
	members, err := t.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read online set: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
