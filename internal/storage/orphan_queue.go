package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultOrphanKey is the Redis set holding photo keys whose deletion failed
const DefaultOrphanKey = "fotoljay:orphan-photos"

// OrphanQueue remembers photo objects that outlived their listing so a cleanup
// pass can retry the deletion later.
type OrphanQueue interface {
	Push(ctx context.Context, keys ...string) error
	Pop(ctx context.Context, n int) ([]string, error)
	Len(ctx context.Context) (int64, error)
}

type redisOrphanQueue struct {
	client *redis.Client
	key    string
}

// NewRedisOrphanQueue stores orphan keys in a Redis set so duplicates collapse
func NewRedisOrphanQueue(client *redis.Client, key string) OrphanQueue {
	if key == "" {
		key = DefaultOrphanKey
	}
	return &redisOrphanQueue{client: client, key: key}
}

func (q *redisOrphanQueue) Push(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := q.client.SAdd(ctx, q.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to queue orphan photos: %w", err)
	}
	return nil
}

func (q *redisOrphanQueue) Pop(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	keys, err := q.client.SPopN(ctx, q.key, int64(n)).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to pop orphan photos: %w", err)
	}
	return keys, nil
}

func (q *redisOrphanQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.SCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count orphan photos: %w", err)
	}
	return n, nil
}

type memoryOrphanQueue struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryOrphanQueue is the in-process fallback used without Redis
func NewMemoryOrphanQueue() OrphanQueue {
	return &memoryOrphanQueue{keys: make(map[string]struct{})}
}

func (q *memoryOrphanQueue) Push(ctx context.Context, keys ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, k := range keys {
		q.keys[k] = struct{}{}
	}
	return nil
}

func (q *memoryOrphanQueue) Pop(ctx context.Context, n int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	popped := []string{}
	for k := range q.keys {
		if len(popped) >= n {
			break
		}
		popped = append(popped, k)
		delete(q.keys, k)
	}
	return popped, nil
}

func (q *memoryOrphanQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.keys)), nil
}
