package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cilliemalan/microratchet-go/configs"
)

// RedisStore is a SessionStore backed by a shared redis.Client, the same
// client the demo server already holds open for its offline-message
// queue. Session blobs are stored as plain strings under
// configs.ClientRatchetKey, keyed by sessionID.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) key(sessionID string) string {
	return fmt.Sprintf(configs.ClientRatchetKey, sessionID, "state")
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, data []byte) error {
	return r.client.Set(ctx, r.key(sessionID), data, 0).Err()
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
