package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs presence with a shared TTL store so multiple gateway
// instances see one view. Staleness is delegated to key expiry.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	staleAfter time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, staleAfter time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "msgcore"
	}
	return &RedisStore{client: client, prefix: prefix, staleAfter: staleAfter}
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.UserID), b, s.staleAfter).Err()
}

func (s *RedisStore) Remove(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

func (s *RedisStore) Online(ctx context.Context) ([]Record, error) {
	var out []Record
	iter := s.client.Scan(ctx, 0, s.prefix+":presence:*", 200).Iterator()
	for iter.Next(ctx) {
		b, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		if rec.Status == StatusOffline {
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
