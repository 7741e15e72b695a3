package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "dialogue:session:"

// RedisStore keeps sessions as JSON strings with a TTL so abandoned calls
// expire on their own.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("dialogue: redis client cannot be nil")
	}
	return &RedisStore{rdb: rdb}
}

func sessionKey(callID string) string {
	return sessionKeyPrefix + callID
}

func (s *RedisStore) Get(ctx context.Context, callID string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dialogue: get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("dialogue: unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("dialogue: session call_id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("dialogue: marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.CallID), data, ttl).Err(); err != nil {
		return fmt.Errorf("dialogue: put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	if err := s.rdb.Del(ctx, sessionKey(callID)).Err(); err != nil {
		return fmt.Errorf("dialogue: delete session: %w", err)
	}
	return nil
}
