package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const usersSetKey = "users"

func userKey(id int64) string { return fmt.Sprintf("user:%d", id) }

// RedisStore keeps each user as a hash at user:<id> and the id in the users set.
type RedisStore struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Ensure(ctx context.Context, user int64) (bool, error) {
	key := userKey(user)
	created, err := s.rdb.HSetNX(ctx, key, "created_at", strconv.FormatInt(s.now().Unix(), 10)).Result()
	if err != nil {
		return false, fmt.Errorf("settings ensure %d: %w", user, err)
	}
	if created {
		pipe := s.rdb.TxPipeline()
		pipe.HSetNX(ctx, key, string(FieldUploadType), string(DefaultUploadType))
		pipe.SAdd(ctx, usersSetKey, user)
		if _, err := pipe.Exec(ctx); err != nil {
			return true, fmt.Errorf("settings ensure %d: %w", user, err)
		}
	}
	return created, nil
}

func (s *RedisStore) Get(ctx context.Context, user int64) (Settings, error) {
	m, err := s.rdb.HGetAll(ctx, userKey(user)).Result()
	if err != nil {
		return Settings{}, fmt.Errorf("settings get %d: %w", user, err)
	}
	if len(m) == 0 {
		return Defaults(user), ErrNotFound
	}
	out := Defaults(user)
	for k, v := range m {
		if k == "created_at" {
			if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
				out.CreatedAt = time.Unix(sec, 0).UTC()
			}
			continue
		}
		out.apply(k, v)
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, user int64, f Field, value string) error {
	if err := checkField(f, value); err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, userKey(user), string(f), value).Err(); err != nil {
		return fmt.Errorf("settings set %d %s: %w", user, f, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, user int64, f Field) error {
	if err := checkField(f, string(DefaultUploadType)); err != nil {
		return err
	}
	if err := s.rdb.HDel(ctx, userKey(user), string(f)).Err(); err != nil {
		return fmt.Errorf("settings clear %d %s: %w", user, f, err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, usersSetKey).Result()
}

func (s *RedisStore) Delete(ctx context.Context, user int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, userKey(user))
	pipe.SRem(ctx, usersSetKey, user)
	_, err := pipe.Exec(ctx)
	return err
}

// Close is a no-op; the redis client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
