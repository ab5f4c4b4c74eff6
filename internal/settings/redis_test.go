package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb)
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	if _, err := s.Get(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}

	created, err := s.Ensure(ctx, 5)
	if err != nil || !created {
		t.Fatalf("Ensure() = %v, %v, want created", created, err)
	}
	created, err = s.Ensure(ctx, 5)
	if err != nil || created {
		t.Fatalf("second Ensure() = %v, %v, want existing", created, err)
	}

	got, err := s.Get(ctx, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UploadType != UploadDocument || !got.CreatedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("fresh user = %+v", got)
	}

	for f, v := range map[Field]string{
		FieldCaption:    "{filename}",
		FieldPrefix:     "[x] ",
		FieldSuffix:     " y",
		FieldThumbnail:  "AgACthumb",
		FieldUploadType: "video",
	} {
		if err := s.Set(ctx, 5, f, v); err != nil {
			t.Fatalf("Set(%s): %v", f, err)
		}
	}
	if err := s.Set(ctx, 5, FieldCaption, "{filename} v2"); err != nil {
		t.Fatal(err)
	}

	got, _ = s.Get(ctx, 5)
	want := Settings{
		UserID: 5, Thumbnail: "AgACthumb", Caption: "{filename} v2",
		Prefix: "[x] ", Suffix: " y", UploadType: UploadVideo,
		CreatedAt: got.CreatedAt,
	}
	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}

	if err := s.Clear(ctx, 5, FieldThumbnail); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, 5, FieldUploadType); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, 5)
	if got.Thumbnail != "" || got.UploadType != DefaultUploadType {
		t.Errorf("after Clear = %+v", got)
	}

	if _, err := s.Ensure(ctx, 6); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if err := s.Delete(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() after delete = %d, want 1", n)
	}
	if _, err := s.Get(ctx, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) = %v", err)
	}
}

func TestRedisStoreRejectsBadWrites(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	if err := s.Set(ctx, 1, FieldUploadType, "gif"); !errors.Is(err, ErrBadValue) {
		t.Errorf("Set(gif) = %v", err)
	}
	if err := s.Clear(ctx, 1, "remname"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Clear(remname) = %v", err)
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	if st, err := Open(ctx, "redis", nil, ""); err != nil || st == nil {
		t.Errorf("Open(redis) = %v, %v", st, err)
	}
	if _, err := Open(ctx, "postgres", nil, ""); err == nil {
		t.Error("Open(postgres) without DSN succeeded")
	}
	if _, err := Open(ctx, "mongo", nil, ""); err == nil {
		t.Error("Open(mongo) succeeded")
	}
}
