package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Open returns the backend named by kind ("redis" or "postgres").
func Open(ctx context.Context, kind string, rdb redis.UniversalClient, dsn string) (Store, error) {
	switch kind {
	case "", "redis":
		return NewRedisStore(rdb), nil
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("settings: POSTGRES_DSN is required for the postgres backend")
		}
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("settings: unknown backend %q", kind)
	}
}
