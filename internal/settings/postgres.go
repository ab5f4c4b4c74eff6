package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS metanix`,
	`CREATE TABLE IF NOT EXISTS metanix.users (
		id BIGINT PRIMARY KEY,
		doc JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	)`,
}

// PostgresStore keeps one JSONB document per user in metanix.users.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

func (s *PostgresStore) Ensure(ctx context.Context, user int64) (bool, error) {
	doc, _ := json.Marshal(map[string]string{string(FieldUploadType): string(DefaultUploadType)})
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO metanix.users (id, doc) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING`,
		user, string(doc))
	if err != nil {
		return false, fmt.Errorf("settings ensure %d: %w", user, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, user int64) (Settings, error) {
	var raw []byte
	out := Defaults(user)
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at FROM metanix.users WHERE id = $1`, user).
		Scan(&raw, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(user), ErrNotFound
	}
	if err != nil {
		return Defaults(user), fmt.Errorf("settings get %d: %w", user, err)
	}

	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Defaults(user), fmt.Errorf("settings get %d: decode: %w", user, err)
	}
	for k, v := range doc {
		out.apply(k, v)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

func (s *PostgresStore) Set(ctx context.Context, user int64, f Field, value string) error {
	if err := checkField(f, value); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metanix.users (id, doc) VALUES ($1, jsonb_build_object($2::text, $3::text))
		ON CONFLICT (id) DO UPDATE SET doc = metanix.users.doc || EXCLUDED.doc`,
		user, string(f), value)
	if err != nil {
		return fmt.Errorf("settings set %d %s: %w", user, f, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, user int64, f Field) error {
	if err := checkField(f, string(DefaultUploadType)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE metanix.users SET doc = doc - $2::text WHERE id = $1`, user, string(f))
	if err != nil {
		return fmt.Errorf("settings clear %d %s: %w", user, f, err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM metanix.users`).Scan(&n)
	return n, err
}

func (s *PostgresStore) Delete(ctx context.Context, user int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metanix.users WHERE id = $1`, user)
	return err
}

func (s *PostgresStore) Close() error { return s.db.Close() }
