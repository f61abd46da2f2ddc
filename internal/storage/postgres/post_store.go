// Package postgres provides a Postgres-backed post store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gazette-watcher/internal/gazette"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "gazettepost"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for posts.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PostStore implements gazette.PostStore on a single Postgres table.
type PostStore struct {
	pool  pool
	table string
	idGen gazette.IDGenerator
	clock gazette.Clock
}

// NewPostStore connects to Postgres and creates the posts table if needed.
func NewPostStore(ctx context.Context, cfg Config, idGen gazette.IDGenerator, clock gazette.Clock) (*PostStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPostStoreWithPool(p, cfg.Table, idGen, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewPostStoreWithPool constructs a store from an existing pool.
func NewPostStoreWithPool(p pool, table string, idGen gazette.IDGenerator, clock gazette.Clock) (*PostStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostStore{pool: p, table: table, idGen: idGen, clock: clock}, nil
}

// EnsureSchema creates the posts table and its ordering index.
func (s *PostStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	notified BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at DESC, seq DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return unavailable("ensure schema", err)
		}
	}
	return nil
}

// ListExistingURLs returns the URL of every stored post.
func (s *PostStore) ListExistingURLs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT url FROM %s`, s.table))
	if err != nil {
		return nil, unavailable("list urls", err)
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list urls", err)
	}
	return urls, nil
}

// InsertIfNew stores listings whose URL is not yet known. Rows swallowed by
// the unique url constraint are not reported as inserted.
func (s *PostStore) InsertIfNew(ctx context.Context, listings []gazette.Listing) ([]gazette.Listing, error) {
	existing, err := s.ListExistingURLs(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, title, url, notified, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, $4, $4)
ON CONFLICT (url) DO NOTHING`, s.table)

	inserted := make([]gazette.Listing, 0, len(listings))
	for _, l := range listings {
		if _, ok := existing[l.URL]; ok {
			continue
		}
		id, err := s.idGen.NewID()
		if err != nil {
			return inserted, fmt.Errorf("generate post id: %w", err)
		}
		tag, err := s.pool.Exec(ctx, query, id, l.Title, l.URL, s.clock.Now())
		if err != nil {
			return inserted, unavailable("insert post", err)
		}
		existing[l.URL] = struct{}{}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, l)
		}
	}
	return inserted, nil
}

// ListUnnotified returns up to limit unnotified posts, newest first.
func (s *PostStore) ListUnnotified(ctx context.Context, limit int) ([]gazette.Post, error) {
	return s.list(ctx, "WHERE notified = FALSE", limit)
}

// ListPosts returns up to limit posts, newest first.
func (s *PostStore) ListPosts(ctx context.Context, limit int) ([]gazette.Post, error) {
	return s.list(ctx, "", limit)
}

func (s *PostStore) list(ctx context.Context, where string, limit int) ([]gazette.Post, error) {
	query := fmt.Sprintf(`SELECT id, title, url, notified, created_at, updated_at FROM %s`, s.table)
	if where != "" {
		query += " " + where
	}
	query += " ORDER BY created_at DESC, seq DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list posts", err)
	}
	defer rows.Close()

	posts := make([]gazette.Post, 0)
	for rows.Next() {
		var p gazette.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.URL, &p.Notified, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list posts", err)
	}
	return posts, nil
}

// MarkNotified flags a post as delivered.
func (s *PostStore) MarkNotified(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET notified = TRUE, updated_at = $2 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, s.clock.Now())
	if err != nil {
		return unavailable("mark notified", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %q not found", id)
	}
	return nil
}

// Close releases pool resources.
func (s *PostStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, gazette.ErrStorageUnavailable, err)
}
