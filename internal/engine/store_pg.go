package engine

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// PGStore is a Postgres-backed TranscriptStore shared by several service replicas.
type PGStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// OpenPGStore creates a pgx pool and runs schema migrations.
func OpenPGStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PGStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PGStore{pool: pool, ttl: ttl}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("transcript store: postgres connected", slog.String("addr", config.ConnConfig.Host))
	return s, nil
}

func (s *PGStore) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, e := range entries {
		data, err := schemaFS.ReadFile("schema/" + e.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, videoID, lang string) (*TranscriptResult, error) {
	id, l := storeKey(videoID, lang)
	var (
		language  string
		segments  []byte
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT language, segments, created_at FROM yt_transcripts WHERE video_id = $1 AND req_lang = $2`,
		id, l,
	).Scan(&language, &segments, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStoreMiss
	}
	if err != nil {
		return nil, fmt.Errorf("transcript store: get: %w", err)
	}
	if s.ttl > 0 && time.Since(createdAt) > s.ttl {
		return nil, ErrStoreMiss
	}
	return decodeResult(segments, language)
}

func (s *PGStore) Put(ctx context.Context, videoID, lang string, r *TranscriptResult) error {
	data, err := encodeSegments(r)
	if err != nil {
		return err
	}
	id, l := storeKey(videoID, lang)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO yt_transcripts (video_id, req_lang, language, segments, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (video_id, req_lang) DO UPDATE SET
		   language = EXCLUDED.language, segments = EXCLUDED.segments, created_at = EXCLUDED.created_at`,
		id, l, r.Language, data,
	)
	if err != nil {
		return fmt.Errorf("transcript store: put: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
