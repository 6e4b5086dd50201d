package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed TranscriptStore.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLiteStore opens (or creates) the database at path. ttl <= 0 means entries never expire.
func OpenSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("transcript store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS transcripts (
		video_id   TEXT NOT NULL,
		req_lang   TEXT NOT NULL,
		language   TEXT NOT NULL,
		segments   BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (video_id, req_lang)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript store: init schema: %w", err)
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, videoID, lang string) (*TranscriptResult, error) {
	id, l := storeKey(videoID, lang)
	var (
		language  string
		segments  []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT language, segments, created_at FROM transcripts WHERE video_id = ? AND req_lang = ?`,
		id, l,
	).Scan(&language, &segments, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreMiss
	}
	if err != nil {
		return nil, fmt.Errorf("transcript store: get: %w", err)
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(createdAt, 0)) > s.ttl {
		return nil, ErrStoreMiss
	}
	return decodeResult(segments, language)
}

func (s *SQLiteStore) Put(ctx context.Context, videoID, lang string, r *TranscriptResult) error {
	data, err := encodeSegments(r)
	if err != nil {
		return err
	}
	id, l := storeKey(videoID, lang)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (video_id, req_lang, language, segments, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (video_id, req_lang) DO UPDATE SET
		   language = excluded.language, segments = excluded.segments, created_at = excluded.created_at`,
		id, l, r.Language, data, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("transcript store: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
