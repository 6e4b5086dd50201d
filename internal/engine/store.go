package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrStoreMiss is returned by TranscriptStore.Get when no fresh entry exists.
var ErrStoreMiss = errors.New("transcript store: miss")

// TranscriptStore persists pipeline results keyed by video id and requested language.
type TranscriptStore interface {
	Get(ctx context.Context, videoID, lang string) (*TranscriptResult, error)
	Put(ctx context.Context, videoID, lang string, r *TranscriptResult) error
	Close() error
}

// OpenTranscriptStore picks Postgres when databaseURL is set, SQLite when dbPath is set,
// and returns (nil, nil) when neither is configured.
func OpenTranscriptStore(ctx context.Context, databaseURL, dbPath string, ttl time.Duration) (TranscriptStore, error) {
	switch {
	case databaseURL != "":
		return OpenPGStore(ctx, databaseURL, ttl)
	case dbPath != "":
		return OpenSQLiteStore(dbPath, ttl)
	default:
		return nil, nil
	}
}

// storeKey normalises the language half of the key.
func storeKey(videoID, lang string) (string, string) {
	return videoID, strings.ToLower(NormLang(lang))
}

func encodeSegments(r *TranscriptResult) ([]byte, error) {
	data, err := json.Marshal(r.Segments)
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	return data, nil
}

func decodeResult(segments []byte, language string) (*TranscriptResult, error) {
	var segs []Segment
	if err := json.Unmarshal(segments, &segs); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	return &TranscriptResult{Segments: segs, Language: language}, nil
}

// CachedFetcher consults a TranscriptStore before running the pipeline and stores
// successful results. A nil store degrades to the bare pipeline.
type CachedFetcher struct {
	pipeline *Pipeline
	store    TranscriptStore
}

// NewCachedFetcher wraps p with store. store may be nil.
func NewCachedFetcher(p *Pipeline, store TranscriptStore) *CachedFetcher {
	return &CachedFetcher{pipeline: p, store: store}
}

// Fetch returns a stored transcript when fresh, otherwise runs the pipeline.
// Store failures are logged and never fail the request.
func (f *CachedFetcher) Fetch(ctx context.Context, videoID, lang string, maxAttempts int) (TranscriptResult, error) {
	lang = NormLang(lang)
	if f.store != nil {
		r, err := f.store.Get(ctx, videoID, lang)
		if err == nil {
			IncrTranscriptStoreHits()
			slog.Debug("transcript: store hit", slog.String("id", videoID), slog.String("lang", lang))
			return *r, nil
		}
		if !errors.Is(err, ErrStoreMiss) {
			slog.Warn("transcript: store get failed", slog.String("id", videoID), slog.Any("error", err))
		}
	}

	r, err := f.pipeline.Fetch(ctx, videoID, lang, maxAttempts)
	if err != nil {
		return TranscriptResult{}, err
	}
	// A fallback-language result is not stored, so a later translation can still be served.
	if f.store != nil && strings.EqualFold(r.Language, lang) {
		if err := f.store.Put(ctx, videoID, lang, &r); err != nil {
			slog.Warn("transcript: store put failed", slog.String("id", videoID), slog.Any("error", err))
		}
	}
	return r, nil
}

// MaxAttempts exposes the wrapped pipeline's default bound.
func (f *CachedFetcher) MaxAttempts() int { return f.pipeline.MaxAttempts() }
