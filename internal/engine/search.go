package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Search with cursor pagination: one provider call per query, then every page is
// served from the cached batch until the session expires or is evicted.

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100

	// MaxCursorOffset bounds decoded cursor offsets, far above any batch size.
	MaxCursorOffset = 1 << 20
)

// SearchService runs searches and pages through cached sessions.
type SearchService struct {
	platform  VideoPlatform
	cache     *SessionCache
	pool      *Pool
	batchSize int
}

// NewSearchService wires a platform and cache. pool may be nil.
func NewSearchService(platform VideoPlatform, cache *SessionCache, pool *Pool, batchSize int) *SearchService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &SearchService{platform: platform, cache: cache, pool: pool, batchSize: batchSize}
}

// Search serves either a fresh query or a cursor. Exactly one must be set.
func (s *SearchService) Search(ctx context.Context, query, cursor string, limit int) (Page, error) {
	query = strings.TrimSpace(query)
	cursor = strings.TrimSpace(cursor)
	switch {
	case cursor != "" && query == "":
		id, offset, err := DecodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		return s.Page(ctx, id, offset, limit)
	case query != "" && cursor == "":
		session, err := s.Start(ctx, query)
		if err != nil {
			return Page{}, err
		}
		return s.Page(ctx, session.ID, 0, limit)
	default:
		return Page{}, ErrQueryOrCursor
	}
}

// Start fetches one batch for query and stores it under a new session id.
func (s *SearchService) Start(ctx context.Context, query string) (SearchSession, error) {
	IncrSearchRequests()
	id := NewSessionID(query)
	slog.Info("search: new session",
		slog.String("query", query),
		slog.String("session", id),
		slog.Int("batch", s.batchSize))

	var videos []VideoSummary
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		videos, err = s.platform.Search(ctx, query, s.batchSize)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SearchSession{}, ctxErr
		}
		slog.Error("search: provider failed", slog.String("query", query), slog.Any("error", err))
		return SearchSession{}, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	session := SearchSession{
		ID:        id,
		Query:     query,
		Videos:    videos,
		CreatedAt: time.Now(),
	}
	s.cache.Put(ctx, session)
	slog.Info("search: cached", slog.String("session", id), slog.Int("videos", len(videos)))
	return session, nil
}

// Page returns videos[offset:offset+limit] of a live session with neighbour cursors.
func (s *SearchService) Page(ctx context.Context, sessionID string, offset, limit int) (Page, error) {
	IncrSearchPages()
	session, ok := s.cache.Get(ctx, sessionID)
	if !ok {
		IncrSessionsExpired()
		return Page{}, ErrSessionExpired
	}
	return PageOf(session, offset, limit), nil
}

// PageOf slices a session. limit is clamped to [1, MaxPageLimit].
func PageOf(session SearchSession, offset, limit int) Page {
	limit = ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	total := len(session.Videos)
	start := min(offset, total)
	end := start + min(limit, total-start)

	videos := make([]VideoSummary, end-start)
	copy(videos, session.Videos[start:end])

	p := Page{
		Query:  session.Query,
		Count:  len(videos),
		Offset: offset,
		Limit:  limit,
		Videos: videos,
	}
	if offset < total-limit {
		next := EncodeCursor(session.ID, offset+limit)
		p.NextCursor = &next
	}
	if offset > 0 {
		prev := EncodeCursor(session.ID, max(0, offset-limit))
		p.PrevCursor = &prev
	}
	return p
}

// ClampLimit bounds a page size to [1, MaxPageLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

var sessionSeq atomic.Uint64

// NewSessionID derives a 12-hex-char id from the query, a nanosecond timestamp and a
// process-wide sequence. Uniqueness is probabilistic; collisions are not detected.
func NewSessionID(query string) string {
	seq := sessionSeq.Add(1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", query, time.Now().UnixNano(), seq)))
	return hex.EncodeToString(sum[:6])
}

// EncodeCursor builds the opaque "<session>:<offset>" token.
func EncodeCursor(sessionID string, offset int) string {
	return sessionID + ":" + strconv.Itoa(offset)
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(cursor string) (sessionID string, offset int, err error) {
	i := strings.LastIndexByte(cursor, ':')
	if i <= 0 {
		return "", 0, ErrInvalidCursor
	}
	offset, err = strconv.Atoi(cursor[i+1:])
	if err != nil || offset < 0 || offset > MaxCursorOffset {
		return "", 0, ErrInvalidCursor
	}
	return cursor[:i], offset, nil
}
