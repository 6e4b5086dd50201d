package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform returns n synthetic videos and counts search calls.
type fakePlatform struct {
	n         int
	err       error
	calls     atomic.Int32
	lastLimit atomic.Int32
}

func (f *fakePlatform) Search(_ context.Context, query string, limit int) ([]VideoSummary, error) {
	f.calls.Add(1)
	f.lastLimit.Store(int32(limit))
	if f.err != nil {
		return nil, f.err
	}
	out := make([]VideoSummary, min(f.n, limit))
	for i := range out {
		out[i] = VideoSummary{VideoID: fmt.Sprintf("%s-%03d", query, i)}
	}
	return out, nil
}

func (f *fakePlatform) DownloadAudio(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func newTestSearch(p VideoPlatform, maxEntries int) (*SearchService, *SessionCache) {
	cache := NewSessionCache(CacheOpts{TTL: 15 * time.Minute, MaxEntries: maxEntries})
	return NewSearchService(p, cache, nil, 200), cache
}

func TestSearchPagination(t *testing.T) {
	p := &fakePlatform{n: 200}
	svc, cache := newTestSearch(p, 10)
	defer cache.Close()
	ctx := context.Background()

	first, err := svc.Search(ctx, "golang", "", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, first.Count)
	assert.Equal(t, 0, first.Offset)
	assert.Nil(t, first.PrevCursor)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "golang-000", first.Videos[0].VideoID)
	assert.EqualValues(t, 200, p.lastLimit.Load())

	id, off, err := DecodeCursor(*first.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, 50, off)

	last, err := svc.Search(ctx, "", EncodeCursor(id, 150), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, last.Count)
	assert.Equal(t, "golang-150", last.Videos[0].VideoID)
	assert.Nil(t, last.NextCursor)
	require.NotNil(t, last.PrevCursor)
	assert.Equal(t, EncodeCursor(id, 100), *last.PrevCursor)

	assert.EqualValues(t, 1, p.calls.Load(), "paging must not call the provider again")
}

func TestSearchPageIdempotent(t *testing.T) {
	svc, cache := newTestSearch(&fakePlatform{n: 120}, 10)
	defer cache.Close()
	ctx := context.Background()

	first, err := svc.Search(ctx, "q", "", 40)
	require.NoError(t, err)
	a, err := svc.Search(ctx, "", *first.NextCursor, 40)
	require.NoError(t, err)
	b, err := svc.Search(ctx, "", *first.NextCursor, 40)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSearchWalkCoversBatch(t *testing.T) {
	svc, cache := newTestSearch(&fakePlatform{n: 130}, 10)
	defer cache.Close()
	ctx := context.Background()

	page, err := svc.Search(ctx, "walk", "", 25)
	require.NoError(t, err)
	seen := map[string]bool{}
	for {
		for _, v := range page.Videos {
			assert.False(t, seen[v.VideoID], "duplicate %s", v.VideoID)
			seen[v.VideoID] = true
		}
		if page.NextCursor == nil {
			break
		}
		page, err = svc.Search(ctx, "", *page.NextCursor, 25)
		require.NoError(t, err)
	}
	assert.Len(t, seen, 130)
}

func TestSearchErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("query and cursor", func(t *testing.T) {
		svc, cache := newTestSearch(&fakePlatform{n: 1}, 10)
		defer cache.Close()
		_, err := svc.Search(ctx, "a", "b:0", 10)
		assert.ErrorIs(t, err, ErrQueryOrCursor)
		_, err = svc.Search(ctx, "  ", "", 10)
		assert.ErrorIs(t, err, ErrQueryOrCursor)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		svc, cache := newTestSearch(&fakePlatform{n: 1}, 10)
		defer cache.Close()
		_, err := svc.Search(ctx, "", "nocolon", 10)
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, cache := newTestSearch(&fakePlatform{n: 1}, 10)
		defer cache.Close()
		_, err := svc.Search(ctx, "", "deadbeef0000:0", 10)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("provider failure", func(t *testing.T) {
		boom := errors.New("yt-dlp exited 1")
		svc, cache := newTestSearch(&fakePlatform{err: boom}, 10)
		defer cache.Close()
		_, err := svc.Search(ctx, "x", "", 10)
		assert.ErrorIs(t, err, ErrSearchFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("evicted session", func(t *testing.T) {
		svc, cache := newTestSearch(&fakePlatform{n: 10}, 1)
		defer cache.Close()
		first, err := svc.Search(ctx, "one", "", 5)
		require.NoError(t, err)
		_, err = svc.Search(ctx, "two", "", 5)
		require.NoError(t, err)
		_, err = svc.Search(ctx, "", *first.NextCursor, 5)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})
}

func TestPageOf(t *testing.T) {
	s := testSession("sid", 10)

	tests := []struct {
		name          string
		offset, limit int
		wantCount     int
		wantLimit     int
		wantNext      string
		wantPrev      string
	}{
		{"first page", 0, 4, 4, 4, "sid:4", ""},
		{"middle page", 4, 4, 4, 4, "sid:8", "sid:0"},
		{"short last page", 8, 4, 2, 4, "", "sid:4"},
		{"past the end", 20, 4, 0, 4, "", "sid:16"},
		{"prev clamps at zero", 2, 4, 4, 4, "sid:6", "sid:0"},
		{"limit clamped low", 0, 0, 1, 1, "sid:1", ""},
		{"limit clamped high", 0, 500, 10, 100, "", ""},
		{"huge offset", math.MaxInt, 50, 0, 50, "", EncodeCursor("sid", math.MaxInt-50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PageOf(s, tt.offset, tt.limit)
			if p.Count != tt.wantCount || len(p.Videos) != tt.wantCount {
				t.Errorf("count = %d (videos %d), want %d", p.Count, len(p.Videos), tt.wantCount)
			}
			if p.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if got := deref(p.NextCursor); got != tt.wantNext {
				t.Errorf("next = %q, want %q", got, tt.wantNext)
			}
			if got := deref(p.PrevCursor); got != tt.wantPrev {
				t.Errorf("prev = %q, want %q", got, tt.wantPrev)
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestCursorCodec(t *testing.T) {
	for _, off := range []int{0, 1, 50, 199} {
		id, got, err := DecodeCursor(EncodeCursor("abc123def456", off))
		if err != nil || id != "abc123def456" || got != off {
			t.Errorf("round trip %d: id=%q off=%d err=%v", off, id, got, err)
		}
	}

	bad := []string{"", ":5", "abc", "abc:", "abc:x", "abc:-1",
		"abc:9223372036854775807", EncodeCursor("abc", MaxCursorOffset+1)}
	for _, c := range bad {
		if _, _, err := DecodeCursor(c); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("DecodeCursor(%q) err = %v, want ErrInvalidCursor", c, err)
		}
	}
}

func TestSearchHugeCursorOffset(t *testing.T) {
	svc, _ := newTestSearch(&fakePlatform{n: 10}, 10)
	page, err := svc.Search(context.Background(), "golang", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	id, _, _ := DecodeCursor(*page.NextCursor)

	_, err = svc.Search(context.Background(), "", id+":9223372036854775807", 50)
	if !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("err = %v, want ErrInvalidCursor", err)
	}

	p, err := svc.Page(context.Background(), id, math.MaxInt, 50)
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 0 || p.NextCursor != nil {
		t.Errorf("page past the end = %+v", p)
	}
}

func TestNewSessionID(t *testing.T) {
	seen := map[string]bool{}
	for range 1000 {
		id := NewSessionID("same query")
		if len(id) != 12 {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
