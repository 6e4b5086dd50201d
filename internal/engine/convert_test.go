package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// audioPlatform simulates yt-dlp writing an mp3 plus leftovers next to it.
type audioPlatform struct {
	block    bool
	err      error
	noOutput bool
}

func (a *audioPlatform) Search(context.Context, string, int) ([]VideoSummary, error) { return nil, nil }

func (a *audioPlatform) DownloadAudio(ctx context.Context, videoID, base string) (string, error) {
	if a.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	_ = os.WriteFile(base+".webm.part", []byte("partial"), 0o600)
	if a.err != nil {
		return "", a.err
	}
	if a.noOutput {
		return base + ".mp3", nil
	}
	if err := os.WriteFile(base+".mp3", []byte("ID3 "+videoID), 0o600); err != nil {
		return "", err
	}
	return base + ".mp3", nil
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestConverterWithMP3(t *testing.T) {
	dir := t.TempDir()
	c, err := NewConverter(&audioPlatform{}, nil, dir, time.Second)
	require.NoError(t, err)

	var body, name, path string
	err = c.WithMP3(context.Background(), "dQw4w9WgXcQ", func(f *os.File, filename string) error {
		data, err := io.ReadAll(f)
		body, name, path = string(data), filename, f.Name()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "ID3 dQw4w9WgXcQ", body)
	assert.Equal(t, "dQw4w9WgXcQ.mp3", name)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "dQw4w9WgXcQ_"))
	assert.Empty(t, dirEntries(t, dir), "artifacts must be removed after delivery")
}

func TestConverterUniqueFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewConverter(&audioPlatform{}, nil, dir, time.Second)
	require.NoError(t, err)

	var paths []string
	for range 2 {
		err := c.WithMP3(context.Background(), "dQw4w9WgXcQ", func(f *os.File, _ string) error {
			paths = append(paths, f.Name())
			return nil
		})
		require.NoError(t, err)
	}
	assert.NotEqual(t, paths[0], paths[1])
}

func TestConverterFailures(t *testing.T) {
	noop := func(*os.File, string) error { return nil }

	t.Run("timeout", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewConverter(&audioPlatform{block: true}, nil, dir, 20*time.Millisecond)
		require.NoError(t, err)
		err = c.WithMP3(context.Background(), "dQw4w9WgXcQ", noop)
		assert.ErrorIs(t, err, ErrConversionTimeout)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("download error", func(t *testing.T) {
		dir := t.TempDir()
		boom := errors.New("yt-dlp exited 1: Video unavailable")
		c, err := NewConverter(&audioPlatform{err: boom}, nil, dir, time.Second)
		require.NoError(t, err)
		err = c.WithMP3(context.Background(), "dQw4w9WgXcQ", noop)
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, dirEntries(t, dir), "partial download must be removed")
	})

	t.Run("missing output", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewConverter(&audioPlatform{noOutput: true}, nil, dir, time.Second)
		require.NoError(t, err)
		err = c.WithMP3(context.Background(), "dQw4w9WgXcQ", noop)
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.Contains(t, err.Error(), "output file not found")
	})

	t.Run("caller cancelled", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewConverter(&audioPlatform{block: true}, nil, dir, time.Minute)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = c.WithMP3(ctx, "dQw4w9WgXcQ", noop)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("callback error still cleans up", func(t *testing.T) {
		dir := t.TempDir()
		c, err := NewConverter(&audioPlatform{}, nil, dir, time.Second)
		require.NoError(t, err)
		boom := errors.New("client went away")
		err = c.WithMP3(context.Background(), "dQw4w9WgXcQ", func(*os.File, string) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, dirEntries(t, dir))
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ.mp3"},
		{"song.mp3", "song.mp3"},
		{"../../etc/passwd", "passwd.mp3"},
		{`a:b*c?"d|e`, "a_b_c__d_e.mp3"},
		{"Track.MP3", "Track.MP3"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
