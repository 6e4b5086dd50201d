package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Converter downloads a video's audio as MP3 into a scratch directory and hands the
// file to a callback. The file is removed on every exit path.
type Converter struct {
	platform VideoPlatform
	pool     *Pool
	dir      string
	timeout  time.Duration
}

// NewConverter creates dir if needed. pool may be nil.
func NewConverter(platform VideoPlatform, pool *Pool, dir string, timeout time.Duration) (*Converter, error) {
	if dir == "" {
		dir = "downloads"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("converter: mkdir %s: %w", dir, err)
	}
	return &Converter{platform: platform, pool: pool, dir: dir, timeout: timeout}, nil
}

// WithMP3 downloads videoID, opens the MP3 and calls fn with it and the client-facing
// filename. The download (including the wait for a worker) is bounded by the converter
// timeout; fn is not.
func (c *Converter) WithMP3(ctx context.Context, videoID string, fn func(f *os.File, filename string) error) error {
	IncrConvertRequests()
	base := filepath.Join(c.dir, videoID+"_"+uuid.NewString()[:8])
	defer c.cleanup(base)

	slog.Info("convert: start", slog.String("id", videoID), slog.Duration("timeout", c.timeout))

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var path string
	err := c.pool.Do(dctx, func(ctx context.Context) error {
		var err error
		path, err = c.platform.DownloadAudio(ctx, videoID, base)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			IncrConvertTimeouts()
			slog.Error("convert: timeout", slog.String("id", videoID))
			return ErrConversionTimeout
		}
		IncrConvertFailures()
		slog.Error("convert: download failed", slog.String("id", videoID), slog.Any("error", err))
		if errors.Is(err, ErrConversionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	f, err := os.Open(path)
	if err != nil {
		IncrConvertFailures()
		slog.Error("convert: output file not found", slog.String("path", path))
		return fmt.Errorf("%w: output file not found", ErrConversionFailed)
	}
	defer f.Close()

	filename := SanitizeFilename(videoID)
	slog.Info("convert: complete", slog.String("id", videoID), slog.String("file", filename))
	return fn(f, filename)
}

// cleanup removes every artifact yt-dlp may have left for base (partial downloads included).
func (c *Converter) cleanup(base string) {
	matches, err := filepath.Glob(base + ".*")
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			slog.Error("convert: cleanup failed", slog.String("path", m), slog.Any("error", err))
			continue
		}
		slog.Debug("convert: cleaned up file", slog.String("path", m))
	}
}

var filenameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFilename strips directory parts and reserved characters and forces a .mp3 extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	name = filenameReplacer.Replace(name)
	if !strings.HasSuffix(strings.ToLower(name), ".mp3") {
		name += ".mp3"
	}
	return name
}
