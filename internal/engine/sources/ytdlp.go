package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
)

// YtDlp drives the yt-dlp binary for flat search and audio extraction.
type YtDlp struct {
	Path           string // binary path or name on $PATH
	FFmpegLocation string // optional --ffmpeg-location
}

// NewYtDlp returns a yt-dlp wrapper. An empty path means "yt-dlp" on $PATH.
func NewYtDlp(path, ffmpegLocation string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{Path: path, FFmpegLocation: ffmpegLocation}
}

// CheckBinary reports whether the yt-dlp binary can be resolved.
func (y *YtDlp) CheckBinary() error {
	if _, err := exec.LookPath(y.Path); err != nil {
		return fmt.Errorf("yt-dlp not found (%s): %w", y.Path, err)
	}
	return nil
}

type ytDlpPlaylist struct {
	Entries []ytDlpEntry `json:"entries"`
}

type ytDlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	ViewCount  int64   `json:"view_count"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

// Search runs a flat "ytsearchN:" query and returns at most limit hits.
func (y *YtDlp) Search(ctx context.Context, query string, limit int) ([]engine.VideoSummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	start := time.Now()
	args := []string{
		"--flat-playlist",
		"--dump-single-json",
		"--no-warnings",
		"--ignore-errors",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	}
	out, err := y.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}
	videos, err := parseYtDlpSearch(out)
	if err != nil {
		return nil, err
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}
	slog.Debug("yt-dlp: search done",
		slog.String("query", query),
		slog.Int("results", len(videos)),
		slog.Duration("elapsed", time.Since(start)))
	return videos, nil
}

// parseYtDlpSearch converts --dump-single-json output into summaries, skipping entries without an id.
func parseYtDlpSearch(out []byte) ([]engine.VideoSummary, error) {
	out = bytes.TrimSpace(out)
	if i := bytes.IndexByte(out, '{'); i > 0 {
		out = out[i:]
	}
	var pl ytDlpPlaylist
	if err := json.Unmarshal(out, &pl); err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	videos := make([]engine.VideoSummary, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e.ID == "" {
			continue
		}
		channel := e.Channel
		if channel == "" {
			channel = e.Uploader
		}
		thumb := engine.ThumbnailURL(e.ID)
		if n := len(e.Thumbnails); n > 0 && e.Thumbnails[n-1].URL != "" {
			thumb = e.Thumbnails[n-1].URL
		}
		secs := int(e.Duration)
		videos = append(videos, engine.VideoSummary{
			VideoID:         e.ID,
			Title:           e.Title,
			Channel:         channel,
			Duration:        engine.FormatDuration(secs),
			DurationSeconds: secs,
			ViewCount:       e.ViewCount,
			Thumbnail:       thumb,
			URL:             engine.WatchURL(e.ID),
		})
	}
	return videos, nil
}

// DownloadAudio extracts the best audio stream to <outputBase>.mp3 at 192 kbps.
func (y *YtDlp) DownloadAudio(ctx context.Context, videoID, outputBase string) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"-o", outputBase + ".%(ext)s",
	}
	if y.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", y.FFmpegLocation)
	}
	args = append(args, engine.WatchURL(videoID))

	if _, err := y.run(ctx, args); err != nil {
		return "", err
	}
	path := outputBase + ".mp3"
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: output file not found", engine.ErrConversionFailed)
	}
	return path, nil
}

// run executes yt-dlp and returns stdout. Failures carry the tail of stderr.
func (y *YtDlp) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, y.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp exited %d: %s", exitErr.ExitCode(), stderrTail(stderr.String()))
		}
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	return stdout.Bytes(), nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 500 {
		s = "..." + s[len(s)-500:]
	}
	return s
}
