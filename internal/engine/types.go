package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// --- Transcript types ---

// Track is one caption stream offered by a TranscriptProvider.
type Track struct {
	LanguageCode         string   `json:"language_code"`
	Language             string   `json:"language,omitempty"`
	IsGenerated          bool     `json:"is_generated"`
	Translatable         bool     `json:"translatable"`
	TranslationLanguages []string `json:"translation_languages,omitempty"`
	URL                  string   `json:"-"` // provider-private fetch handle
}

// Snippet is a raw timed text unit as returned by a provider.
type Snippet struct {
	Text     string
	Start    float64
	Duration float64
}

// Segment is one chronological piece of a transcript.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// TranscriptResult is what the pipeline returns: ordered segments and the language they are in.
type TranscriptResult struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Text joins segment text with single spaces.
func (r TranscriptResult) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Identity is the outbound client fingerprint used for one attempt.
type Identity struct {
	Name      string
	UserAgent string
}

// TranscriptProvider lists, fetches and translates caption tracks for a video.
type TranscriptProvider interface {
	// SupportsIdentity reports whether ListTracks/FetchTrack honour the Identity argument.
	SupportsIdentity() bool
	ListTracks(ctx context.Context, videoID string, id Identity) ([]Track, error)
	FetchTrack(ctx context.Context, t Track, id Identity) ([]Snippet, error)
	// Translate returns a track serving t translated to lang, or ErrTranslationUnavailable.
	Translate(t Track, lang string) (Track, error)
}

// --- Search / media types ---

// VideoSummary is a flat search hit.
type VideoSummary struct {
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	Channel         string `json:"channel"`
	Duration        string `json:"duration"`
	DurationSeconds int    `json:"duration_seconds"`
	ViewCount       int64  `json:"views"`
	Thumbnail       string `json:"thumbnail"`
	URL             string `json:"url"`
}

// VideoPlatform performs searches and audio extraction.
type VideoPlatform interface {
	Search(ctx context.Context, query string, limit int) ([]VideoSummary, error)
	// DownloadAudio writes <outputBase>.mp3 and returns its path.
	DownloadAudio(ctx context.Context, videoID, outputBase string) (string, error)
}

// SearchSession is a cached batch of results for one query.
type SearchSession struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	Videos    []VideoSummary `json:"videos"`
	CreatedAt time.Time      `json:"created_at"`
}

// Page is one window over a SearchSession.
type Page struct {
	Query      string         `json:"query"`
	Count      int            `json:"count"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
	NextCursor *string        `json:"next_cursor"`
	PrevCursor *string        `json:"prev_cursor"`
	Videos     []VideoSummary `json:"videos"`
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// ThumbnailURL returns the default high-quality thumbnail for a video id.
func ThumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

// FormatDuration renders seconds as m:ss or h:mm:ss; zero renders as N/A.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "N/A"
	}
	h, rem := seconds/3600, seconds%3600
	m, s := rem/60, rem%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
