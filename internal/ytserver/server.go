// Package ytserver exposes the transcript, search and conversion services over HTTP
// and as MCP tools.
package ytserver

import (
	"context"
	"os"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
)

// TranscriptFetcher is satisfied by *engine.CachedFetcher and *engine.Pipeline.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID, lang string, maxAttempts int) (engine.TranscriptResult, error)
}

// Searcher is satisfied by *engine.SearchService.
type Searcher interface {
	Search(ctx context.Context, query, cursor string, limit int) (engine.Page, error)
}

// AudioConverter is satisfied by *engine.Converter.
type AudioConverter interface {
	WithMP3(ctx context.Context, videoID string, fn func(f *os.File, filename string) error) error
}

// Summarizer is satisfied by *engine.Summarizer (a nil one reports ErrLLMDisabled).
type Summarizer interface {
	Summarize(ctx context.Context, videoID string, r engine.TranscriptResult) (string, error)
}

// Deps are the services behind both surfaces.
type Deps struct {
	Transcripts TranscriptFetcher
	Search      Searcher
	Converter   AudioConverter
	Summarizer  Summarizer    // optional
	Metrics     func() string // optional; defaults to engine.FormatMetrics
}

// TranscriptResponse is the transcript payload shared by HTTP and MCP.
type TranscriptResponse struct {
	VideoID           string           `json:"video_id"`
	Language          string           `json:"language"`
	RequestedLanguage string           `json:"requested_language"`
	Transcript        string           `json:"transcript"`
	Segments          []engine.Segment `json:"segments"`
	Summary           string           `json:"summary,omitempty"`
}

// fetchTranscript resolves the video id and runs the transcript fetcher.
func (d Deps) fetchTranscript(ctx context.Context, videoURL, lang string, maxAttempts int) (TranscriptResponse, error) {
	if videoURL == "" {
		return TranscriptResponse{}, missingParam("video_url")
	}
	id, err := engine.ExtractVideoID(videoURL)
	if err != nil {
		return TranscriptResponse{}, err
	}
	lang = engine.NormLang(lang)
	r, err := d.Transcripts.Fetch(ctx, id, lang, maxAttempts)
	if err != nil {
		return TranscriptResponse{}, err
	}
	return TranscriptResponse{
		VideoID:           id,
		Language:          r.Language,
		RequestedLanguage: lang,
		Transcript:        r.Text(),
		Segments:          segments(r.Segments),
	}, nil
}

func segments(s []engine.Segment) []engine.Segment {
	if s == nil {
		return []engine.Segment{}
	}
	return s
}
