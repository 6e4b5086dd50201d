package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Transcript retrieval pipeline.
// Each attempt: pick identity → list tracks → selection cascade → optional translation → fetch.
// Failures other than translation are retried at a fixed interval up to the attempt budget.

// DefaultIdentities rotate chrome → firefox → opera across attempts.
var DefaultIdentities = []Identity{
	{Name: "chrome", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"},
	{Name: "firefox", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0"},
	{Name: "opera", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 OPR/116.0.0.0"},
}

// PipelineOpts configures a transcript Pipeline. Zero values fall back to defaults.
type PipelineOpts struct {
	MaxAttempts   int
	RetryInterval time.Duration
	Identities    []Identity
	// RandomUserAgent supplies a user agent when a profile has none. Defaults to the stealth pool.
	RandomUserAgent func() string
}

// Pipeline fetches transcripts from a TranscriptProvider with retry and language fallback.
type Pipeline struct {
	provider      TranscriptProvider
	useIdentity   bool
	identities    []Identity
	randomUA      func() string
	maxAttempts   int
	retryInterval time.Duration
}

// NewPipeline builds a pipeline around p. Identity support is checked once here.
func NewPipeline(p TranscriptProvider, opts PipelineOpts) *Pipeline {
	pl := &Pipeline{
		provider:      p,
		useIdentity:   p.SupportsIdentity(),
		identities:    opts.Identities,
		randomUA:      opts.RandomUserAgent,
		maxAttempts:   opts.MaxAttempts,
		retryInterval: opts.RetryInterval,
	}
	if len(pl.identities) == 0 {
		pl.identities = DefaultIdentities
	}
	if pl.randomUA == nil {
		pl.randomUA = RandomUserAgent
	}
	if pl.maxAttempts <= 0 {
		pl.maxAttempts = DefaultMaxAttempts(ModeBatch)
	}
	if pl.retryInterval < 0 {
		pl.retryInterval = 0
	}
	return pl
}

// MaxAttempts returns the attempt budget used when Fetch is called with maxAttempts <= 0.
func (p *Pipeline) MaxAttempts() int { return p.maxAttempts }

// identityFor returns the client identity for a zero-based attempt index.
// A profile without a user agent falls back to a random one instead of failing the attempt.
func (p *Pipeline) identityFor(attempt int) Identity {
	if !p.useIdentity {
		return Identity{}
	}
	id := p.identities[attempt%len(p.identities)]
	if id.UserAgent == "" {
		return Identity{Name: "random", UserAgent: p.randomUA()}
	}
	return id
}

// Fetch retrieves the transcript of videoID in targetLanguage, degrading to the
// original track language when translation is not offered.
func (p *Pipeline) Fetch(ctx context.Context, videoID, targetLanguage string, maxAttempts int) (out TranscriptResult, err error) {
	IncrTranscriptRequests()
	if targetLanguage == "" {
		targetLanguage = "en"
	}
	if maxAttempts <= 0 {
		maxAttempts = p.maxAttempts
	}

	_ = TrackOperation(ctx, "transcript:"+videoID, func(ctx context.Context) error {
		out, err = p.fetch(ctx, videoID, targetLanguage, maxAttempts)
		return err
	})
	if err != nil {
		IncrTranscriptFailures()
	}
	return out, err
}

func (p *Pipeline) fetch(ctx context.Context, videoID, target string, maxAttempts int) (TranscriptResult, error) {
	attempt := 0
	operation := func() (TranscriptResult, error) {
		id := p.identityFor(attempt)
		attempt++
		IncrTranscriptAttempts()
		slog.Info("transcript: attempt",
			slog.String("id", videoID),
			slog.Int("attempt", attempt),
			slog.Int("max", maxAttempts),
			slog.String("identity", id.Name))
		return p.attempt(ctx, videoID, target, id)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.retryInterval)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("transcript: attempt failed",
				slog.String("id", videoID),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}),
	)
	if err == nil {
		slog.Info("transcript: fetched",
			slog.String("id", videoID),
			slog.Int("segments", len(res.Segments)),
			slog.String("language", res.Language))
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return TranscriptResult{}, ctxErr
	}
	slog.Error("transcript: attempts exhausted",
		slog.String("id", videoID), slog.Int("attempts", attempt), slog.Any("error", err))
	return TranscriptResult{}, &NoTranscriptError{VideoID: videoID, Attempts: attempt, Err: err}
}

// attempt runs one pass of list → select → translate → fetch.
func (p *Pipeline) attempt(ctx context.Context, videoID, target string, id Identity) (TranscriptResult, error) {
	tracks, err := p.provider.ListTracks(ctx, videoID, id)
	if err != nil {
		return TranscriptResult{}, Transient(fmt.Errorf("list tracks: %w", err))
	}
	track, ok := SelectTrack(tracks, target)
	if !ok {
		return TranscriptResult{}, Transient(ErrNoTracks)
	}

	language := track.LanguageCode
	if track.LanguageCode != target {
		translated, err := p.provider.Translate(track, target)
		if err != nil {
			// Permanent for this track: serve it untranslated.
			IncrTranslationFallbacks()
			slog.Warn("transcript: translation not available, returning original language",
				slog.String("id", videoID),
				slog.String("from", track.LanguageCode),
				slog.String("to", target),
				slog.Any("error", err))
		} else {
			track = translated
			language = target
		}
	}

	snippets, err := p.provider.FetchTrack(ctx, track, id)
	if err != nil {
		return TranscriptResult{}, Transient(fmt.Errorf("fetch track %s: %w", track.LanguageCode, err))
	}
	segments := make([]Segment, 0, len(snippets))
	for _, s := range snippets {
		segments = append(segments, Segment{Text: s.Text, Start: s.Start, Duration: s.Duration})
	}
	return TranscriptResult{Segments: segments, Language: language}, nil
}

// trackSelector returns a match from tracks for the requested language, if any.
type trackSelector func(tracks []Track, target string) (Track, bool)

func byLanguage(fixed string, generated bool) trackSelector {
	return func(tracks []Track, target string) (Track, bool) {
		lang := target
		if fixed != "" {
			lang = fixed
		}
		for _, t := range tracks {
			if t.LanguageCode == lang && t.IsGenerated == generated {
				return t, true
			}
		}
		return Track{}, false
	}
}

func firstTrack(tracks []Track, _ string) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	return tracks[0], true
}

// trackCascade is evaluated in order; the first present result wins.
var trackCascade = []trackSelector{
	byLanguage("", false),   // manual, target language
	byLanguage("", true),    // generated, target language
	byLanguage("en", false), // manual English
	byLanguage("en", true),  // generated English
	firstTrack,              // anything, provider order
}

// SelectTrack applies the selection cascade to tracks.
func SelectTrack(tracks []Track, target string) (Track, bool) {
	for _, sel := range trackCascade {
		if t, ok := sel(tracks, target); ok {
			return t, true
		}
	}
	return Track{}, false
}
