package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
)

// YouTube transcript provider.
// Tracks:  watch page ytInitialPlayerResponse → captionTracks  (works from any IP)
// Fallback: ANDROID Innertube /player → captionTracks          (works from non-blocked IPs)
// Content:  timedtext XML at the track baseUrl; translation via &tlang=.

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// TranscriptClient implements engine.TranscriptProvider against YouTube.
type TranscriptClient struct {
	http    *http.Client
	browser *engine.BrowserClient // nil = plain net/http
}

// NewTranscriptClient creates a provider. bc may be nil.
func NewTranscriptClient(httpClient *http.Client, bc *engine.BrowserClient) *TranscriptClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TranscriptClient{http: httpClient, browser: bc}
}

// SupportsIdentity reports that watch-page and timedtext requests carry the attempt identity.
func (c *TranscriptClient) SupportsIdentity() bool { return true }

// ListTracks returns the server-fetchable caption tracks of videoID in YouTube's order.
func (c *TranscriptClient) ListTracks(ctx context.Context, videoID string, id engine.Identity) ([]engine.Track, error) {
	tracks, err := c.tracksFromWatchPage(ctx, videoID, id)
	if err == nil {
		return tracks, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	slog.Warn("youtube: page scrape failed, trying player",
		slog.String("id", videoID), slog.Any("err", err))

	resp, perr := postAndroidPlayer(ctx, c.http, videoID)
	if perr != nil {
		return nil, fmt.Errorf("watch page: %v; player: %w", err, perr)
	}
	return tracksFromPlayer(resp)
}

func (c *TranscriptClient) tracksFromWatchPage(ctx context.Context, videoID string, id engine.Identity) ([]engine.Track, error) {
	body, status, err := getWithIdentity(ctx, c.http, c.browser, ytWatchURL+videoID+"&hl=en", id, maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("watch page HTTP %d", status)
	}
	resp, err := parseWatchPage(body)
	if err != nil {
		return nil, err
	}
	return tracksFromPlayer(resp)
}

// parseWatchPage extracts ytInitialPlayerResponse from watch page HTML.
func parseWatchPage(body []byte) (*innertubePlayerResp, error) {
	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}
	var resp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &resp, nil
}

// tracksFromPlayer converts a player response into engine tracks, skipping PoToken-only ones.
func tracksFromPlayer(resp *innertubePlayerResp) ([]engine.Track, error) {
	if resp.Captions == nil {
		if ps := resp.PlayabilityStatus; ps != nil && ps.Status != "" && ps.Status != "OK" {
			return nil, fmt.Errorf("video unavailable: %s %s", ps.Status, ps.Reason)
		}
		return nil, fmt.Errorf("transcripts disabled: %w", engine.ErrNoTracks)
	}
	renderer := resp.Captions.PlayerCaptionsTracklistRenderer
	if len(renderer.CaptionTracks) == 0 {
		return nil, engine.ErrNoTracks
	}

	langs := make([]string, 0, len(renderer.TranslationLanguages))
	for _, tl := range renderer.TranslationLanguages {
		langs = append(langs, tl.LanguageCode)
	}

	tracks := make([]engine.Track, 0, len(renderer.CaptionTracks))
	for _, ct := range renderer.CaptionTracks {
		if needsPoToken(ct.BaseURL) {
			continue
		}
		tracks = append(tracks, engine.Track{
			LanguageCode:         ct.LanguageCode,
			Language:             ct.Name.String(),
			IsGenerated:          ct.Kind == "asr",
			Translatable:         ct.IsTranslatable,
			TranslationLanguages: langs,
			URL:                  strings.Replace(ct.BaseURL, "&fmt=srv3", "", 1),
		})
	}
	if len(tracks) == 0 {
		return nil, errors.New("all caption tracks require PoToken")
	}
	return tracks, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// Translate returns t served in lang through YouTube's machine translation.
func (c *TranscriptClient) Translate(t engine.Track, lang string) (engine.Track, error) {
	if !t.Translatable {
		return engine.Track{}, fmt.Errorf("%w: track %s is not translatable", engine.ErrTranslationUnavailable, t.LanguageCode)
	}
	if len(t.TranslationLanguages) > 0 && !slices.Contains(t.TranslationLanguages, lang) {
		return engine.Track{}, fmt.Errorf("%w: %s is not offered for track %s", engine.ErrTranslationUnavailable, lang, t.LanguageCode)
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return engine.Track{}, fmt.Errorf("%w: bad track url: %v", engine.ErrTranslationUnavailable, err)
	}
	q := u.Query()
	q.Set("tlang", lang)
	u.RawQuery = q.Encode()

	return engine.Track{
		LanguageCode: lang,
		Language:     lang,
		IsGenerated:  t.IsGenerated,
		URL:          u.String(),
	}, nil
}

// FetchTrack downloads and parses the timedtext XML of t.
func (c *TranscriptClient) FetchTrack(ctx context.Context, t engine.Track, id engine.Identity) ([]engine.Snippet, error) {
	body, status, err := getWithIdentity(ctx, c.http, c.browser, t.URL, id, maxTimedTextBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	if status != http.StatusOK {
		if engine.IsRetryableStatus(status) {
			return nil, fmt.Errorf("timedtext rate limited: HTTP %d", status)
		}
		return nil, fmt.Errorf("timedtext HTTP %d", status)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty timedtext response")
	}
	return parseTimedText(body)
}

// parseTimedText parses YouTube's timedtext XML into snippets, dropping empty lines.
func parseTimedText(body []byte) ([]engine.Snippet, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	snippets := make([]engine.Snippet, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := engine.CleanHTML(line.Text)
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		snippets = append(snippets, engine.Snippet{Text: text, Start: start, Duration: dur})
	}
	return snippets, nil
}
