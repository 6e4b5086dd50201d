package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
)

// YouTube search via Data API v3, with yt-dlp as the fallback searcher and the only
// audio extractor.

const (
	ytDataAPIBase     = "https://www.googleapis.com/youtube/v3"
	ytDataAPIPageSize = 50 // API maximum for search.list and videos.list
)

// --- YouTube Data API v3 types ---

type ytDataSearchResp struct {
	NextPageToken string       `json:"nextPageToken"`
	Items         []ytDataItem `json:"items"`
}

type ytDataItem struct {
	ID      ytDataItemID      `json:"id"`
	Snippet ytDataItemSnippet `json:"snippet"`
}

type ytDataItemID struct {
	VideoID string `json:"videoId"`
}

type ytDataItemSnippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

type ytDataVideosResp struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// DataAPI searches YouTube through the Data API v3.
type DataAPI struct {
	client *http.Client
	keys   []string
	base   string
}

// NewDataAPI returns nil when no key is configured. Later keys are used when earlier
// ones fail (quota exhausted, revoked).
func NewDataAPI(client *http.Client, keys ...string) *DataAPI {
	var nonEmpty []string
	for _, k := range keys {
		if k != "" {
			nonEmpty = append(nonEmpty, k)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DataAPI{client: client, keys: nonEmpty, base: ytDataAPIBase}
}

// Search returns up to limit videos in relevance order, enriched with duration and views.
func (d *DataAPI) Search(ctx context.Context, query string, limit int) ([]engine.VideoSummary, error) {
	var lastErr error
	for i, key := range d.keys {
		videos, err := d.searchWithKey(ctx, query, limit, key)
		if err == nil {
			return videos, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		slog.Debug("youtube data API key failed", slog.Int("key", i), slog.Any("err", err))
	}
	return nil, lastErr
}

func (d *DataAPI) searchWithKey(ctx context.Context, query string, limit int, key string) ([]engine.VideoSummary, error) {
	videos := make([]engine.VideoSummary, 0, limit)
	seen := make(map[string]bool, limit)
	pageToken := ""
	for len(videos) < limit {
		params := url.Values{}
		params.Set("part", "snippet")
		params.Set("q", query)
		params.Set("type", "video")
		params.Set("maxResults", strconv.Itoa(min(ytDataAPIPageSize, limit-len(videos))))
		params.Set("key", key)
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp ytDataSearchResp
		if err := d.getJSON(ctx, "/search?"+params.Encode(), &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			id := item.ID.VideoID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			thumb := engine.ThumbnailURL(id)
			if t, ok := item.Snippet.Thumbnails["high"]; ok && t.URL != "" {
				thumb = t.URL
			}
			videos = append(videos, engine.VideoSummary{
				VideoID:   id,
				Title:     engine.CleanHTML(item.Snippet.Title),
				Channel:   item.Snippet.ChannelTitle,
				Duration:  engine.FormatDuration(0),
				Thumbnail: thumb,
				URL:       engine.WatchURL(id),
			})
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(videos) > limit {
		videos = videos[:limit]
	}

	if err := d.enrich(ctx, videos, key); err != nil {
		slog.Warn("youtube data API: enrich failed", slog.Any("err", err))
	}
	return videos, nil
}

// enrich fills duration and view count from videos.list, 50 ids per call.
func (d *DataAPI) enrich(ctx context.Context, videos []engine.VideoSummary, key string) error {
	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.VideoID] = i
	}
	for start := 0; start < len(videos); start += ytDataAPIPageSize {
		end := min(start+ytDataAPIPageSize, len(videos))
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.VideoID)
		}
		params := url.Values{}
		params.Set("part", "contentDetails,statistics")
		params.Set("id", strings.Join(ids, ","))
		params.Set("key", key)

		var resp ytDataVideosResp
		if err := d.getJSON(ctx, "/videos?"+params.Encode(), &resp); err != nil {
			return err
		}
		for _, item := range resp.Items {
			i, ok := index[item.ID]
			if !ok {
				continue
			}
			secs := parseISODuration(item.ContentDetails.Duration)
			videos[i].DurationSeconds = secs
			videos[i].Duration = engine.FormatDuration(secs)
			videos[i].ViewCount, _ = strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
		}
	}
	return nil
}

func (d *DataAPI) getJSON(ctx context.Context, path string, dst any) error {
	apiURL := d.base + path
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return d.client.Do(req)
	})
	if err != nil {
		return fmt.Errorf("youtube data API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("youtube data API %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode youtube data API: %w", err)
	}
	return nil
}

var isoDurationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseISODuration converts an ISO 8601 duration such as PT1H2M3S to seconds. Unknown shapes yield 0.
func parseISODuration(s string) int {
	m := isoDurationRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * mult
	}
	return total
}

// --- Composite platform ---

type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]engine.VideoSummary, error)
}

// Platform implements engine.VideoPlatform: Data API search when configured, yt-dlp
// search otherwise (and as fallback), yt-dlp for audio.
type Platform struct {
	api   searcher // nil = yt-dlp only
	ytdlp *YtDlp
}

// NewPlatform combines the searchers. api may be nil.
func NewPlatform(ytdlp *YtDlp, api *DataAPI) *Platform {
	p := &Platform{ytdlp: ytdlp}
	if api != nil {
		p.api = api
	}
	return p
}

// Search tries the Data API first and falls back to yt-dlp on failure.
func (p *Platform) Search(ctx context.Context, query string, limit int) ([]engine.VideoSummary, error) {
	if p.api != nil {
		videos, err := p.api.Search(ctx, query, limit)
		if err == nil {
			return videos, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("youtube: data API search failed, falling back to yt-dlp",
			slog.String("query", query), slog.Any("err", err))
	}
	if p.ytdlp == nil {
		return nil, errors.New("no searcher configured")
	}
	return p.ytdlp.Search(ctx, query, limit)
}

// DownloadAudio delegates to yt-dlp.
func (p *Platform) DownloadAudio(ctx context.Context, videoID, outputBase string) (string, error) {
	if p.ytdlp == nil {
		return "", errors.New("yt-dlp not configured")
	}
	return p.ytdlp.DownloadAudio(ctx, videoID, outputBase)
}
