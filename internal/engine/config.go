package engine

import (
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// Deployment modes select the default transcript attempt budget.
const (
	ModeBatch  = "batch"
	ModeInline = "inline"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	DeployMode              string
	TranscriptMaxAttempts   int
	TranscriptRetryInterval time.Duration
	UserAgentProfiles       []string

	SearchBatchSize      int
	SessionTTL           time.Duration
	SessionMaxEntries    int
	CacheCleanupInterval time.Duration
	RedisURL             string

	TranscriptWorkers int
	MediaWorkers      int
	ProviderRPS       float64

	ConvertTimeout time.Duration
	DownloadDir    string
	YtDlpPath      string
	FFmpegLocation string

	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string

	TranscriptDBPath   string
	DatabaseURL        string
	TranscriptStoreTTL time.Duration

	HTTPClient    *http.Client
	BrowserClient *BrowserClient // nil = plain HTTP client for watch pages
	LLMClient     *llm.Client    // nil = summaries disabled
}

var cfg = DefaultConfig()

// Cfg exposes the engine configuration for sub-packages (sources, ytserver).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}

// DefaultConfig returns the values used when no environment overrides are set.
func DefaultConfig() Config {
	return Config{
		DeployMode:              ModeBatch,
		TranscriptMaxAttempts:   DefaultMaxAttempts(ModeBatch),
		TranscriptRetryInterval: time.Second,
		SearchBatchSize:         200,
		SessionTTL:              15 * time.Minute,
		SessionMaxEntries:       500,
		CacheCleanupInterval:    time.Minute,
		TranscriptWorkers:       10,
		MediaWorkers:            16,
		ConvertTimeout:          5 * time.Minute,
		DownloadDir:             "downloads",
		YtDlpPath:               "yt-dlp",
		TranscriptStoreTTL:      24 * time.Hour,
		HTTPClient:              &http.Client{Timeout: 15 * time.Second},
	}
}

// DefaultMaxAttempts returns the transcript attempt budget for a deployment mode.
func DefaultMaxAttempts(mode string) int {
	if mode == ModeInline {
		return 10
	}
	return 5
}
