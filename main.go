// go_ytsvc: YouTube transcript, search and MP3 service.
//
// Serves GET /transcript, GET /search and POST /convert over plain HTTP, and the
// youtube_transcript / youtube_search tools as an MCP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_ytsvc/internal/engine"
	"github.com/anatolykoptev/go_ytsvc/internal/engine/sources"
	"github.com/anatolykoptev/go_ytsvc/internal/ytserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version  = "dev"
	mcpPort  = env.Str("MCP_PORT", "8891")
	httpPort = env.Str("HTTP_PORT", "8892")
)

func main() {
	initLogger(env.Str("LOG_LEVEL", "info"))
	initEngine()
	c := engine.Cfg

	ctx := context.Background()
	deps, closeAll, err := buildDeps(ctx, c)
	if err != nil {
		slog.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeAll()

	slog.Info("starting go_ytsvc",
		slog.String("http_port", httpPort),
		slog.String("mcp_port", mcpPort),
		slog.String("mode", c.DeployMode),
		slog.Int("max_attempts", c.TranscriptMaxAttempts))

	httpSrv := ytserver.NewHTTPServer(":"+httpPort, deps, c.ConvertTimeout+time.Minute)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http facade failed", slog.Any("error", err))
		}
	}()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_ytsvc",
		Version: version,
	}, nil)
	ytserver.RegisterTools(server, deps)
	slog.Info("tools registered", slog.Int("count", 2))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_ytsvc",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func initLogger(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func initEngine() {
	mode := env.Str("DEPLOY_MODE", engine.ModeBatch)
	if mode != engine.ModeInline {
		mode = engine.ModeBatch
	}
	def := engine.DefaultConfig()

	c := engine.Config{
		DeployMode:              mode,
		TranscriptMaxAttempts:   env.Int("TRANSCRIPT_MAX_ATTEMPTS", engine.DefaultMaxAttempts(mode)),
		TranscriptRetryInterval: env.Duration("TRANSCRIPT_RETRY_INTERVAL", def.TranscriptRetryInterval),
		UserAgentProfiles:       env.List("USER_AGENT_PROFILES", ""),
		SearchBatchSize:         env.Int("SEARCH_BATCH_SIZE", def.SearchBatchSize),
		SessionTTL:              env.Duration("SEARCH_SESSION_TTL", def.SessionTTL),
		SessionMaxEntries:       env.Int("SEARCH_MAX_SESSIONS", def.SessionMaxEntries),
		CacheCleanupInterval:    env.Duration("CACHE_CLEANUP_INTERVAL", def.CacheCleanupInterval),
		RedisURL:                env.Str("REDIS_URL", ""),
		TranscriptWorkers:       env.Int("TRANSCRIPT_WORKERS", def.TranscriptWorkers),
		MediaWorkers:            env.Int("MEDIA_WORKERS", def.MediaWorkers),
		ProviderRPS:             env.Float("PROVIDER_RPS", 0),
		ConvertTimeout:          env.Duration("CONVERT_TIMEOUT", def.ConvertTimeout),
		DownloadDir:             env.Str("DOWNLOAD_DIR", def.DownloadDir),
		YtDlpPath:               env.Str("YTDLP_PATH", def.YtDlpPath),
		FFmpegLocation:          env.Str("FFMPEG_LOCATION", ""),
		YouTubeAPIKey:           env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback:   env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		TranscriptDBPath:        env.Str("TRANSCRIPT_DB_PATH", ""),
		DatabaseURL:             env.Str("DATABASE_URL", ""),
		TranscriptStoreTTL:      env.Duration("TRANSCRIPT_STORE_TTL", def.TranscriptStoreTTL),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Error("stealth client init failed", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	if key := env.Str("LLM_API_KEY", ""); key != "" {
		c.LLMClient = llm.NewClient(
			env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
			key,
			env.Str("LLM_MODEL", "gemini-2.5-flash"),
			llm.WithFallbackKeys(env.List("LLM_API_KEY_FALLBACKS", "")),
			llm.WithMaxTokens(env.Int("LLM_MAX_TOKENS", 2048)),
			llm.WithTemperature(env.Float("LLM_TEMPERATURE", 0.2)),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
		slog.Info("llm client initialized")
	}

	engine.Init(c)
}

// identities turns USER_AGENT_PROFILES ("name=agent" entries) into pipeline identities.
// Empty configuration keeps the built-in chrome/firefox/opera rotation.
func identities(profiles []string) []engine.Identity {
	var out []engine.Identity
	for _, p := range profiles {
		name, ua, ok := strings.Cut(p, "=")
		if !ok {
			name, ua = p, ""
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, engine.Identity{Name: name, UserAgent: strings.TrimSpace(ua)})
	}
	return out
}

// buildDeps wires providers, pools, cache and store into the server dependencies.
func buildDeps(ctx context.Context, c *engine.Config) (ytserver.Deps, func(), error) {
	transcriptPool := engine.NewPool("transcript", c.TranscriptWorkers, c.ProviderRPS)
	mediaPool := engine.NewPool("media", c.MediaWorkers, c.ProviderRPS)

	provider := sources.NewTranscriptClient(c.HTTPClient, c.BrowserClient)
	pipeline := engine.NewPipeline(pooledProvider{provider, transcriptPool}, engine.PipelineOpts{
		MaxAttempts:   c.TranscriptMaxAttempts,
		RetryInterval: c.TranscriptRetryInterval,
		Identities:    identities(c.UserAgentProfiles),
	})

	storeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := engine.OpenTranscriptStore(storeCtx, c.DatabaseURL, c.TranscriptDBPath, c.TranscriptStoreTTL)
	if err != nil {
		slog.Warn("transcript store init failed, running without store", slog.Any("error", err))
		store = nil
	} else if store != nil {
		slog.Info("transcript store initialized")
	}

	ytdlp := sources.NewYtDlp(c.YtDlpPath, c.FFmpegLocation)
	if err := ytdlp.CheckBinary(); err != nil {
		slog.Warn("yt-dlp unavailable, search fallback and conversion will fail", slog.Any("error", err))
	}
	platform := sources.NewPlatform(ytdlp, sources.NewDataAPI(c.HTTPClient, c.YouTubeAPIKey, c.YouTubeAPIKeyFallback))

	cache := engine.NewSessionCache(engine.CacheOpts{
		TTL:             c.SessionTTL,
		MaxEntries:      c.SessionMaxEntries,
		CleanupInterval: c.CacheCleanupInterval,
		RedisURL:        c.RedisURL,
	})

	converter, err := engine.NewConverter(platform, mediaPool, c.DownloadDir, c.ConvertTimeout)
	if err != nil {
		cache.Close()
		if store != nil {
			_ = store.Close()
		}
		return ytserver.Deps{}, nil, err
	}

	deps := ytserver.Deps{
		Transcripts: engine.NewCachedFetcher(pipeline, store),
		Search:      engine.NewSearchService(platform, cache, mediaPool, c.SearchBatchSize),
		Converter:   converter,
		Summarizer:  engine.NewSummarizer(c.LLMClient),
		Metrics:     engine.FormatMetrics,
	}
	closeAll := func() {
		cache.Close()
		if store != nil {
			_ = store.Close()
		}
	}
	return deps, closeAll, nil
}

// pooledProvider bounds outbound transcript calls with the transcript pool.
type pooledProvider struct {
	engine.TranscriptProvider
	pool *engine.Pool
}

func (p pooledProvider) ListTracks(ctx context.Context, videoID string, id engine.Identity) ([]engine.Track, error) {
	var tracks []engine.Track
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		tracks, err = p.TranscriptProvider.ListTracks(ctx, videoID, id)
		return err
	})
	return tracks, err
}

func (p pooledProvider) FetchTrack(ctx context.Context, t engine.Track, id engine.Identity) ([]engine.Snippet, error) {
	var snippets []engine.Snippet
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		snippets, err = p.TranscriptProvider.FetchTrack(ctx, t, id)
		return err
	})
	return snippets, err
}
