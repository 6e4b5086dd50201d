package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests   atomic.Int64
	TranscriptAttempts   atomic.Int64
	TranscriptFailures   atomic.Int64
	TranslationFallbacks atomic.Int64
	TranscriptStoreHits  atomic.Int64
	SearchRequests       atomic.Int64
	SearchPages          atomic.Int64
	SessionsExpired      atomic.Int64
	SessionsEvicted      atomic.Int64
	ConvertRequests      atomic.Int64
	ConvertFailures      atomic.Int64
	ConvertTimeouts      atomic.Int64
	LLMCalls             atomic.Int64
	LLMErrors            atomic.Int64
}

var metricKeys = []string{
	"transcript_requests", "transcript_attempts", "transcript_failures",
	"translation_fallbacks", "transcript_store_hits",
	"search_requests", "search_pages", "sessions_expired", "sessions_evicted",
	"convert_requests", "convert_failures", "convert_timeouts",
	"llm_calls", "llm_errors",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"transcript_requests":   metrics.TranscriptRequests.Load(),
		"transcript_attempts":   metrics.TranscriptAttempts.Load(),
		"transcript_failures":   metrics.TranscriptFailures.Load(),
		"translation_fallbacks": metrics.TranslationFallbacks.Load(),
		"transcript_store_hits": metrics.TranscriptStoreHits.Load(),
		"search_requests":       metrics.SearchRequests.Load(),
		"search_pages":          metrics.SearchPages.Load(),
		"sessions_expired":      metrics.SessionsExpired.Load(),
		"sessions_evicted":      metrics.SessionsEvicted.Load(),
		"convert_requests":      metrics.ConvertRequests.Load(),
		"convert_failures":      metrics.ConvertFailures.Load(),
		"convert_timeouts":      metrics.ConvertTimeouts.Load(),
		"llm_calls":             metrics.LLMCalls.Load(),
		"llm_errors":            metrics.LLMErrors.Load(),
		"cache_hits":            hits,
		"cache_misses":          misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

func IncrTranscriptRequests()   { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptAttempts()   { metrics.TranscriptAttempts.Add(1) }
func IncrTranscriptFailures()   { metrics.TranscriptFailures.Add(1) }
func IncrTranslationFallbacks() { metrics.TranslationFallbacks.Add(1) }
func IncrTranscriptStoreHits()  { metrics.TranscriptStoreHits.Add(1) }
func IncrSearchRequests()       { metrics.SearchRequests.Add(1) }
func IncrSearchPages()          { metrics.SearchPages.Add(1) }
func IncrSessionsExpired()      { metrics.SessionsExpired.Add(1) }
func IncrSessionsEvicted()      { metrics.SessionsEvicted.Add(1) }
func IncrConvertRequests()      { metrics.ConvertRequests.Add(1) }
func IncrConvertFailures()      { metrics.ConvertFailures.Add(1) }
func IncrConvertTimeouts()      { metrics.ConvertTimeouts.Add(1) }
func IncrLLMCalls()             { metrics.LLMCalls.Add(1) }
func IncrLLMErrors()            { metrics.LLMErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
