package ytserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
	"github.com/anatolykoptev/go_ytsvc/internal/toolutil"
)

// NewHandler returns the HTTP facade.
func NewHandler(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = engine.FormatMetrics
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transcript", d.handleTranscript)
	mux.HandleFunc("GET /search", d.handleSearch)
	mux.HandleFunc("POST /convert", d.handleConvert)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		toolutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, d.Metrics())
	})
	return logRequests(mux)
}

// NewHTTPServer wraps the facade with the timeouts the conversion endpoint needs.
func NewHTTPServer(addr string, d Deps, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(d),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}
}

func (d Deps) handleTranscript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := d.fetchTranscript(r.Context(), strings.TrimSpace(q.Get("video_url")), q.Get("target_language"), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	toolutil.WriteJSON(w, http.StatusOK, out)
}

func (d Deps) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := toolutil.IntParam(r, "limit", engine.DefaultPageLimit)
	if err != nil {
		toolutil.WriteJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return
	}
	page, err := d.Search.Search(r.Context(), q.Get("query"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	toolutil.WriteJSON(w, http.StatusOK, page)
}

func (d Deps) handleConvert(w http.ResponseWriter, r *http.Request) {
	videoURL := strings.TrimSpace(r.URL.Query().Get("video_url"))
	if videoURL == "" {
		writeError(w, r, missingParam("video_url"))
		return
	}
	id, err := engine.ExtractVideoID(videoURL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	started := false
	err = d.Converter.WithMP3(r.Context(), id, func(f *os.File, filename string) error {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Disposition", toolutil.ContentDisposition(filename))
		if st, err := f.Stat(); err == nil {
			w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
		}
		started = true
		w.WriteHeader(http.StatusOK)
		_, err := io.Copy(w, f)
		return err
	})
	if err == nil {
		return
	}
	if started {
		slog.Warn("convert: response interrupted", slog.String("id", id), slog.Any("error", err))
		return
	}
	writeError(w, r, err)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", err),
	}
	switch {
	case status >= 500 && !errors.Is(err, context.Canceled):
		slog.Error("request failed", attrs...)
	default:
		slog.Info("request rejected", attrs...)
	}
	toolutil.WriteJSON(w, status, errorBody{Detail: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}
