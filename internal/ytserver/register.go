package ytserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers the YouTube tools on the given MCP server:
// youtube_transcript, youtube_search.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_transcript",
		Description: "Fetch the transcript of a YouTube video by URL or 11-character id. Prefers a manual track in the target language, then an auto-generated one, then English; translates when YouTube offers it and otherwise returns the original language. Optionally adds a short LLM summary.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, d.transcriptTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_search",
		Description: "Search YouTube videos. Start with a query; page through the cached results with next_cursor/prev_cursor. Cursors expire after 15 minutes. Returns id, title, channel, duration, views, thumbnail and URL per video.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, d.searchTool)
}

// maxToolAttempts caps the caller-supplied retry budget.
var maxToolAttempts = engine.DefaultMaxAttempts(engine.ModeInline)

type TranscriptInput struct {
	VideoURL       string `json:"video_url" jsonschema:"YouTube URL or 11-character video id"`
	TargetLanguage string `json:"target_language,omitempty" jsonschema:"Language code for the transcript (default: en)"`
	MaxAttempts    int    `json:"max_attempts,omitempty" jsonschema:"Retry budget (default: server setting, max 10)"`
	TextOnly       bool   `json:"text_only,omitempty" jsonschema:"Return an empty segments list and only the joined text"`
	Summarize      bool   `json:"summarize,omitempty" jsonschema:"Add a short LLM summary of the transcript"`
}

type SearchInput struct {
	Query  string `json:"query,omitempty" jsonschema:"Search query (starts a new search)"`
	Cursor string `json:"cursor,omitempty" jsonschema:"Cursor from a previous page (continues a search)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Videos per page (default 50, max 100)"`
}

func (d Deps) transcriptTool(ctx context.Context, _ *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, TranscriptResponse, error) {
	out, err := d.fetchTranscript(ctx, input.VideoURL, input.TargetLanguage, min(input.MaxAttempts, maxToolAttempts))
	if err != nil {
		slog.Warn("youtube_transcript error", slog.String("video", input.VideoURL), slog.Any("error", err))
		return nil, TranscriptResponse{}, publicError(err)
	}

	if input.Summarize && d.Summarizer != nil {
		r := engine.TranscriptResult{Segments: out.Segments, Language: out.Language}
		summary, err := d.Summarizer.Summarize(ctx, out.VideoID, r)
		switch {
		case err == nil:
			out.Summary = summary
		case errors.Is(err, engine.ErrLLMDisabled):
			out.Summary = "Summary unavailable: no LLM configured."
		default:
			slog.Warn("youtube_transcript: summary failed", slog.String("id", out.VideoID), slog.Any("error", err))
			out.Summary = "Summary unavailable: LLM request failed."
		}
	}
	if input.TextOnly {
		out.Segments = []engine.Segment{}
	}
	return nil, out, nil
}

func (d Deps) searchTool(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, engine.Page, error) {
	limit := input.Limit
	if limit == 0 {
		limit = engine.DefaultPageLimit
	}
	page, err := d.Search.Search(ctx, input.Query, input.Cursor, limit)
	if err != nil {
		slog.Warn("youtube_search error", slog.String("query", input.Query), slog.Any("error", err))
		return nil, engine.Page{}, publicError(err)
	}
	return nil, page, nil
}
