package ytserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_ytsvc/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeSummarizer struct {
	out string
	err error
}

func (f fakeSummarizer) Summarize(context.Context, string, engine.TranscriptResult) (string, error) {
	return f.out, f.err
}

func TestTranscriptTool(t *testing.T) {
	ctx := context.Background()

	t.Run("text only with summary", func(t *testing.T) {
		d := Deps{Transcripts: &fakeTranscripts{}, Summarizer: fakeSummarizer{out: "A greeting."}}
		_, out, err := d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ", TextOnly: true, Summarize: true})
		if err != nil {
			t.Fatal(err)
		}
		if out.Transcript != "hallo welt" || len(out.Segments) != 0 {
			t.Errorf("out = %+v", out)
		}
		if out.Summary != "A greeting." {
			t.Errorf("summary = %q", out.Summary)
		}
	})

	t.Run("summary disabled", func(t *testing.T) {
		var none *engine.Summarizer
		d := Deps{Transcripts: &fakeTranscripts{}, Summarizer: none}
		_, out, err := d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ", Summarize: true})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out.Summary, "no LLM configured") {
			t.Errorf("summary = %q", out.Summary)
		}
		if len(out.Segments) != 2 {
			t.Errorf("segments dropped without text_only")
		}
	})

	t.Run("summary failure keeps transcript", func(t *testing.T) {
		d := Deps{Transcripts: &fakeTranscripts{}, Summarizer: fakeSummarizer{err: errors.New("429")}}
		_, out, err := d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ", Summarize: true})
		if err != nil {
			t.Fatal(err)
		}
		if out.Transcript == "" || !strings.Contains(out.Summary, "failed") {
			t.Errorf("out = %+v", out)
		}
	})

	t.Run("max attempts forwarded", func(t *testing.T) {
		ft := &fakeTranscripts{}
		d := Deps{Transcripts: ft}
		_, _, _ = d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ", MaxAttempts: 3})
		if ft.attempts != 3 {
			t.Errorf("attempts = %d", ft.attempts)
		}
	})

	t.Run("max attempts capped", func(t *testing.T) {
		ft := &fakeTranscripts{}
		d := Deps{Transcripts: ft}
		_, _, _ = d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ", MaxAttempts: 1_000_000})
		if ft.attempts != engine.DefaultMaxAttempts(engine.ModeInline) {
			t.Errorf("attempts = %d", ft.attempts)
		}
	})

	t.Run("error is sanitised", func(t *testing.T) {
		d := Deps{Transcripts: &fakeTranscripts{err: &engine.NoTranscriptError{VideoID: "dQw4w9WgXcQ", Attempts: 2, Err: errors.New("proxy 10.0.0.1 refused")}}}
		_, _, err := d.transcriptTool(ctx, nil, TranscriptInput{VideoURL: "dQw4w9WgXcQ"})
		if err == nil || strings.Contains(err.Error(), "10.0.0.1") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestSearchTool(t *testing.T) {
	fs := &fakeSearch{}
	d := Deps{Search: fs}

	_, page, err := d.searchTool(context.Background(), nil, SearchInput{Query: "golang"})
	if err != nil {
		t.Fatal(err)
	}
	if fs.gotLimit != engine.DefaultPageLimit {
		t.Errorf("limit = %d, want default", fs.gotLimit)
	}
	if page.Count != 1 {
		t.Errorf("page = %+v", page)
	}

	fs.err = engine.ErrSessionExpired
	if _, _, err := d.searchTool(context.Background(), nil, SearchInput{Cursor: "abc:0"}); err == nil ||
		!strings.Contains(err.Error(), "start a new search") {
		t.Errorf("err = %v", err)
	}
}

func TestRegisterTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "dev"}, nil)
	RegisterTools(server, Deps{Transcripts: &fakeTranscripts{}, Search: &fakeSearch{}})
}
