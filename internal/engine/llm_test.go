package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"```\nfenced\n```", "fenced"},
		{"```markdown\n- a\n- b\n```", "- a\n- b"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	r := TranscriptResult{Language: "de", Segments: []Segment{{Text: "hallo"}, {Text: "welt"}}}

	t.Run("disabled", func(t *testing.T) {
		var s *Summarizer
		if _, err := s.Summarize(context.Background(), "vid", r); !errors.Is(err, ErrLLMDisabled) {
			t.Errorf("err = %v, want ErrLLMDisabled", err)
		}
		if NewSummarizer(nil) != nil {
			t.Error("NewSummarizer(nil) should return nil")
		}
	})

	t.Run("prompt carries transcript and language", func(t *testing.T) {
		var gotPrompt string
		s := &Summarizer{complete: func(_ context.Context, _, prompt string) (string, error) {
			gotPrompt = prompt
			return "```\nA greeting.\n```", nil
		}}
		out, err := s.Summarize(context.Background(), "vid", r)
		if err != nil {
			t.Fatal(err)
		}
		if out != "A greeting." {
			t.Errorf("summary = %q", out)
		}
		if !strings.Contains(gotPrompt, "hallo welt") || !strings.Contains(gotPrompt, " in de.") {
			t.Errorf("prompt missing transcript or language: %q", gotPrompt)
		}
	})

	t.Run("error counted", func(t *testing.T) {
		before := metrics.LLMErrors.Load()
		s := &Summarizer{complete: func(context.Context, string, string) (string, error) {
			return "", errors.New("429")
		}}
		if _, err := s.Summarize(context.Background(), "vid", r); err == nil {
			t.Fatal("expected error")
		}
		if metrics.LLMErrors.Load() != before+1 {
			t.Error("llm error not counted")
		}
	})

	t.Run("empty transcript", func(t *testing.T) {
		s := &Summarizer{complete: func(context.Context, string, string) (string, error) { return "x", nil }}
		if _, err := s.Summarize(context.Background(), "vid", TranscriptResult{}); err == nil {
			t.Error("expected error for empty transcript")
		}
	})
}
