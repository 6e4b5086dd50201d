package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
)

// maxSummaryInputRunes caps the transcript text sent to the LLM.
const maxSummaryInputRunes = 24000

// ErrLLMDisabled is returned when no LLM client is configured.
var ErrLLMDisabled = errors.New("llm: not configured")

const summarizeSystemPrompt = "You summarize video transcripts. Be factual and concise. " +
	"Never invent content that is not in the transcript."

const summarizePrompt = `Summarize the following transcript of YouTube video %s in %s.
Start with one sentence stating the topic, then list up to 7 key points as "- " bullets.

Transcript:
%s`

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Summarizer produces short transcript summaries through an LLM.
type Summarizer struct {
	complete func(ctx context.Context, system, prompt string) (string, error)
}

// NewSummarizer returns nil when c is nil, which disables summaries.
func NewSummarizer(c *llm.Client) *Summarizer {
	if c == nil {
		return nil
	}
	return &Summarizer{complete: func(ctx context.Context, system, prompt string) (string, error) {
		return c.Complete(ctx, system, prompt,
			llm.WithChatTemperature(0.2),
			llm.WithChatMaxTokens(600),
		)
	}}
}

// Summarize asks the LLM for a short summary of r in the transcript's language.
func (s *Summarizer) Summarize(ctx context.Context, videoID string, r TranscriptResult) (string, error) {
	if s == nil {
		return "", ErrLLMDisabled
	}
	text := TruncateRunes(r.Text(), maxSummaryInputRunes, "...")
	if strings.TrimSpace(text) == "" {
		return "", errors.New("llm: empty transcript")
	}
	prompt := fmt.Sprintf(summarizePrompt, videoID, NormLang(r.Language), text)

	IncrLLMCalls()
	raw, err := s.complete(ctx, summarizeSystemPrompt, prompt)
	if err != nil {
		IncrLLMErrors()
		return "", fmt.Errorf("llm: summarize: %w", err)
	}
	return stripFences(raw), nil
}
