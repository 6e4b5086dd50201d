package engine

import (
	"errors"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url with playlist", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDdQw4w9WgXcQ&start_radio=1", "dQw4w9WgXcQ"},
		{"v param not first", "https://www.youtube.com/watch?feature=share&v=_8Probyi86w", "_8Probyi86w"},
		{"legacy /v/", "https://www.youtube.com/v/dQw4w9WgXcQ?version=3", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts", "https://youtube.com/shorts/abc-DEF_123", "abc-DEF_123"},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"bare id with whitespace", "  dQw4w9WgXcQ\n", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.input)
			if err != nil {
				t.Fatalf("ExtractVideoID(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractVideoIDInvalid(t *testing.T) {
	inputs := []string{
		"",
		"short",
		"dQw4w9WgXcQX", // 12 chars, bare
		"dQw4w9WgX!Q",
		"https://example.com/watch",
		"https://vimeo.com/123456789",
	}
	for _, in := range inputs {
		_, err := ExtractVideoID(in)
		if !errors.Is(err, ErrInvalidVideoID) {
			t.Errorf("ExtractVideoID(%q) err = %v, want ErrInvalidVideoID", in, err)
		}
	}
}
