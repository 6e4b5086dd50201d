package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// videoIDPatterns are tried in order; the first match wins.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/v/|youtu\.be/|/embed/|/shorts/|/live/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{11})$`),
}

// ExtractVideoID pulls the 11-char video ID from a YouTube URL or accepts a bare id.
func ExtractVideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(s); len(m) >= 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w from URL: %s", ErrInvalidVideoID, input)
}
