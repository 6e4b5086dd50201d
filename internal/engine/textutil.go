package engine

import (
	"io"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

// NormLang normalises a language field: empty string → "en".
func NormLang(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "en"
	}
	return lang
}

// UserAgentBot identifies API calls that need no browser fingerprint.
const UserAgentBot = "GoYTSvc/1.0"

// CleanHTML returns the text content of an HTML fragment: tags dropped, entities
// decoded, whitespace collapsed.
func CleanHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return strings.Join(strings.Fields(s), " ")
			}
			break
		}
		if tt == html.TextToken {
			sb.Write(z.Text())
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}
