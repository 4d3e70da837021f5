package embed

import (
	"regexp"
	"strings"
)

// MaxInputChars bounds the text length fed to the tokenizer, keeping
// worst-case inference latency independent of adversarial input size.
const MaxInputChars = 1000

var (
	urlPattern   = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Clean prepares raw text for tokenization: URLs and e-mail addresses are
// stripped, the text collapses to printable ASCII with single spaces, and
// the result is truncated to MaxInputChars. Deterministic for any input.
func Clean(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r >= 0x20 && r <= 0x7e {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}

	text = spacePattern.ReplaceAllString(sb.String(), " ")
	text = strings.TrimSpace(text)
	if len(text) > MaxInputChars {
		text = strings.TrimSpace(text[:MaxInputChars])
	}
	return text
}
