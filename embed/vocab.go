package embed

import (
	"bufio"
	"bytes"
	"fmt"
)

// Reserved token names and their fallback ids when the vocabulary file does
// not list them. The fallbacks follow the common BERT layout.
const (
	unknownToken = "[UNK]"
	paddingToken = "[PAD]"
	startToken   = "[CLS]"
	endToken     = "[SEP]"

	fallbackUnknown = 100
	fallbackPadding = 0
	fallbackStart   = 101
	fallbackEnd     = 102
)

// continuationMarker prefixes every subword piece after the first inside a
// split word.
const continuationMarker = "##"

// Vocabulary maps token strings to integer ids, with the four reserved ids
// resolved up front. It is loaded once per encoder variant and reused
// across calls.
type Vocabulary struct {
	IDs map[string]int32

	Unknown int32
	Padding int32
	Start   int32
	End     int32
}

// ParseVocabulary reads a vocabulary file with one token per line; the id
// of a token is its zero-based line number. Reserved tokens missing from
// the file fall back to their conventional ids.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("embed: empty vocabulary")
	}

	ids := make(map[string]int32)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var line int32
	for sc.Scan() {
		token := sc.Text()
		if token != "" {
			ids[token] = line
		}
		line++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("embed: reading vocabulary: %w", err)
	}

	v := &Vocabulary{IDs: ids}
	v.Unknown = idOrFallback(ids, unknownToken, fallbackUnknown)
	v.Padding = idOrFallback(ids, paddingToken, fallbackPadding)
	v.Start = idOrFallback(ids, startToken, fallbackStart)
	v.End = idOrFallback(ids, endToken, fallbackEnd)
	return v, nil
}

func idOrFallback(ids map[string]int32, token string, fallback int32) int32 {
	if id, ok := ids[token]; ok {
		return id
	}
	return fallback
}
