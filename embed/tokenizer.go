package embed

import "strings"

// Tokenize converts text into a sequence of vocabulary ids bounded by the
// start and end markers. Words absent from the vocabulary are split by
// greedy longest-prefix matching: the longest known prefix wins, shrinking
// one character at a time, with every continuation piece matched under the
// ## marker. A character that cannot start any known piece emits the
// unknown id. Token emission stops one short of maxSeqLen so the end
// marker always fits.
//
// The result is a pure function of (vocabulary, text).
func Tokenize(v *Vocabulary, text string, maxSeqLen int) []int32 {
	ids := make([]int32, 0, maxSeqLen)
	ids = append(ids, v.Start)

	limit := maxSeqLen - 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if len(ids) >= limit {
			break
		}
		if id, ok := v.IDs[word]; ok {
			ids = append(ids, id)
			continue
		}
		ids = appendSubwords(ids, v, word, limit)
	}

	return append(ids, v.End)
}

// appendSubwords splits word into vocabulary pieces, respecting limit.
func appendSubwords(ids []int32, v *Vocabulary, word string, limit int) []int32 {
	runes := []rune(word)
	pos := 0
	for pos < len(runes) && len(ids) < limit {
		matched := false
		for end := len(runes); end > pos; end-- {
			piece := string(runes[pos:end])
			if pos > 0 {
				piece = continuationMarker + piece
			}
			if id, ok := v.IDs[piece]; ok {
				ids = append(ids, id)
				pos = end
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, v.Unknown)
			pos++
		}
	}
	return ids
}
