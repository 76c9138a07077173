// Package tokenizer provides a deterministic, offline token counter. The
// chunker sizes chunks with it, and the retriever's context budget sums the
// token counts it stamped on each Chunk; embedding batches are sized by
// chunk count, not by tokens. It does
// not attempt to match any specific model's byte-pair encoding; it only needs
// to be stable and monotonic so that size bounds computed by one component
// are honored by another.
package tokenizer

import "unicode"

// Count returns the deterministic token count for s. A "token" here is a
// maximal run of letters/digits, or a single punctuation/symbol rune;
// whitespace is a separator and contributes no tokens. This mirrors how
// word-piece tokenizers roughly split text while staying dependency-free
// and perfectly reproducible across processes and Go versions.
func Count(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				n++
				inWord = true
			}
		default:
			// punctuation/symbols: each counts as its own token
			n++
			inWord = false
		}
	}
	return n
}

// CountAll sums Count over multiple strings.
func CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Count(t)
	}
	return total
}

// Truncate returns the longest leading substring of s whose token count does
// not exceed maxTokens, breaking on rune boundaries. The chunker uses it to
// split text that does not fit a chunk's remaining token budget.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if Count(s) <= maxTokens {
		return s
	}
	runes := []rune(s)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if Count(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
