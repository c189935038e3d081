// Package tokentest provides a deterministic Codec for tests that must not
// depend on tokenizer data files.
package tokentest

// Codec treats every rune as one token. Encode/Decode round-trip exactly,
// which is all the chunking and truncation logic relies on.
type Codec struct{}

func (Codec) Count(text string) int {
	return len([]rune(text))
}

func (Codec) Encode(text string) []int {
	rs := []rune(text)
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = int(r)
	}
	return out
}

func (Codec) Decode(tokens []int) string {
	rs := make([]rune, len(tokens))
	for i, t := range tokens {
		rs[i] = rune(t)
	}
	return string(rs)
}
