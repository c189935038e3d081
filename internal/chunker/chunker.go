// Package chunker groups serialized records into token-bounded chunks for
// parallel reduction. Chunk boundaries never split a record; the token-window
// splitter is only a fallback for text with no recognizable record
// boundaries.
package chunker

import (
	"github.com/mailsense/voicepack/internal/token"
)

// OversizedMarker prefixes a chunk holding a single record whose own token
// count exceeded the chunk size. The loss is explicit, never silent.
const OversizedMarker = "[Large record split]\n"

// recordSeparator restores the blank line between serialized records that
// boundary splitting strips, keeping chunk text in the corpus wire format.
const recordSeparator = "\n\n"

// Pack greedily bins records into chunks of at most chunkSize tokens,
// preserving source order and record boundaries. Records within a chunk are
// separated by a blank line. A single record larger than chunkSize becomes
// its own chunk, truncated to chunkSize tokens and prefixed with
// OversizedMarker. Deterministic for a given codec and input.
func Pack(records []string, codec token.Codec, chunkSize int) []string {
	var chunks []string
	var current string
	currentTokens := 0

	for _, rec := range records {
		recTokens := codec.Count(rec)

		if recTokens > chunkSize {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
				currentTokens = 0
			}
			chunks = append(chunks, OversizedMarker+token.Truncate(codec, rec, chunkSize))
			continue
		}

		sepTokens := 0
		if current != "" {
			sepTokens = codec.Count(recordSeparator)
		}
		if currentTokens+sepTokens+recTokens > chunkSize && current != "" {
			chunks = append(chunks, current)
			current = rec
			currentTokens = recTokens
			continue
		}
		if current != "" {
			current += recordSeparator
			currentTokens += sepTokens
		}
		current += rec
		currentTokens += recTokens
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// SplitTokens slides a window of chunkSize tokens over text, advancing by
// chunkSize-overlap each step. Used when no record boundaries can be found.
func SplitTokens(text string, codec token.Codec, chunkSize, overlap int) []string {
	toks := codec.Encode(text)
	if len(toks) == 0 {
		return nil
	}

	step := chunkSize - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(toks); i += step {
		end := i + chunkSize
		if end > len(toks) {
			end = len(toks)
		}
		chunks = append(chunks, codec.Decode(toks[i:end]))
		if end == len(toks) {
			break
		}
	}
	return chunks
}
