// Package token provides model-aware token counting and truncation.
// All sizing decisions in the pipeline are expressed in tokens, so every
// component that needs to measure text takes a Codec rather than calling
// the tokenizer library directly.
package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Codec maps text to and from tokens for one model.
type Codec interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// Truncate returns text cut to at most maxTokens tokens.
func Truncate(c Codec, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	toks := c.Encode(text)
	if len(toks) <= maxTokens {
		return text
	}
	return c.Decode(toks[:maxTokens])
}

type tiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

// ForModel returns a Codec for the named model, falling back to the
// cl100k_base encoding when the model is unknown to the tokenizer.
func ForModel(model string) (Codec, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokenizer for %q: %w", model, err)
		}
	}
	return &tiktokenCodec{enc: enc}, nil
}

func (c *tiktokenCodec) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCodec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *tiktokenCodec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}
