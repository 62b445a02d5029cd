// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package chunker

import "unicode"

// Token is one tokenizer unit with half-open rune offsets into the source
// text, so Text == string(runes[Start:End]).
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer splits text into tokens with exact offsets. Implementations must
// be deterministic: the same text always yields the same token stream.
type Tokenizer interface {
	Tokenize(text string) []Token
}

// WordTokenizer is the default tokenizer: maximal runs of non-whitespace
// runes, split on unicode whitespace.
type WordTokenizer struct{}

var _ Tokenizer = WordTokenizer{}

func (WordTokenizer) Tokenize(text string) []Token {
	runes := []rune(text)

	var tokens []Token
	i := 0
	for i < len(runes) {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		tokens = append(tokens, Token{
			Text:  string(runes[start:i]),
			Start: start,
			End:   i,
		})
	}
	return tokens
}
