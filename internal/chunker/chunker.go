// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package chunker splits document text into overlapping token windows with
// exact rune offsets back into the source.
package chunker

import (
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Chunk is one window of text. StartChar/EndChar are half-open rune offsets
// into the original document, so Text == string([]rune(doc)[StartChar:EndChar]).
type Chunk struct {
	Text      string
	StartChar int
	EndChar   int
}

// Splitter produces fixed-size token windows advancing by size - overlap
// tokens, the final window truncated to whatever remains.
type Splitter struct {
	size    int
	overlap int
	tok     Tokenizer
}

// NewSplitter validates the window configuration once. Overlap must satisfy
// 0 <= overlap < size so every window advances by at least one token.
func NewSplitter(size, overlap int, tok Tokenizer) (*Splitter, error) {
	if size <= 0 {
		return nil, grimerr.Errorf(grimerr.CodeChunkerConfigInvalid, "chunk size must be > 0, got %d", size)
	}
	if overlap < 0 {
		return nil, grimerr.Errorf(grimerr.CodeChunkerConfigInvalid, "chunk overlap must be >= 0, got %d", overlap)
	}
	if overlap >= size {
		return nil, grimerr.Errorf(grimerr.CodeChunkerConfigInvalid,
			"chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	if tok == nil {
		tok = WordTokenizer{}
	}
	return &Splitter{size: size, overlap: overlap, tok: tok}, nil
}

// Split chunks text into token windows. Empty or whitespace-only text yields
// no chunks. Each chunk spans from its first token's start to its last
// token's end, so dropping the first overlap tokens of every chunk after the
// first reconstructs the original token stream.
func (s *Splitter) Split(text string) []Chunk {
	tokens := s.tok.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	runes := []rune(text)
	stride := s.size - s.overlap

	var chunks []Chunk
	for start := 0; ; start += stride {
		end := start + s.size
		last := false
		if end >= len(tokens) {
			end = len(tokens)
			last = true
		}

		first := tokens[start]
		final := tokens[end-1]
		chunks = append(chunks, Chunk{
			Text:      string(runes[first.Start:final.End]),
			StartChar: first.Start,
			EndChar:   final.End,
		})

		if last {
			break
		}
	}
	return chunks
}

// Size returns the configured window size in tokens.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured window overlap in tokens.
func (s *Splitter) Overlap() int { return s.overlap }
