// Package rag indexes repository files into a vector index and retrieves
// semantically related code for review context.
package rag

import (
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTargetTokens = 500
	DefaultOverlapLines = 10

	// rough chars-per-token ratio used for chunk sizing only
	chunkCharsPerToken = 4
)

// DiffChunk is a bounded slice of one file prepared for embedding.
// StartLine and EndLine are 1-based and inclusive.
type DiffChunk struct {
	File      string `json:"file"`
	ChunkID   int    `json:"chunkId"`
	Content   string `json:"content"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// Chunker splits file content into overlapping line-aligned chunks
type Chunker struct {
	TargetTokens int
	OverlapLines int
}

// NewChunker returns a chunker with the default sizing
func NewChunker() *Chunker {
	return &Chunker{TargetTokens: DefaultTargetTokens, OverlapLines: DefaultOverlapLines}
}

// Chunk splits content into chunks of roughly TargetTokens, carrying the last
// OverlapLines lines of each chunk into the next. The carried overlap never
// exceeds half of the chunk, so long lines cannot stall progress. Every line
// lands in at least one chunk and each chunk starts after the previous one.
func (c *Chunker) Chunk(file, content string) []DiffChunk {
	if strings.TrimSpace(content) == "" {
		log.Debug().Str("file", file).Msg("Skipping empty file content for chunking")
		return nil
	}

	target := c.TargetTokens
	if target <= 0 {
		target = DefaultTargetTokens
	}
	overlap := c.OverlapLines
	if overlap < 0 {
		overlap = 0
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []DiffChunk
	start := 0
	for start < len(lines) {
		end := start
		chars := 0
		for end < len(lines) {
			chars += len(lines[end]) + 1
			end++
			if chars/chunkCharsPerToken >= target {
				break
			}
		}

		chunks = append(chunks, DiffChunk{
			File:      file,
			ChunkID:   len(chunks),
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})

		if end >= len(lines) {
			break
		}
		next := end - min(overlap, (end-start)/2)
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
