package pipeline

import (
	"fmt"
	"strings"

	"github.com/siherrmann/policyrag/model"
)

// FixedSizeChunker creates a chunker that splits text into fixed-size
// character windows with overlap between consecutive windows. Offsets are
// counted in runes so multi-byte characters are never split.
func FixedSizeChunker(chunkSize int, overlap int) ChunkFunc {
	return func(text string, sourceID string) ([]model.Chunk, error) {
		if chunkSize <= 0 {
			return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
		}
		if overlap < 0 || overlap >= chunkSize {
			return nil, fmt.Errorf("overlap must be in [0, chunk size), got %d", overlap)
		}

		if strings.TrimSpace(text) == "" {
			return []model.Chunk{}, nil
		}

		runes := []rune(text)
		step := chunkSize - overlap

		var chunks []model.Chunk
		chunkIdx := 0

		for start := 0; start < len(runes); start += step {
			end := start + chunkSize
			if end > len(runes) {
				end = len(runes)
			}

			chunks = append(chunks, model.Chunk{
				SourceID:    sourceID,
				StartOffset: start,
				EndOffset:   end,
				Text:        string(runes[start:end]),
				ChunkIndex:  chunkIdx,
			})
			chunkIdx++

			if end == len(runes) {
				break
			}
		}

		return chunks, nil
	}
}

// ParagraphChunker creates a chunker that splits text by blank lines.
// Useful for policy documents where each clause is its own paragraph.
func ParagraphChunker() ChunkFunc {
	return func(text string, sourceID string) ([]model.Chunk, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []model.Chunk
		pos := 0
		chunkIdx := 0

		for _, paragraph := range paragraphs {
			trimmed := strings.TrimSpace(paragraph)
			if trimmed == "" {
				pos += len([]rune(paragraph)) + 2
				continue
			}

			start := pos
			end := pos + len([]rune(trimmed))

			chunks = append(chunks, model.Chunk{
				SourceID:    sourceID,
				StartOffset: start,
				EndOffset:   end,
				Text:        trimmed,
				ChunkIndex:  chunkIdx,
			})

			pos = end + 2
			chunkIdx++
		}

		return chunks, nil
	}
}
