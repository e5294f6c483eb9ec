package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk represents a contiguous slice of a source document, the unit of
// embedding and retrieval. Chunks are created once at ingestion time and
// never mutated.
type Chunk struct {
	SourceID    string `json:"source_id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Text        string `json:"text"`
	ChunkIndex  int    `json:"chunk_index"`
}

// IndexEntry is a chunk together with its embedding vector, as stored in the
// vector index. ID and RID are assigned by the database on insert.
type IndexEntry struct {
	ID        int       `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Chunk     Chunk     `json:"chunk"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
