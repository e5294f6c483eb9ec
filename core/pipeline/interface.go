package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
	"golang.org/x/sync/errgroup"
)

// ChunkFunc is a function that splits document text into ordered chunks.
// The sourceID is carried into every chunk so retrieval can report where
// a passage came from.
type ChunkFunc func(text string, sourceID string) ([]model.Chunk, error)

// Embedder generates embedding vectors for text.
// Implementations must return vectors of exactly Dimension() length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// Pipeline combines chunking and embedding into the ingestion path.
type Pipeline struct {
	Chunker     ChunkFunc
	Embedder    Embedder
	Concurrency int
	Logger      *slog.Logger
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder Embedder, concurrency int, logger *slog.Logger) (*Pipeline, error) {
	if chunker == nil {
		return nil, helper.NewError("pipeline creation", fmt.Errorf("chunker must not be nil"))
	}
	if embedder == nil {
		return nil, helper.NewError("pipeline creation", fmt.Errorf("embedder must not be nil"))
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		Chunker:     chunker,
		Embedder:    embedder,
		Concurrency: concurrency,
		Logger:      logger,
	}, nil
}

// Process chunks a document and embeds every chunk, returning index entries
// in chunk order. Embedding runs concurrently up to Concurrency; the first
// error cancels the remaining work.
func (p *Pipeline) Process(ctx context.Context, document *model.Document) ([]*model.IndexEntry, error) {
	chunks, err := p.Chunker(document.Content, document.Source)
	if err != nil {
		return nil, helper.NewError("chunking document", err)
	}
	if len(chunks) == 0 {
		return []*model.IndexEntry{}, nil
	}

	entries := make([]*model.IndexEntry, len(chunks))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.Concurrency)

	for i, chunk := range chunks {
		group.Go(func() error {
			embedding, err := p.Embedder.Embed(groupCtx, chunk.Text)
			if err != nil {
				return helper.NewError("embedding chunk", err)
			}
			if len(embedding) != p.Embedder.Dimension() {
				return helper.NewError("embedding chunk", fmt.Errorf(
					"got %d dimensions, expected %d", len(embedding), p.Embedder.Dimension()))
			}

			mu.Lock()
			entries[i] = &model.IndexEntry{
				Chunk:     chunk,
				Embedding: embedding,
				Metadata: model.Metadata{
					"title":           document.Title,
					"embedding_model": p.Embedder.ModelInfo(),
				},
			}
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	if p.Logger != nil {
		p.Logger.Info("processed document",
			slog.String("source", document.Source),
			slog.Int("chunks", len(entries)))
	}

	return entries, nil
}

// ProcessAll processes multiple documents sequentially and concatenates
// their index entries.
func (p *Pipeline) ProcessAll(ctx context.Context, documents []*model.Document) ([]*model.IndexEntry, error) {
	var all []*model.IndexEntry
	for _, document := range documents {
		entries, err := p.Process(ctx, document)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
