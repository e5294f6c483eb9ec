package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/policyrag/core/pipeline"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

// VectorIndex is the similarity search surface the engine queries.
// database.IndexDBHandler satisfies it.
type VectorIndex interface {
	QuerySimilar(ctx context.Context, embedding []float32, topK int) ([]*model.RetrievalResult, error)
}

// Engine retrieves the chunks most similar to a query and assembles them
// into a context block for generation.
type Engine struct {
	index    VectorIndex
	embedder pipeline.Embedder
	logger   *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(index VectorIndex, embedder pipeline.Embedder, logger *slog.Logger) (*Engine, error) {
	if index == nil {
		return nil, helper.NewError("engine creation", fmt.Errorf("index must not be nil"))
	}
	if embedder == nil {
		return nil, helper.NewError("engine creation", fmt.Errorf("embedder must not be nil"))
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Retrieve embeds the query, fetches the top k most similar chunks and drops
// every result below the similarity threshold. Results keep their descending
// similarity order. HasRelevantContext is false when nothing survives the
// threshold, which callers must treat as "no grounding available" rather
// than an error.
func (e *Engine) Retrieve(ctx context.Context, query string, config *model.QueryConfig) (*model.RetrievedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, helper.NewError("query validation", fmt.Errorf("query must not be empty"))
	}
	if config == nil {
		return nil, helper.NewError("query validation", fmt.Errorf("query config must not be nil"))
	}

	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, helper.NewError("embedding query", err)
	}

	results, err := e.index.QuerySimilar(ctx, embedding, config.TopK)
	if err != nil {
		return nil, err
	}

	filtered := make([]*model.RetrievalResult, 0, len(results))
	for _, result := range results {
		if result.Similarity >= config.SimilarityThreshold {
			filtered = append(filtered, result)
		}
	}

	if e.logger != nil {
		e.logger.Info("retrieved context",
			slog.Int("candidates", len(results)),
			slog.Int("above_threshold", len(filtered)),
			slog.Float64("threshold", config.SimilarityThreshold))
	}

	return &model.RetrievedContext{
		Query:              query,
		Results:            filtered,
		ContextText:        AssembleContext(filtered),
		HasRelevantContext: len(filtered) > 0,
	}, nil
}

// AssembleContext concatenates retrieved chunks into a single context block.
// Each chunk is prefixed with its source so the model can cite where a
// passage came from.
func AssembleContext(results []*model.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	sections := make([]string, len(results))
	for i, result := range results {
		sections[i] = fmt.Sprintf("--- %s ---\n%s", result.Entry.Chunk.SourceID, result.Entry.Chunk.Text)
	}
	return strings.Join(sections, "\n\n")
}
