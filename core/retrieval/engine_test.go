package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns canned results, ignoring the query embedding.
type fakeIndex struct {
	results []*model.RetrievalResult
	err     error
	lastK   int
}

func (f *fakeIndex) QuerySimilar(ctx context.Context, embedding []float32, topK int) ([]*model.RetrievalResult, error) {
	f.lastK = topK
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embedding, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

func (f *fakeEmbedder) Dimension() int {
	return 4
}

func (f *fakeEmbedder) ModelInfo() string {
	return "fake-embedder"
}

func resultWithScore(text string, source string, similarity float64) *model.RetrievalResult {
	return &model.RetrievalResult{
		Entry: &model.IndexEntry{
			Chunk: model.Chunk{
				SourceID: source,
				Text:     text,
			},
		},
		Similarity: similarity,
	}
}

func TestNewEngine(t *testing.T) {
	logger := helper.NewLogger(io.Discard, slog.LevelInfo)

	t.Run("Valid call NewEngine", func(t *testing.T) {
		engine, err := NewEngine(&fakeIndex{}, &fakeEmbedder{}, logger)
		assert.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("Invalid call NewEngine with nil index", func(t *testing.T) {
		_, err := NewEngine(nil, &fakeEmbedder{}, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "index must not be nil")
	})

	t.Run("Invalid call NewEngine with nil embedder", func(t *testing.T) {
		_, err := NewEngine(&fakeIndex{}, nil, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "embedder must not be nil")
	})
}

func TestEngineRetrieve(t *testing.T) {
	logger := helper.NewLogger(io.Discard, slog.LevelInfo)
	ctx := context.Background()

	t.Run("Top k and threshold are applied together", func(t *testing.T) {
		index := &fakeIndex{results: []*model.RetrievalResult{
			resultWithScore("refund window clause", "refunds.md", 0.9),
			resultWithScore("return shipping clause", "returns.md", 0.6),
			resultWithScore("warranty clause", "warranty.md", 0.5),
			resultWithScore("unrelated clause", "misc.md", 0.2),
			resultWithScore("another unrelated clause", "misc.md", 0.1),
		}}
		engine, err := NewEngine(index, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		retrieved, err := engine.Retrieve(ctx, "What is the refund window?", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		require.NoError(t, err)

		assert.Equal(t, 3, index.lastK, "Expected top k to bound the index query")
		require.Len(t, retrieved.Results, 3, "Expected all top 3 results above threshold to survive")
		assert.True(t, retrieved.HasRelevantContext)
		assert.Equal(t, 0.9, retrieved.Results[0].Similarity)
		assert.Equal(t, 0.5, retrieved.Results[2].Similarity)
	})

	t.Run("Results below threshold are dropped", func(t *testing.T) {
		index := &fakeIndex{results: []*model.RetrievalResult{
			resultWithScore("barely related", "a.md", 0.25),
			resultWithScore("not related", "b.md", 0.1),
		}}
		engine, err := NewEngine(index, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		retrieved, err := engine.Retrieve(ctx, "Something off topic", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		require.NoError(t, err)

		assert.Empty(t, retrieved.Results)
		assert.False(t, retrieved.HasRelevantContext, "Expected no relevant context below threshold")
		assert.Empty(t, retrieved.ContextText)
	})

	t.Run("Result exactly at threshold survives", func(t *testing.T) {
		index := &fakeIndex{results: []*model.RetrievalResult{
			resultWithScore("borderline clause", "a.md", 0.3),
		}}
		engine, err := NewEngine(index, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		retrieved, err := engine.Retrieve(ctx, "Borderline question", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		require.NoError(t, err)
		assert.Len(t, retrieved.Results, 1, "Expected threshold comparison to be inclusive")
	})

	t.Run("Context text carries source headers in order", func(t *testing.T) {
		index := &fakeIndex{results: []*model.RetrievalResult{
			resultWithScore("Refunds within 30 days.", "refunds.md", 0.9),
			resultWithScore("Returns need a receipt.", "returns.md", 0.6),
		}}
		engine, err := NewEngine(index, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		retrieved, err := engine.Retrieve(ctx, "Refund policy?", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		require.NoError(t, err)

		expected := "--- refunds.md ---\nRefunds within 30 days.\n\n--- returns.md ---\nReturns need a receipt."
		assert.Equal(t, expected, retrieved.ContextText)
		assert.Equal(t, "Refund policy?", retrieved.Query)
	})

	t.Run("Empty query returns error", func(t *testing.T) {
		engine, err := NewEngine(&fakeIndex{}, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		_, err = engine.Retrieve(ctx, "   ", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "query must not be empty")
	})

	t.Run("Nil query config returns error", func(t *testing.T) {
		engine, err := NewEngine(&fakeIndex{}, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		_, err = engine.Retrieve(ctx, "A question", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "query config must not be nil")
	})

	t.Run("Embedder errors are wrapped", func(t *testing.T) {
		engine, err := NewEngine(&fakeIndex{}, &fakeEmbedder{err: fmt.Errorf("api down")}, logger)
		require.NoError(t, err)

		_, err = engine.Retrieve(ctx, "A question", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "embedding query")
	})

	t.Run("Index errors pass through unchanged", func(t *testing.T) {
		indexErr := fmt.Errorf("index gone")
		engine, err := NewEngine(&fakeIndex{err: indexErr}, &fakeEmbedder{}, logger)
		require.NoError(t, err)

		_, err = engine.Retrieve(ctx, "A question", &model.QueryConfig{TopK: 3, SimilarityThreshold: 0.3})
		assert.ErrorIs(t, err, indexErr)
	})
}
