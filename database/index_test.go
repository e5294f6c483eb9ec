package database

import (
	"context"
	"testing"
	"time"

	"github.com/siherrmann/policyrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(text string, embedding []float32, chunkIndex int) *model.IndexEntry {
	return &model.IndexEntry{
		Chunk: model.Chunk{
			SourceID:    "policies/test.md",
			StartOffset: chunkIndex * 10,
			EndOffset:   chunkIndex*10 + len(text),
			Text:        text,
			ChunkIndex:  chunkIndex,
		},
		Embedding: embedding,
		Metadata:  model.Metadata{},
	}
}

// unitVector returns a 4-dim unit vector pointing along the given axis
func unitVector(axis int) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	return v
}

func TestNewIndexDBHandler(t *testing.T) {
	db := initDB(t)

	t.Run("Valid call NewIndexDBHandler", func(t *testing.T) {
		handler, err := NewIndexDBHandler(db, "create-test", 4, true)
		assert.NoError(t, err, "Expected NewIndexDBHandler to not return an error")
		require.NotNil(t, handler, "Expected NewIndexDBHandler to return a non-nil instance")
		assert.Equal(t, "create-test", handler.Name())
		assert.Equal(t, 4, handler.Dimension())
	})

	t.Run("Opening twice with same dimension is idempotent", func(t *testing.T) {
		first, err := NewIndexDBHandler(db, "idempotent-test", 4, false)
		require.NoError(t, err)

		ctx := context.Background()
		err = first.Insert(ctx, []*model.IndexEntry{testEntry("one entry", unitVector(0), 0)})
		require.NoError(t, err)

		second, err := NewIndexDBHandler(db, "idempotent-test", 4, false)
		assert.NoError(t, err, "Expected reopening the index to not return an error")

		count, err := second.CountEntries()
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "Expected reopening to not duplicate entries")
	})

	t.Run("Opening with mismatched dimension fails", func(t *testing.T) {
		_, err := NewIndexDBHandler(db, "dimension-test", 4, false)
		require.NoError(t, err)

		_, err = NewIndexDBHandler(db, "dimension-test", 8, false)
		assert.Error(t, err, "Expected dimension mismatch to be a configuration error")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Invalid call NewIndexDBHandler with nil database", func(t *testing.T) {
		_, err := NewIndexDBHandler(nil, "nil-test", 4, false)
		assert.Error(t, err, "Expected error when creating IndexDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil")
	})

	t.Run("Invalid call NewIndexDBHandler with non-positive dimension", func(t *testing.T) {
		_, err := NewIndexDBHandler(db, "zero-dim-test", 0, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "dimension must be positive")
	})
}

func TestIndexInsertAndQuery(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	handler, err := NewIndexDBHandler(db, "query-test", 4, true)
	require.NoError(t, err)

	entries := []*model.IndexEntry{
		testEntry("Refunds must be requested within 30 days of purchase.", []float32{1, 0, 0, 0}, 0),
		testEntry("Shipping takes 5 to 7 business days.", []float32{0, 1, 0, 0}, 1),
		testEntry("Returns require the original receipt.", []float32{0.9, 0.1, 0, 0}, 2),
	}
	err = handler.Rebuild(ctx, entries)
	require.NoError(t, err)

	t.Run("Insert assigns ids and timestamps", func(t *testing.T) {
		for _, entry := range entries {
			assert.NotZero(t, entry.ID, "Expected inserted entry to have an ID")
			assert.WithinDuration(t, time.Now(), entry.CreatedAt, 5*time.Second)
		}
	})

	t.Run("Query returns exact match with similarity 1.0", func(t *testing.T) {
		results, err := handler.QuerySimilar(ctx, []float32{1, 0, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Contains(t, results[0].Entry.Chunk.Text, "30 days")
		assert.InDelta(t, 1.0, results[0].Similarity, 0.0001, "Identical vectors should have cosine similarity 1.0")
	})

	t.Run("Query returns results in descending similarity order", func(t *testing.T) {
		results, err := handler.QuerySimilar(ctx, []float32{1, 0, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity,
				"Expected results sorted by descending similarity")
		}
		assert.Contains(t, results[0].Entry.Chunk.Text, "30 days")
		assert.Contains(t, results[1].Entry.Chunk.Text, "original receipt")
	})

	t.Run("Query respects top_k limit", func(t *testing.T) {
		results, err := handler.QuerySimilar(ctx, []float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("Ties break by insertion order", func(t *testing.T) {
		tieHandler, err := NewIndexDBHandler(db, "tie-test", 4, false)
		require.NoError(t, err)

		err = tieHandler.Rebuild(ctx, []*model.IndexEntry{
			testEntry("first inserted", []float32{0, 0, 1, 0}, 0),
			testEntry("second inserted", []float32{0, 0, 1, 0}, 1),
		})
		require.NoError(t, err)

		results, err := tieHandler.QuerySimilar(ctx, []float32{0, 0, 1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first inserted", results[0].Entry.Chunk.Text)
		assert.Equal(t, "second inserted", results[1].Entry.Chunk.Text)
	})

	t.Run("Query with wrong dimension fails loudly", func(t *testing.T) {
		_, err := handler.QuerySimilar(ctx, []float32{1, 0}, 3)
		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Insert with wrong dimension fails loudly", func(t *testing.T) {
		err := handler.Insert(ctx, []*model.IndexEntry{testEntry("bad", []float32{1, 0}, 0)})
		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestIndexRebuild(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	handler, err := NewIndexDBHandler(db, "rebuild-test", 4, false)
	require.NoError(t, err)

	err = handler.Rebuild(ctx, []*model.IndexEntry{
		testEntry("old content", unitVector(0), 0),
		testEntry("more old content", unitVector(1), 1),
	})
	require.NoError(t, err)

	t.Run("Rebuild replaces all entries", func(t *testing.T) {
		err := handler.Rebuild(ctx, []*model.IndexEntry{
			testEntry("new content", unitVector(2), 0),
		})
		require.NoError(t, err)

		count, err := handler.CountEntries()
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "Expected rebuild to drop stale entries")

		results, err := handler.QuerySimilar(ctx, unitVector(2), 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "new content", results[0].Entry.Chunk.Text)
	})
}

func TestIndexMissing(t *testing.T) {
	db := initDB(t)
	ctx := context.Background()

	t.Run("Query against empty index returns ErrIndexMissing", func(t *testing.T) {
		handler, err := NewIndexDBHandler(db, "empty-test", 4, false)
		require.NoError(t, err)

		_, err = handler.QuerySimilar(ctx, unitVector(0), 3)
		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrIndexMissing)
	})

	t.Run("Exists reflects registration", func(t *testing.T) {
		handler, err := NewIndexDBHandler(db, "exists-test", 4, false)
		require.NoError(t, err)

		exists, err := handler.Exists()
		require.NoError(t, err)
		assert.True(t, exists)

		err = handler.Drop(ctx)
		require.NoError(t, err)

		exists, err = handler.Exists()
		require.NoError(t, err)
		assert.False(t, exists, "Expected dropped index to not exist")
	})
}
