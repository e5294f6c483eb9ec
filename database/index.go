package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
	loadSql "github.com/siherrmann/policyrag/sql"
)

// ErrIndexMissing is returned when the query path runs against an index that
// holds no entries yet. Run ingest first.
var ErrIndexMissing = errors.New("vector index is empty, run ingest first")

// ErrDimensionMismatch is returned when an index exists with a different
// embedding dimension than the configured one, or when a query vector has the
// wrong dimension. Mixing dimensions would silently corrupt similarity
// scores, so this fails loudly.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// IndexDBHandlerFunctions defines the interface for vector index operations.
type IndexDBHandlerFunctions interface {
	Rebuild(ctx context.Context, entries []*model.IndexEntry) error
	Insert(ctx context.Context, entries []*model.IndexEntry) error
	QuerySimilar(ctx context.Context, embedding []float32, topK int) ([]*model.RetrievalResult, error)
	Exists() (bool, error)
	CountEntries() (int64, error)
	Drop(ctx context.Context) error
}

// IndexDBHandler handles all operations on one named vector index
type IndexDBHandler struct {
	db        *helper.Database
	name      string
	dimension int
}

// NewIndexDBHandler opens the named vector index, creating it if necessary.
// Opening is idempotent: an existing index with a matching dimension is
// reused; a mismatched dimension is a configuration error. If force is true
// the SQL functions are reloaded even if they already exist.
func NewIndexDBHandler(db *helper.Database, name string, dimension int, force bool) (*IndexDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if dimension <= 0 {
		return nil, helper.NewError("index dimension validation", fmt.Errorf("dimension must be positive, got %d", dimension))
	}

	indexDbHandler := &IndexDBHandler{
		db:        db,
		name:      name,
		dimension: dimension,
	}

	err := loadSql.LoadIndexSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load index sql", err)
	}

	err = indexDbHandler.createOrOpen()
	if err != nil {
		return nil, err
	}

	db.Logger.Info("Initialized IndexDBHandler", slog.String("index", name), slog.Int("dimension", dimension))

	return indexDbHandler, nil
}

// Name returns the index name
func (h *IndexDBHandler) Name() string {
	return h.name
}

// Dimension returns the embedding dimension the index was created with
func (h *IndexDBHandler) Dimension() int {
	return h.dimension
}

// createOrOpen registers the index and creates its entries table.
// A registered index with a different dimension fails with ErrDimensionMismatch.
func (h *IndexDBHandler) createOrOpen() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var registered sql.NullInt64
	err := h.db.Instance.QueryRowContext(ctx, `SELECT index_dimension($1);`, h.name).Scan(&registered)
	if err != nil {
		return helper.NewError("check index dimension", err)
	}

	if registered.Valid && int(registered.Int64) != h.dimension {
		return helper.NewError("open index", fmt.Errorf(
			"%w: index %q has dimension %d, configured %d",
			ErrDimensionMismatch, h.name, registered.Int64, h.dimension,
		))
	}

	_, err = h.db.Instance.ExecContext(ctx, `SELECT init_index($1, $2);`, h.name, h.dimension)
	if err != nil {
		return helper.NewError("initialize index", err)
	}

	h.db.Logger.Info("Checked/created vector index", slog.String("index", h.name))

	return nil
}

// Rebuild replaces the full index content with the given entries in one
// transaction. This is the default ingestion semantics: a full-corpus rebuild
// avoids stale chunk accumulation, and the surrounding transaction means
// concurrent readers never observe a partially built index.
func (h *IndexDBHandler) Rebuild(ctx context.Context, entries []*model.IndexEntry) error {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin rebuild transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `SELECT clear_index($1);`, h.name)
	if err != nil {
		return helper.NewError("clear index", err)
	}

	for i, entry := range entries {
		if err := h.insertEntry(ctx, tx, entry); err != nil {
			return helper.NewError(fmt.Sprintf("insert entry %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit rebuild transaction", err)
	}

	h.db.Logger.Info("Rebuilt vector index", slog.String("index", h.name), slog.Int("num_entries", len(entries)))

	return nil
}

// Insert adds entries to the index without clearing it (additive ingestion)
func (h *IndexDBHandler) Insert(ctx context.Context, entries []*model.IndexEntry) error {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin insert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, entry := range entries {
		if err := h.insertEntry(ctx, tx, entry); err != nil {
			return helper.NewError(fmt.Sprintf("insert entry %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit insert transaction", err)
	}

	return nil
}

func (h *IndexDBHandler) insertEntry(ctx context.Context, tx *sql.Tx, entry *model.IndexEntry) error {
	if len(entry.Embedding) != h.dimension {
		return fmt.Errorf("%w: entry has dimension %d, index %q expects %d",
			ErrDimensionMismatch, len(entry.Embedding), h.name, h.dimension)
	}

	row := tx.QueryRowContext(
		ctx,
		`SELECT * FROM insert_entry($1, $2, $3, $4, $5, $6, $7, $8)`,
		h.name,
		entry.Chunk.SourceID,
		entry.Chunk.StartOffset,
		entry.Chunk.EndOffset,
		entry.Chunk.Text,
		entry.Chunk.ChunkIndex,
		pq.Array(entry.Embedding),
		entry.Metadata,
	)

	err := row.Scan(
		&entry.ID,
		&entry.RID,
		&entry.Chunk.SourceID,
		&entry.Chunk.StartOffset,
		&entry.Chunk.EndOffset,
		&entry.Chunk.Text,
		&entry.Chunk.ChunkIndex,
		&entry.Metadata,
		&entry.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// QuerySimilar returns up to topK nearest entries by cosine similarity,
// strictly descending, ties broken by insertion order. It fails with
// ErrIndexMissing when the index holds no entries and with
// ErrDimensionMismatch when the query vector has the wrong dimension.
func (h *IndexDBHandler) QuerySimilar(ctx context.Context, embedding []float32, topK int) ([]*model.RetrievalResult, error) {
	if len(embedding) != h.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index %q expects %d",
			ErrDimensionMismatch, len(embedding), h.name, h.dimension)
	}

	count, err := h.CountEntries()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: index %q", ErrIndexMissing, h.name)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM query_entries($1, $2, $3)`,
		h.name,
		pgvector.NewVector(embedding),
		topK,
	)
	if err != nil {
		return nil, helper.NewError("query entries", err)
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	for rows.Next() {
		entry := &model.IndexEntry{}
		var similarity float64

		err := rows.Scan(
			&entry.ID,
			&entry.RID,
			&entry.Chunk.SourceID,
			&entry.Chunk.StartOffset,
			&entry.Chunk.EndOffset,
			&entry.Chunk.Text,
			&entry.Chunk.ChunkIndex,
			&entry.Metadata,
			&entry.CreatedAt,
			&similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, &model.RetrievalResult{
			Entry:      entry,
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("iterate rows", err)
	}

	return results, nil
}

// Exists reports whether the index is registered
func (h *IndexDBHandler) Exists() (bool, error) {
	var registered sql.NullInt64
	err := h.db.Instance.QueryRow(`SELECT index_dimension($1);`, h.name).Scan(&registered)
	if err != nil {
		return false, helper.NewError("check index existence", err)
	}
	return registered.Valid, nil
}

// CountEntries returns the number of entries in the index
func (h *IndexDBHandler) CountEntries() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_entries($1);`, h.name).Scan(&count)
	if err != nil {
		return 0, helper.NewError("count entries", err)
	}
	return count, nil
}

// Drop removes the index and its entries table
func (h *IndexDBHandler) Drop(ctx context.Context) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT drop_index($1);`, h.name)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped vector index", slog.String("index", h.name))

	return nil
}
