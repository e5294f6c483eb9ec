package pipeline

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/policyrag/helper"
)

const (
	localModelName      = "sentence-transformers/all-MiniLM-L6-v2"
	localModelDimension = 384
)

// LocalEmbedder embeds text with a local sentence transformer model via
// hugot, no API key required. The all-MiniLM-L6-v2 model produces
// 384-dimensional embeddings.
type LocalEmbedder struct {
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
}

// NewLocalEmbedder downloads the model if needed and initializes a hugot
// session with the Go backend. Call Close when done.
func NewLocalEmbedder() (*LocalEmbedder, error) {
	modelPath, err := helper.PrepareModel(localModelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &LocalEmbedder{
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := sentencePipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}, nil
}

// Embed generates an embedding vector for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in input order.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings, err := e.run(texts)
	if err != nil {
		return nil, &EmbeddingError{Model: localModelName, Err: err}
	}
	if len(embeddings) != len(texts) {
		return nil, &EmbeddingError{Model: localModelName, Err: fmt.Errorf(
			"got %d embeddings for %d texts", len(embeddings), len(texts))}
	}

	return embeddings, nil
}

// Dimension returns the embedding dimension of the local model.
func (e *LocalEmbedder) Dimension() int {
	return localModelDimension
}

// ModelInfo returns the local model identifier.
func (e *LocalEmbedder) ModelInfo() string {
	return localModelName
}

// Close releases the hugot session.
func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}
