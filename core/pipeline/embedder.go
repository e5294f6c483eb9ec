package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/policyrag/model"
)

// EmbeddingError wraps a failed embedding request. Transient is true for
// rate limits and server errors, which the embedder retries with backoff.
type EmbeddingError struct {
	Model     string
	Err       error
	Transient bool
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding request to %s failed: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// isTransient reports whether an OpenAI API error is worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimension  int
	maxRetries int
	timeout    time.Duration
}

// NewOpenAIEmbedder creates an embedder for the configured embedding model.
// An empty baseURL uses the public OpenAI endpoint.
func NewOpenAIEmbedder(apiKey string, baseURL string, config *model.Config) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required, set OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.EmbeddingModel,
		dimension:  config.EmbeddingDimension,
		maxRetries: config.MaxRetries,
		timeout:    config.RequestTimeout,
	}, nil
}

// Embed generates an embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one request.
// The result order matches the input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	request := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var response openai.EmbeddingResponse
	operation := func() error {
		requestCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		var err error
		response, err = e.client.CreateEmbeddings(requestCtx, request)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return &EmbeddingError{Model: e.model, Err: err, Transient: true}
		}
		return backoff.Permanent(&EmbeddingError{Model: e.model, Err: err})
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(e.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	if len(response.Data) != len(texts) {
		return nil, &EmbeddingError{Model: e.model, Err: fmt.Errorf(
			"got %d embeddings for %d texts", len(response.Data), len(texts))}
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range response.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, &EmbeddingError{Model: e.model, Err: fmt.Errorf(
				"embedding index %d out of range", data.Index)}
		}
		if len(data.Embedding) != e.dimension {
			return nil, &EmbeddingError{Model: e.model, Err: fmt.Errorf(
				"got %d dimensions, expected %d", len(data.Embedding), e.dimension)}
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}

// Dimension returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelInfo returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelInfo() string {
	return e.model
}
