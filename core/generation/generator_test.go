package generation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeneratorConfig() *model.Config {
	config := model.DefaultConfig()
	config.MaxRetries = 2
	config.RequestTimeout = 5 * time.Second
	return config
}

// newMockChatServer echoes a fixed answer and records the last request.
func newMockChatServer(t *testing.T, answer string, lastRequest *openai.ChatCompletionRequest, requestCount *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(lastRequest))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Model:  lastRequest.Model,
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer}},
			},
		}))
	}))
}

func contextWith(query string, contextText string) *model.RetrievedContext {
	return &model.RetrievedContext{
		Query:              query,
		ContextText:        contextText,
		HasRelevantContext: contextText != "",
	}
}

func TestNewGenerator(t *testing.T) {
	logger := helper.NewLogger(io.Discard, slog.LevelInfo)

	t.Run("Valid call NewGenerator", func(t *testing.T) {
		generator, err := NewGenerator("test-key", "", testGeneratorConfig(), logger)
		assert.NoError(t, err)
		assert.NotNil(t, generator)
	})

	t.Run("Invalid call NewGenerator without api key", func(t *testing.T) {
		_, err := NewGenerator("", "", testGeneratorConfig(), logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	})
}

func TestGeneratorGenerate(t *testing.T) {
	logger := helper.NewLogger(io.Discard, slog.LevelInfo)
	ctx := context.Background()

	t.Run("Answer with context is grounded", func(t *testing.T) {
		var lastRequest openai.ChatCompletionRequest
		var requestCount atomic.Int32
		server := newMockChatServer(t, "Refunds must be requested within 30 days.", &lastRequest, &requestCount)
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		retrieved := contextWith("What is the refund window?", "--- refunds.md ---\nRefunds within 30 days.")
		answer, err := generator.Generate(ctx, retrieved, model.PromptVersionStrict)
		require.NoError(t, err)

		assert.Equal(t, "Refunds must be requested within 30 days.", answer.Text)
		assert.True(t, answer.Grounded)
		assert.Equal(t, model.PromptVersionStrict, answer.PromptVersion)
		assert.Equal(t, "What is the refund window?", answer.Question)
		assert.Equal(t, retrieved.ContextText, answer.Context)
	})

	t.Run("Request carries prompt and temperature", func(t *testing.T) {
		var lastRequest openai.ChatCompletionRequest
		var requestCount atomic.Int32
		server := newMockChatServer(t, "An answer.", &lastRequest, &requestCount)
		defer server.Close()

		config := testGeneratorConfig()
		config.Temperature = 0.1
		generator, err := NewGenerator("test-key", server.URL+"/v1", config, logger)
		require.NoError(t, err)

		retrieved := contextWith("A question?", "Some context.")
		_, err = generator.Generate(ctx, retrieved, model.PromptVersionStrict)
		require.NoError(t, err)

		require.Len(t, lastRequest.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, lastRequest.Messages[0].Role)
		assert.Contains(t, lastRequest.Messages[0].Content, "ONLY from the provided context")
		assert.Contains(t, lastRequest.Messages[1].Content, "Some context.")
		assert.Contains(t, lastRequest.Messages[1].Content, "A question?")
		assert.InDelta(t, 0.1, lastRequest.Temperature, 0.0001)
		assert.Equal(t, config.LLMModel, lastRequest.Model)
	})

	t.Run("Strict prompt without context skips the model call", func(t *testing.T) {
		var lastRequest openai.ChatCompletionRequest
		var requestCount atomic.Int32
		server := newMockChatServer(t, "should never be returned", &lastRequest, &requestCount)
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		answer, err := generator.Generate(ctx, contextWith("Unanswerable question?", ""), model.PromptVersionStrict)
		require.NoError(t, err)

		assert.Equal(t, model.InsufficientInformationAnswer, answer.Text)
		assert.False(t, answer.Grounded)
		assert.Equal(t, int32(0), requestCount.Load(), "Expected no model call without relevant context")
	})

	t.Run("Baseline prompt without context still calls the model", func(t *testing.T) {
		var lastRequest openai.ChatCompletionRequest
		var requestCount atomic.Int32
		server := newMockChatServer(t, "A speculative answer.", &lastRequest, &requestCount)
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		answer, err := generator.Generate(ctx, contextWith("Unanswerable question?", ""), model.PromptVersionBaseline)
		require.NoError(t, err)

		assert.Equal(t, int32(1), requestCount.Load())
		assert.Contains(t, lastRequest.Messages[1].Content, model.NoContextMarker,
			"Expected the no-context marker in place of missing context")
		assert.False(t, answer.Grounded, "Expected answers without context to never be grounded")
	})

	t.Run("Refusal text is classified as not grounded", func(t *testing.T) {
		var lastRequest openai.ChatCompletionRequest
		var requestCount atomic.Int32
		server := newMockChatServer(t, model.InsufficientInformationAnswer, &lastRequest, &requestCount)
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		answer, err := generator.Generate(ctx, contextWith("A question?", "Some context."), model.PromptVersionStrict)
		require.NoError(t, err)
		assert.False(t, answer.Grounded, "Expected the canonical refusal to never count as grounded")
	})

	t.Run("Transient server errors are retried", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if count.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": {"message": "server overloaded", "type": "server_error"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "chatcmpl-test", "object": "chat.completion", "choices": [{"message": {"role": "assistant", "content": "Recovered."}}]}`))
		}))
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		answer, err := generator.Generate(ctx, contextWith("A question?", "Some context."), model.PromptVersionStrict)
		require.NoError(t, err)
		assert.Equal(t, "Recovered.", answer.Text)
		assert.Equal(t, int32(2), count.Load())
	})

	t.Run("Client errors are not retried", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
		}))
		defer server.Close()

		generator, err := NewGenerator("test-key", server.URL+"/v1", testGeneratorConfig(), logger)
		require.NoError(t, err)

		_, err = generator.Generate(ctx, contextWith("A question?", "Some context."), model.PromptVersionStrict)
		assert.Error(t, err)

		var genErr *GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.False(t, genErr.Transient)
		assert.Equal(t, int32(1), count.Load(), "Expected no retries for client errors")
	})

	t.Run("Nil retrieved context returns error", func(t *testing.T) {
		generator, err := NewGenerator("test-key", "", testGeneratorConfig(), logger)
		require.NoError(t, err)

		_, err = generator.Generate(ctx, nil, model.PromptVersionStrict)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retrieved context must not be nil")
	})
}

func TestClassifyGrounded(t *testing.T) {
	t.Run("Grounded requires context and a non-refusal answer", func(t *testing.T) {
		assert.True(t, ClassifyGrounded("Refunds within 30 days.", true))
		assert.False(t, ClassifyGrounded("Refunds within 30 days.", false))
		assert.False(t, ClassifyGrounded(model.InsufficientInformationAnswer, true))
		assert.False(t, ClassifyGrounded(model.InsufficientInformationAnswer, false))
	})
}
