package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

// GenerationError wraps a failed chat completion request. Transient is true
// for rate limits and server errors, which the generator retries with backoff.
type GenerationError struct {
	Model     string
	Err       error
	Transient bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation request to %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

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

// Generator produces grounded answers from retrieved context through the
// OpenAI chat completions API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewGenerator creates a generator for the configured chat model.
// An empty baseURL uses the public OpenAI endpoint.
func NewGenerator(apiKey string, baseURL string, config *model.Config, logger *slog.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required, set OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       config.LLMModel,
		temperature: config.Temperature,
		maxRetries:  config.MaxRetries,
		timeout:     config.RequestTimeout,
		logger:      logger,
	}, nil
}

// Generate produces an answer for the question from the retrieved context.
//
// With the strict prompt and no relevant context the canonical refusal is
// returned without a model call. The baseline prompt always calls the model,
// passing a no-context marker in place of the missing context.
func (g *Generator) Generate(ctx context.Context, retrieved *model.RetrievedContext, version model.PromptVersion) (*model.Answer, error) {
	if retrieved == nil {
		return nil, helper.NewError("answer generation", fmt.Errorf("retrieved context must not be nil"))
	}

	if version == model.PromptVersionStrict && !retrieved.HasRelevantContext {
		if g.logger != nil {
			g.logger.Info("no relevant context, skipping model call",
				slog.String("prompt_version", version.String()))
		}
		return &model.Answer{
			Question:      retrieved.Query,
			Text:          model.InsufficientInformationAnswer,
			Grounded:      false,
			PromptVersion: version,
			Context:       retrieved.ContextText,
		}, nil
	}

	request := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: version.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: version.UserPrompt(retrieved.Query, retrieved.ContextText)},
		},
	}

	var response openai.ChatCompletionResponse
	operation := func() error {
		requestCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		var err error
		response, err = g.client.CreateChatCompletion(requestCtx, request)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return &GenerationError{Model: g.model, Err: err, Transient: true}
		}
		return backoff.Permanent(&GenerationError{Model: g.model, Err: err})
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.maxRetries))
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, &GenerationError{Model: g.model, Err: fmt.Errorf("response contained no choices")}
	}

	text := strings.TrimSpace(response.Choices[0].Message.Content)

	return &model.Answer{
		Question:      retrieved.Query,
		Text:          text,
		Grounded:      ClassifyGrounded(text, retrieved.HasRelevantContext),
		PromptVersion: version,
		Context:       retrieved.ContextText,
	}, nil
}

// ClassifyGrounded reports whether an answer is grounded in retrieved
// context. A refusal is never grounded, and neither is an answer produced
// without relevant context.
func ClassifyGrounded(answer string, hasRelevantContext bool) bool {
	if !hasRelevantContext {
		return false
	}
	return !strings.Contains(answer, model.InsufficientInformationAnswer)
}
