package services

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/logging"
)

const defaultOpenAIModel = "gpt-5-mini"

// GenerateSchema reflects T into a strict JSON schema for structured output.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var allocationResponseSchema = GenerateSchema[allocator.AllocationResponse]()

var _ allocator.Assistant = (*OpenAIService)(nil)

type OpenAIService struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIService(apiKey, model string, logger *zap.Logger) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

// NewOpenAIServiceWithConfig allows pointing the client at a compatible endpoint.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string, logger *zap.Logger) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logging.OrNop(logger).Named("openai"),
	}
}

// ProposeAllocation asks the chat model for a sparse subtitle-to-image
// assignment constrained to the allocation response schema.
func (s *OpenAIService) ProposeAllocation(ctx context.Context, system, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        "image_allocation",
				Description: "Images assigned to a subset of the section's subtitles",
				Schema:      allocationResponseSchema,
				Strict:      true,
			},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := resp.Choices[0].Message.Content
	s.logger.Debug("allocation reply received",
		zap.String("model", s.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("reply_len", len(content)))

	return content, nil
}
