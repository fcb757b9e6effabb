package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/logging"
)

const defaultGeminiModel = "gemini-2.5-flash"

// allocationSchema mirrors allocator.AllocationResponse in Gemini's schema dialect.
var allocationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"assignments": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"subtitle_id": {Type: genai.TypeInteger, Description: "ID of the subtitle the image is shown for"},
					"image":       {Type: genai.TypeString, Description: "File name of the chosen image"},
				},
				Required: []string{"subtitle_id", "image"},
			},
		},
	},
	Required: []string{"assignments"},
}

var _ allocator.Assistant = (*GeminiService)(nil)

type GeminiService struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiService(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiService, error) {
	return NewGeminiServiceWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, logger)
}

func NewGeminiServiceWithConfig(ctx context.Context, cfg *genai.ClientConfig, model string, logger *zap.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiService{
		client: client,
		model:  model,
		logger: logging.OrNop(logger).Named("gemini"),
	}, nil
}

// ProposeAllocation sends the allocation prompt with a JSON response schema.
func (s *GeminiService) ProposeAllocation(ctx context.Context, system, prompt string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    allocationSchema,
	})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no response from gemini")
	}

	s.logger.Debug("allocation reply received",
		zap.String("model", s.model),
		zap.Int("reply_len", len(text)))
	return text, nil
}
