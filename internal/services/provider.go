package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/allocator"
)

// NewAssistant builds the external assistant for provider. It returns nil
// for "none" or an empty provider, leaving the semantic strategy to fall back.
func NewAssistant(ctx context.Context, provider, apiKey, model string, logger *zap.Logger) (allocator.Assistant, error) {
	switch provider {
	case "", "none":
		return nil, nil
	case "openai":
		return NewOpenAIService(apiKey, model, logger), nil
	case "gemini":
		svc, err := NewGeminiService(ctx, apiKey, model, logger)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown allocation provider %q", provider)
	}
}
