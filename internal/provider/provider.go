package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"docgen-backend/internal/config"
)

// Generator is the contract over language-model providers. Implementations
// take a fully composed prompt and return generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError wraps any failure of a provider call, carrying the
// underlying cause for the job's failure reason.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ForModel selects a provider by model name. Model names beginning with
// "gpt" route to the OpenAI-compatible client.
func ForModel(cfg config.Config, log *zap.SugaredLogger, model string) (Generator, error) {
	if strings.HasPrefix(model, "gpt") {
		return NewOpenAI(cfg, log, model), nil
	}
	return nil, fmt.Errorf("no provider found for model %q", model)
}
