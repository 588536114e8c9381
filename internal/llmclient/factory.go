package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
)

// NewClient builds the fast and powerful clients for the configured provider
// and returns a router over them.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastModel := cfg.FastModel
	if fastModel == "" {
		fastModel = cfg.PowerfulModel
	}

	var fast, powerful schemas.LLMClient
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := NewGeminiClient(ctx, cfg, cfg.PowerfulModel, logger)
		if err != nil {
			return nil, err
		}
		f, err := NewGeminiClient(ctx, cfg, fastModel, logger)
		if err != nil {
			return nil, err
		}
		fast, powerful = f, p
	case config.ProviderAzureOpenAI:
		p, err := NewAzureOpenAIClient(cfg, cfg.PowerfulModel, logger)
		if err != nil {
			return nil, err
		}
		f, err := NewAzureOpenAIClient(cfg, fastModel, logger)
		if err != nil {
			return nil, err
		}
		fast, powerful = f, p
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderAzureOpenAI)
	}

	return NewLLMRouter(logger, fast, powerful)
}
