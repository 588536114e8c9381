package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AzureOpenAIClient implements schemas.LLMClient against an Azure OpenAI
// chat-completions deployment.
type AzureOpenAIClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	TopP           float64             `json:"top_p,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewAzureOpenAIClient initializes a client for one deployment.
func NewAzureOpenAIClient(cfg config.LLMConfig, deployment string, logger *zap.Logger) (*AzureOpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Azure OpenAI API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("Azure OpenAI endpoint is required")
	}
	if deployment == "" {
		return nil, fmt.Errorf("Azure OpenAI deployment is required")
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(cfg.Endpoint, "/"), url.PathEscape(deployment), url.QueryEscape(cfg.APIVersion))

	return &AzureOpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger.Named("llm_client.azure_openai").With(zap.String("deployment", deployment)),
	}, nil
}

// Generate posts a chat completion and returns the first choice's content.
func (c *AzureOpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var responseContent string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)
		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			c.logger.Error("Azure OpenAI API returned error status", zap.Int("status", resp.StatusCode), zap.String("response", string(respBody)))
			return statusError("azure openai", resp.StatusCode, string(respBody))
		}

		var payload chatResponse
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if payload.Error.Message != "" {
			return backoff.Permanent(fmt.Errorf("azure openai API error: %s", payload.Error.Message))
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("azure openai API returned no choices"))
		}
		choice := payload.Choices[0]
		if choice.FinishReason == "content_filter" {
			return backoff.Permanent(fmt.Errorf("azure openai API filtered the response"))
		}

		c.logger.Info("LLM generation complete (Azure OpenAI)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", payload.Usage.PromptTokens),
			zap.Int("completion_tokens", payload.Usage.CompletionTokens),
			zap.Int("total_tokens", payload.Usage.TotalTokens),
		)
		responseContent = choice.Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(newBackOff(c.config.MaxElapsed), ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *AzureOpenAIClient) buildRequest(req schemas.GenerationRequest) chatRequest {
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	out := chatRequest{
		Messages:    messages,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
	}
	if out.TopP == 0 {
		out.TopP = float64(c.config.TopP)
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = c.config.MaxTokens
	}
	if req.Options.ForceJSONFormat {
		out.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	return out
}

// Close releases idle connections.
func (c *AzureOpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
