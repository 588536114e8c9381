package llmclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/infra-healer/api/schemas"
	"github.com/xkilldash9x/infra-healer/internal/config"
	"github.com/xkilldash9x/infra-healer/internal/mocks"
)

// -- Test Setup Helpers --

func validLLMConfig(provider config.LLMProvider, endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Provider:      provider,
		FastModel:     "fast-model",
		PowerfulModel: "powerful-model",
		APIKey:        "test-api-key",
		Endpoint:      endpoint,
		APIVersion:    "2024-06-01",
		APITimeout:    5 * time.Second,
		MaxElapsed:    5 * time.Second,
		MaxTokens:     256,
	}
}

func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.1},
	}
}

// -- Router --

func TestLLMRouter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("requires both tiers", func(t *testing.T) {
		_, err := NewLLMRouter(logger, new(mocks.MockLLMClient), nil)
		assert.Error(t, err)
	})

	t.Run("routes by tier and defaults to powerful", func(t *testing.T) {
		fast := new(mocks.MockLLMClient)
		powerful := new(mocks.MockLLMClient)
		fast.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool { return r.Tier == schemas.TierFast })).
			Return("fast answer", nil)
		powerful.On("Generate", mock.Anything, mock.Anything).Return("powerful answer", nil)

		router, err := NewLLMRouter(logger, fast, powerful)
		require.NoError(t, err)

		out, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
		require.NoError(t, err)
		assert.Equal(t, "fast answer", out)

		out, err = router.Generate(context.Background(), schemas.GenerationRequest{})
		require.NoError(t, err)
		assert.Equal(t, "powerful answer", out)

		_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: "huge"})
		assert.ErrorContains(t, err, "no LLM client configured for tier: huge")
	})

	t.Run("close closes each distinct client once", func(t *testing.T) {
		shared := new(mocks.MockLLMClient)
		shared.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(logger, shared, shared)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		shared.AssertExpectations(t)
	})
}

// -- Azure OpenAI --

func TestAzureOpenAIClient_Generate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/openai/deployments/powerful-model/chat/completions", r.URL.Path)
			assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
			assert.Equal(t, "test-api-key", r.Header.Get("api-key"))

			var body chatRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if assert.Len(t, body.Messages, 2) {
				assert.Equal(t, "system", body.Messages[0].Role)
				assert.Equal(t, "User query.", body.Messages[1].Content)
			}
			assert.Equal(t, 256, body.MaxTokens)

			_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"CATEGORY: Syntax Error"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
		}))
		t.Cleanup(server.Close)

		core, logs := observer.New(zap.InfoLevel)
		client, err := NewAzureOpenAIClient(validLLMConfig(config.ProviderAzureOpenAI, server.URL+"/"), "powerful-model", zap.New(core))
		require.NoError(t, err)

		out, err := client.Generate(context.Background(), createTestRequest())
		require.NoError(t, err)
		assert.Equal(t, "CATEGORY: Syntax Error", out)
		assert.Equal(t, 1, logs.FilterMessage("LLM generation complete (Azure OpenAI)").Len())
		assert.NoError(t, client.Close())
	})

	t.Run("retries transient errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
		}))
		t.Cleanup(server.Close)

		client, err := NewAzureOpenAIClient(validLLMConfig(config.ProviderAzureOpenAI, server.URL), "d", zaptest.NewLogger(t))
		require.NoError(t, err)

		out, err := client.Generate(context.Background(), createTestRequest())
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
		}))
		t.Cleanup(server.Close)

		client, err := NewAzureOpenAIClient(validLLMConfig(config.ProviderAzureOpenAI, server.URL), "d", zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), createTestRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("content filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`)
		}))
		t.Cleanup(server.Close)

		client, err := NewAzureOpenAIClient(validLLMConfig(config.ProviderAzureOpenAI, server.URL), "d", zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), createTestRequest())
		assert.ErrorContains(t, err, "filtered")
	})
}

func TestNewAzureOpenAIClient_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := validLLMConfig(config.ProviderAzureOpenAI, "")
	_, err := NewAzureOpenAIClient(cfg, "d", logger)
	assert.ErrorContains(t, err, "endpoint is required")

	cfg.Endpoint = "https://example.openai.azure.com"
	cfg.APIKey = ""
	_, err = NewAzureOpenAIClient(cfg, "d", logger)
	assert.ErrorContains(t, err, "API key is required")
}

// -- Gemini --

func geminiServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestGeminiClient_Generate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "models/powerful-model:generateContent"), r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "User query.")
			assert.Contains(t, string(body), "System prompt instructions.")
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"CATEGORY: Region Error"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":3,"totalTokenCount":7}}`)
		})

		core, logs := observer.New(zap.InfoLevel)
		client, err := NewGeminiClient(context.Background(), validLLMConfig(config.ProviderGemini, server.URL+"/"), "powerful-model", zap.New(core))
		require.NoError(t, err)

		out, err := client.Generate(context.Background(), createTestRequest())
		require.NoError(t, err)
		assert.Equal(t, "CATEGORY: Region Error", out)
		assert.Equal(t, 1, logs.FilterMessage("LLM generation complete (Gemini)").Len())
		assert.NoError(t, client.Close())
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
		})

		client, err := NewGeminiClient(context.Background(), validLLMConfig(config.ProviderGemini, server.URL+"/"), "powerful-model", zaptest.NewLogger(t))
		require.NoError(t, err)

		out, err := client.Generate(context.Background(), createTestRequest())
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		server := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"code":400,"message":"invalid argument","status":"INVALID_ARGUMENT"}}`)
		})

		client, err := NewGeminiClient(context.Background(), validLLMConfig(config.ProviderGemini, server.URL+"/"), "powerful-model", zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), createTestRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	cfg := validLLMConfig(config.ProviderGemini, "")
	cfg.APIKey = ""
	_, err := NewGeminiClient(context.Background(), cfg, "m", zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "API Key is required")
}

// -- Factory --

func TestNewClient(t *testing.T) {
	logger := zaptest.NewLogger(t)

	router, err := NewClient(context.Background(), validLLMConfig(config.ProviderAzureOpenAI, "https://example.openai.azure.com"), logger)
	require.NoError(t, err)
	assert.NotNil(t, router)

	router, err = NewClient(context.Background(), validLLMConfig(config.ProviderGemini, ""), logger)
	require.NoError(t, err)
	assert.NotNil(t, router)

	_, err = NewClient(context.Background(), validLLMConfig("openai", ""), logger)
	assert.ErrorContains(t, err, "unknown or unsupported LLM provider")
}
