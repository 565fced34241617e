package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigKnownProviders(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "anthropic"} {
		cfg := DefaultConfig(name)
		require.NotNil(t, cfg)
		assert.Equal(t, name, cfg.Name)
		assert.NotEmpty(t, cfg.Endpoint)
		assert.NotEmpty(t, cfg.Model)
		assert.Greater(t, cfg.MaxTokens, 0)
	}
}

func TestNewProviderUnknownName(t *testing.T) {
	_, err := NewProvider(&ProviderConfig{Name: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOllamaGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is 2+2?", req.Prompt)
		assert.Equal(t, "be brief", req.System)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:           "test-model",
			Response:        "4",
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       1,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(&ProviderConfig{Name: "ollama", Endpoint: server.URL, Model: "test-model"})
	resp, err := p.Generate(context.Background(), &GenerateRequest{
		Prompt:       "what is 2+2?",
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 1, resp.CompletionTokens)
}

func TestOllamaGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(&ProviderConfig{Name: "ollama", Endpoint: server.URL, Model: "missing"})
	_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "ollama", genErr.Provider)
}

func TestOllamaAvailableProbesTags(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			hits++
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(&ProviderConfig{Name: "ollama", Endpoint: server.URL})
	assert.True(t, p.Available())
	assert.Equal(t, 1, hits)
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openaiChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := openaiChatResponse{Model: "gpt-test"}
		resp.Choices = append(resp.Choices, struct {
			Message      openaiMessage `json:"message"`
			FinishReason string        `json:"finish_reason"`
		}{Message: openaiMessage{Role: "assistant", Content: "hello"}, FinishReason: "stop"})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIProvider(&ProviderConfig{Name: "openai", Endpoint: server.URL, Model: "gpt-test", APIKey: "sk-test"})
	resp, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "hi", SystemPrompt: "sys"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
}

func TestAnthropicGenerateConcatenatesTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "key-test", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"foo"},{"type":"text","text":"bar"}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider(&ProviderConfig{Name: "anthropic", Endpoint: server.URL, Model: "claude-test", APIKey: "key-test"})
	resp, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "foobar", resp.Content)
	assert.Equal(t, 2, resp.CompletionTokens)
}

func TestHostedProvidersAvailability(t *testing.T) {
	assert.False(t, NewOpenAIProvider(&ProviderConfig{Name: "openai"}).Available())
	assert.True(t, NewOpenAIProvider(&ProviderConfig{Name: "openai", APIKey: "k"}).Available())
	assert.False(t, NewAnthropicProvider(&ProviderConfig{Name: "anthropic"}).Available())
}
