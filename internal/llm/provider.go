// Package llm defines the model gateway abstraction and its concrete
// providers. A Provider turns a single prompt plus system instructions
// into generated text; routing between providers lives in internal/router.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxErrorBodySize caps how much of an HTTP error body we read back.
// Provider error pages can be arbitrarily large; 4KB is plenty for a log line.
const MaxErrorBodySize = 4096

// GenerationError wraps a transport or API failure from a specific provider,
// so callers can tell which backend failed without parsing error strings.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Provider is the interface every model gateway implements.
type Provider interface {
	// Generate produces a completion for the given request.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name returns the provider identifier ("ollama", "openai", "anthropic").
	Name() string

	// Available reports whether the provider can currently serve requests.
	// For local providers this probes the daemon; for hosted ones it checks
	// credentials.
	Available() bool
}

// GenerateRequest is a single-shot generation request.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// GenerateResponse carries the generated text plus usage metadata.
type GenerateResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// ProviderConfig holds connection settings for one provider.
type ProviderConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	Endpoint    string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns the default configuration for a named provider.
func DefaultConfig(name string) *ProviderConfig {
	switch name {
	case "ollama":
		return &ProviderConfig{
			Name:        "ollama",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     120 * time.Second,
		}
	case "openai":
		return &ProviderConfig{
			Name:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		}
	case "anthropic":
		return &ProviderConfig{
			Name:        "anthropic",
			Endpoint:    "https://api.anthropic.com/v1",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		}
	default:
		return &ProviderConfig{
			Name:        name,
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		}
	}
}

// NewProvider constructs a provider from its config, switching on Name.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil provider config")
	}
	switch strings.ToLower(cfg.Name) {
	case "ollama":
		return NewOllamaProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// baseProvider holds what every HTTP-backed provider shares.
type baseProvider struct {
	config *ProviderConfig
	client *http.Client
}

func newBaseProvider(cfg *ProviderConfig) baseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return baseProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// readLimitedBody reads at most MaxErrorBodySize bytes of an error body.
func readLimitedBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, MaxErrorBodySize))
	return strings.TrimSpace(string(body))
}
