// Package provider builds the chat adapter selected by configuration.
package provider

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"polyaid/internal/integrations/gemini"
	"polyaid/internal/integrations/mock"
	"polyaid/internal/integrations/openai"
	"polyaid/internal/usecase"
)

type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
	KindMock   Kind = "mock"
)

// Kinds lists the supported adapters.
var Kinds = []Kind{KindOpenAI, KindGemini, KindMock}

// ParseKind accepts a kind name in any letter case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("provider: unknown kind %q", s)
}

type Config struct {
	Kind Kind
	// BaseURL and Model fall back to the adapter defaults when empty.
	BaseURL    string
	Model      string
	// MockDelay of zero disables the mock latency.
	MockDelay  time.Duration
	HTTPClient *http.Client
}

// New returns the adapter for cfg.Kind.
func New(cfg Config) (usecase.LLMService, error) {
	switch cfg.Kind {
	case KindOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		return openai.NewClient(opts...), nil
	case KindGemini:
		opts := []gemini.Option{gemini.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, gemini.WithHTTPClient(cfg.HTTPClient))
		}
		return gemini.NewClient(opts...), nil
	case KindMock:
		return mock.NewClient(mock.WithDelay(cfg.MockDelay)), nil
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", cfg.Kind)
	}
}
