package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"polyaid/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
	providerName   = "Gemini"
	apiKeyHeader   = "x-goog-api-key"

	roleUser  = "user"
	roleModel = "model"
)

// generateRequest is the request body of the generateContent endpoint.
type generateRequest struct {
	Contents []content `json:"contents"`
}

// content is one turn of Gemini history; roles are "user" or "model".
type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Client is a Gemini generateContent adapter. It holds no conversation state
// and is safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		model:   defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ProviderName() string {
	return providerName
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1beta") {
		base += "/v1beta"
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, model)
}

// SendMessage posts the history to generateContent and returns the first
// candidate as an assistant message. Every failure is a *domain.Error.
func (c *Client) SendMessage(ctx context.Context, history []domain.Message, apiKey string) (domain.Message, error) {
	body, err := json.Marshal(generateRequest{Contents: toContents(history)})
	if err != nil {
		return domain.Message{}, domain.DecodingError(fmt.Sprintf("failed to encode request body: %v", err))
	}

	url := generateURL(c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Message{}, domain.NetworkError(0, fmt.Errorf("gemini: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return domain.Message{}, domain.NetworkError(0, fmt.Errorf("gemini: request failed: %w", err))
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.Message{}, domain.NetworkError(res.StatusCode, fmt.Errorf("gemini: unexpected status %d: %s", res.StatusCode, buf))
	}

	var payload generateResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return domain.Message{}, domain.DecodingError(fmt.Sprintf("failed to decode response JSON: %v", err))
	}
	if len(payload.Candidates) == 0 {
		return domain.Message{}, domain.DecodingError("response contained no candidates")
	}
	parts := payload.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return domain.Message{}, domain.DecodingError("first candidate contained no parts")
	}

	var text strings.Builder
	for _, p := range parts {
		text.WriteString(p.Text)
	}
	return domain.NewMessage(domain.RoleAssistant, text.String()), nil
}

// toContents maps history onto Gemini roles. System messages are local error
// bubbles and have no Gemini equivalent, so they are left out.
func toContents(history []domain.Message) []content {
	out := make([]content, 0, len(history))
	for _, m := range history {
		var role string
		switch m.Role {
		case domain.RoleUser:
			role = roleUser
		case domain.RoleAssistant:
			role = roleModel
		default:
			continue
		}
		out = append(out, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}
