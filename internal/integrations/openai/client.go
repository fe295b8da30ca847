package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
	providerName   = "OpenAI"
)

// chatMessage is the wire shape of one message in the Chat Completions API.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client is an OpenAI-compatible chat completions adapter. It holds no
// conversation state and is safe for concurrent use.
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

// WithModel overrides the model identifier sent in every request.
func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// NewClient creates a Client for the public OpenAI endpoint unless overridden.
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

// resolvedHTTPClient returns the configured HTTP client, or the shared default
// client when none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// SendMessage sends the whole history to the Chat Completions endpoint and
// returns the first choice as an assistant message. Every failure is a
// *domain.Error.
func (c *Client) SendMessage(ctx context.Context, history []domain.Message, apiKey string) (domain.Message, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: toChatMessages(history),
	})
	if err != nil {
		return domain.Message{}, domain.DecodingError(fmt.Sprintf("failed to encode request body: %v", err))
	}

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.Message{}, domain.NetworkError(0, fmt.Errorf("openai: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return domain.Message{}, err
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Message{}, domain.DecodingError(fmt.Sprintf("failed to decode response JSON: %v", err))
	}
	if len(payload.Choices) == 0 {
		return domain.Message{}, domain.DecodingError("response contained no choices")
	}
	return domain.NewMessage(domain.RoleAssistant, payload.Choices[0].Message.Content), nil
}

func toChatMessages(history []domain.Message) []chatMessage {
	out := make([]chatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, domain.NetworkError(0, fmt.Errorf("openai: request failed: %w", err))
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, domain.NetworkError(res.StatusCode, fmt.Errorf("openai: unexpected status %d from %s: %s", res.StatusCode, req.URL, buf))
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, domain.NetworkError(0, fmt.Errorf("openai: read response body: %w", err))
	}
	return buf, nil
}
