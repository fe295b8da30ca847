// Package mock provides a deterministic LLM adapter that never touches the
// network. It is used to exercise the chat flow without credentials for a
// real vendor.
package mock

import (
	"context"
	"fmt"
	"time"

	"polyaid/internal/domain"
)

const (
	DefaultName  = "Mock Service"
	DefaultDelay = time.Second
)

type Client struct {
	name  string
	delay time.Duration
}

type Option func(*Client)

func WithName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithDelay sets the artificial latency; zero or negative disables it.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{name: DefaultName, delay: DefaultDelay}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ProviderName() string {
	return c.name
}

// SendMessage waits for the configured delay and echoes the last user message.
// The api key is ignored.
func (c *Client) SendMessage(ctx context.Context, history []domain.Message, _ string) (domain.Message, error) {
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Message{}, domain.NetworkError(0, fmt.Errorf("mock: %w", ctx.Err()))
		case <-timer.C:
		}
	}

	last := "none"
	if m, ok := domain.LastOfRole(history, domain.RoleUser); ok {
		last = m.Content
	}
	return domain.NewMessage(domain.RoleAssistant, fmt.Sprintf(
		"This is a mock response from the %s. The last user message was: '%s'", c.name, last,
	)), nil
}
