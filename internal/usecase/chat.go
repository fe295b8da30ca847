package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"polyaid/internal/domain"
)

// LLMService is implemented by every provider adapter. Failures are returned
// as *domain.Error.
type LLMService interface {
	ProviderName() string
	SendMessage(ctx context.Context, history []domain.Message, apiKey string) (domain.Message, error)
}

// CredentialStore keeps one secret per provider key.
// Retrieve reports an absent key as ("", false, nil). Delete of an absent
// key succeeds.
type CredentialStore interface {
	Save(ctx context.Context, secret, providerKey string) error
	Retrieve(ctx context.Context, providerKey string) (string, bool, error)
	Delete(ctx context.Context, providerKey string) error
}

// State is the position of the chat controller in its send cycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingCredential
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCredential:
		return "awaiting_credential"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// ChatController owns one conversation and sequences a user turn:
// append the user message, fetch the credential, call the provider, append
// the outcome. All state changes are serialized by mu.
type ChatController struct {
	llm           LLMService
	store         CredentialStore
	credentialKey string
	logger        *slog.Logger
	onChange      func()

	mu           sync.Mutex
	conversation domain.Conversation
	input        string
	loading      bool
	state        State

	inflight sync.WaitGroup
}

type ChatOption func(*ChatController)

// WithCredentialKey sets the key used to look up the provider secret.
// It defaults to the adapter's provider name.
func WithCredentialKey(key string) ChatOption {
	return func(c *ChatController) {
		if k := strings.TrimSpace(key); k != "" {
			c.credentialKey = k
		}
	}
}

func WithLogger(logger *slog.Logger) ChatOption {
	return func(c *ChatController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnChange registers a callback invoked after every state change.
// It runs outside the controller lock and may read controller state.
func WithOnChange(fn func()) ChatOption {
	return func(c *ChatController) {
		c.onChange = fn
	}
}

func NewChatController(llm LLMService, store CredentialStore, opts ...ChatOption) (*ChatController, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm service must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: credential store must not be nil")
	}
	c := &ChatController{
		llm:           llm,
		store:         store,
		credentialKey: llm.ProviderName(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if strings.TrimSpace(c.credentialKey) == "" {
		return nil, errors.New("usecase: credential key must not be empty")
	}
	return c, nil
}

// SetInput replaces the pending input buffer.
func (c *ChatController) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

func (c *ChatController) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Messages returns a copy of the conversation in display order.
func (c *ChatController) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation.Messages()
}

// IsLoading is true from submit until the terminal message is appended.
func (c *ChatController) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *ChatController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProviderName reports the active adapter's display name.
func (c *ChatController) ProviderName() string {
	return c.llm.ProviderName()
}

// Send is SetInput followed by SendMessage.
func (c *ChatController) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.input = text
	c.mu.Unlock()
	return c.SendMessage(ctx)
}

// SendMessage submits the input buffer. Blank input is ignored. While a send
// is in flight it returns ErrBusy and leaves the input untouched.
//
// The user message is appended before SendMessage returns. The provider call
// runs on its own goroutine and its outcome is appended when it completes;
// use Wait or WithOnChange to observe it. A missing credential is reported in
// the conversation without contacting the provider.
func (c *ChatController) SendMessage(ctx context.Context) error {
	c.mu.Lock()
	text := strings.TrimSpace(c.input)
	if text == "" {
		c.mu.Unlock()
		return nil
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.input = ""
	c.conversation.Append(domain.NewMessage(domain.RoleUser, text))
	c.loading = true
	c.state = StateAwaitingCredential
	c.mu.Unlock()
	c.notify()

	apiKey, err := c.fetchCredential(ctx)
	if err != nil {
		c.logger.Warn("credential unavailable, request not sent", "provider", c.credentialKey, "err", err)
		c.complete(errorMessage(err))
		return nil
	}

	c.mu.Lock()
	c.state = StateAwaitingResponse
	history := c.conversation.Messages()
	c.inflight.Add(1)
	c.mu.Unlock()
	c.notify()

	// The call runs to completion even if the caller's context is canceled.
	callCtx := context.WithoutCancel(ctx)
	go func() {
		defer c.inflight.Done()
		reply, err := c.llm.SendMessage(callCtx, history, apiKey)
		if err != nil {
			c.logger.Error("provider request failed", "provider", c.llm.ProviderName(), "kind", domain.KindOf(err), "err", err)
			c.complete(errorMessage(err))
			return
		}
		c.logger.Debug("provider reply received", "provider", c.llm.ProviderName(), "id", reply.ID)
		c.complete(reply)
	}()
	return nil
}

// Wait blocks until the in-flight provider call, if any, has been recorded.
func (c *ChatController) Wait() {
	c.inflight.Wait()
}

// fetchCredential reads the secret fresh from the store on every send.
func (c *ChatController) fetchCredential(ctx context.Context) (string, error) {
	secret, ok, err := c.store.Retrieve(ctx, c.credentialKey)
	if err != nil {
		if _, isDomain := domain.AsError(err); isDomain {
			return "", err
		}
		return "", domain.CredentialStoreError("", err)
	}
	if !ok || strings.TrimSpace(secret) == "" {
		return "", missingCredentialError(c.credentialKey)
	}
	return secret, nil
}

func (c *ChatController) complete(terminal domain.Message) {
	c.mu.Lock()
	c.conversation.Append(terminal)
	c.loading = false
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()
}

func (c *ChatController) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
