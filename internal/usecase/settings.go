package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultFeedbackTTL = 3 * time.Second

// SettingsController manages the stored API key for one provider.
type SettingsController struct {
	store       CredentialStore
	providerKey string
	feedbackTTL time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	keyInput    string
	keySaved    bool
	feedback    string
	feedbackSeq uint64
	clearTimer  *time.Timer
}

type SettingsOption func(*SettingsController)

// WithFeedbackTTL sets how long feedback stays visible; zero keeps it until replaced.
func WithFeedbackTTL(d time.Duration) SettingsOption {
	return func(s *SettingsController) {
		s.feedbackTTL = d
	}
}

func WithSettingsLogger(logger *slog.Logger) SettingsOption {
	return func(s *SettingsController) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSettingsController creates a controller for providerKey and checks
// whether a key is already stored.
func NewSettingsController(ctx context.Context, store CredentialStore, providerKey string, opts ...SettingsOption) (*SettingsController, error) {
	if store == nil {
		return nil, errors.New("usecase: credential store must not be nil")
	}
	providerKey = strings.TrimSpace(providerKey)
	if providerKey == "" {
		return nil, errors.New("usecase: provider key must not be empty")
	}
	s := &SettingsController{
		store:       store,
		providerKey: providerKey,
		feedbackTTL: defaultFeedbackTTL,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Refresh(ctx)
	return s, nil
}

func (s *SettingsController) SetKeyInput(key string) {
	s.mu.Lock()
	s.keyInput = key
	s.mu.Unlock()
}

func (s *SettingsController) KeyInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyInput
}

func (s *SettingsController) IsKeySaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keySaved
}

func (s *SettingsController) Feedback() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback
}

// SaveAPIKey stores the key input. Empty input is ignored. The input is
// cleared after every attempt.
func (s *SettingsController) SaveAPIKey(ctx context.Context) {
	s.mu.Lock()
	key := s.keyInput
	s.mu.Unlock()
	if key == "" {
		return
	}

	err := s.store.Save(ctx, key, s.providerKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyInput = ""
	if err != nil {
		s.logger.Error("save api key failed", "provider", s.providerKey, "err", err)
		s.keySaved = false
		s.showFeedbackLocked("Error saving key: " + err.Error())
		return
	}
	s.keySaved = true
	s.showFeedbackLocked("API Key saved successfully!")
}

// DeleteAPIKey removes the stored key.
func (s *SettingsController) DeleteAPIKey(ctx context.Context) {
	err := s.store.Delete(ctx, s.providerKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Error("delete api key failed", "provider", s.providerKey, "err", err)
		s.showFeedbackLocked("Error deleting key: " + err.Error())
		return
	}
	s.keySaved = false
	s.showFeedbackLocked("API Key deleted.")
}

// Refresh re-reads whether a non-empty key is stored. A failed lookup counts
// as not saved.
func (s *SettingsController) Refresh(ctx context.Context) {
	secret, ok, err := s.store.Retrieve(ctx, s.providerKey)
	saved := err == nil && ok && secret != ""

	s.mu.Lock()
	s.keySaved = saved
	s.mu.Unlock()
}

// Close stops a pending feedback timer.
func (s *SettingsController) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

func (s *SettingsController) showFeedbackLocked(msg string) {
	s.feedback = msg
	s.feedbackSeq++
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	if s.feedbackTTL <= 0 {
		return
	}
	seq := s.feedbackSeq
	s.clearTimer = time.AfterFunc(s.feedbackTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.feedbackSeq == seq {
			s.feedback = ""
		}
	})
}
