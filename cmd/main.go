package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"polyaid/internal/config"
	"polyaid/internal/integrations/paramstore"
	"polyaid/internal/integrations/provider"
	"polyaid/internal/keychain"
	"polyaid/internal/repository"
	"polyaid/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// ---- Clients ----
	llm, err := provider.New(provider.Config{
		Kind:      cfg.ProviderKind(),
		BaseURL:   cfg.Provider.BaseURL,
		Model:     cfg.Provider.Model,
		MockDelay: cfg.Provider.MockDelay,
	})
	if err != nil {
		slog.Error("failed to create provider client", "err", err)
		os.Exit(1)
	}

	store, err := newCredentialStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create credential store", "backend", cfg.Backend(), "err", err)
		os.Exit(1)
	}

	credentialKey := cfg.Provider.CredentialKey
	if credentialKey == "" {
		credentialKey = llm.ProviderName()
	}

	// ---- Controllers ----
	settings, err := usecase.NewSettingsController(ctx, store, credentialKey,
		usecase.WithFeedbackTTL(cfg.FeedbackTTL),
		usecase.WithSettingsLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create settings controller", "err", err)
		os.Exit(1)
	}
	defer settings.Close()

	chat, err := usecase.NewChatController(llm, store,
		usecase.WithCredentialKey(credentialKey),
		usecase.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create chat controller", "err", err)
		os.Exit(1)
	}

	slog.Info("starting chat", "provider", llm.ProviderName(), "backend", cfg.Backend(), "credential_key", credentialKey)

	s := newSession(chat, settings, os.Stdout)
	if err := s.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("chat session ended with error", "err", err)
		os.Exit(1)
	}
}

func newCredentialStore(ctx context.Context, cfg *config.Config) (usecase.CredentialStore, error) {
	switch cfg.Backend() {
	case config.BackendKeychain:
		return keychain.New(cfg.Credentials.Dir, cfg.Credentials.Passphrase)
	case config.BackendSSM, config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if cfg.Backend() == config.BackendSSM {
			return paramstore.New(awsssm.NewFromConfig(awsCfg),
				paramstore.WithPrefix(cfg.Credentials.ParamPrefix),
				paramstore.WithKMSKeyID(cfg.Credentials.KMSKeyID),
			)
		}
		return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Credentials.Table)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credentials.Backend)
	}
}
