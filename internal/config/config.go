// Package config loads runtime settings from defaults, an optional TOML file
// and POLYAID_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"polyaid/internal/integrations/paramstore"
	"polyaid/internal/integrations/provider"
)

const (
	EnvConfigPath = "POLYAID_CONFIG"
	envPrefix     = "POLYAID_"

	BackendKeychain = "keychain"
	BackendSSM      = "ssm"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Provider    ProviderConfig    `toml:"provider"`
	Credentials CredentialsConfig `toml:"credentials"`
	Log         LogConfig         `toml:"log"`
	// FeedbackTTL is how long settings feedback stays visible.
	FeedbackTTL time.Duration `toml:"feedback_ttl"`
}

type ProviderConfig struct {
	Kind      string        `toml:"kind"`
	BaseURL   string        `toml:"base_url"`
	Model     string        `toml:"model"`
	MockDelay time.Duration `toml:"mock_delay"`
	// CredentialKey overrides the store key; the adapter name is used when empty.
	CredentialKey string `toml:"credential_key"`
}

type CredentialsConfig struct {
	Backend string `toml:"backend"`

	Dir        string `toml:"dir"`
	Passphrase string `toml:"passphrase"`

	ParamPrefix string `toml:"param_prefix"`
	KMSKeyID    string `toml:"kms_key_id"`

	Table string `toml:"table"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:      string(provider.KindOpenAI),
			MockDelay: time.Second,
		},
		Credentials: CredentialsConfig{
			Backend:     BackendKeychain,
			Dir:         "~/.polyaid",
			ParamPrefix: paramstore.DefaultPrefix,
		},
		Log:         LogConfig{Level: "info"},
		FeedbackTTL: 3 * time.Second,
	}
}

// Load reads .env (if present), the config file and the environment, then
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	path, explicit := lookup(EnvConfigPath)
	if !explicit || strings.TrimSpace(path) == "" {
		explicit = false
		path = filepath.Join("~", ".polyaid", "config.toml")
	}
	path = expandHome(path)

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.Credentials.Dir = expandHome(cfg.Credentials.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PROVIDER":       &c.Provider.Kind,
		"BASE_URL":       &c.Provider.BaseURL,
		"MODEL":          &c.Provider.Model,
		"CREDENTIAL_KEY": &c.Provider.CredentialKey,
		"STORE":          &c.Credentials.Backend,
		"KEYCHAIN_DIR":   &c.Credentials.Dir,
		"PASSPHRASE":     &c.Credentials.Passphrase,
		"PARAM_PREFIX":   &c.Credentials.ParamPrefix,
		"KMS_KEY_ID":     &c.Credentials.KMSKeyID,
		"TABLE":          &c.Credentials.Table,
		"LOG_LEVEL":      &c.Log.Level,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"MOCK_DELAY":   &c.Provider.MockDelay,
		"FEEDBACK_TTL": &c.FeedbackTTL,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks enum values and the fields each credential backend needs.
func (c *Config) Validate() error {
	var errs []error

	if _, err := provider.ParseKind(c.Provider.Kind); err != nil {
		errs = append(errs, fmt.Errorf("config: provider.kind: %w", err))
	}
	if c.Provider.MockDelay < 0 {
		errs = append(errs, errors.New("config: provider.mock_delay must not be negative"))
	}
	if c.FeedbackTTL < 0 {
		errs = append(errs, errors.New("config: feedback_ttl must not be negative"))
	}

	switch strings.ToLower(c.Credentials.Backend) {
	case BackendKeychain:
		if strings.TrimSpace(c.Credentials.Dir) == "" {
			errs = append(errs, errors.New("config: credentials.dir is required for the keychain backend"))
		}
		if c.Credentials.Passphrase == "" {
			errs = append(errs, errors.New("config: credentials.passphrase (POLYAID_PASSPHRASE) is required for the keychain backend"))
		}
	case BackendSSM:
		if strings.TrimSpace(c.Credentials.ParamPrefix) == "" {
			errs = append(errs, errors.New("config: credentials.param_prefix is required for the ssm backend"))
		}
	case BackendDynamoDB:
		if strings.TrimSpace(c.Credentials.Table) == "" {
			errs = append(errs, errors.New("config: credentials.table (POLYAID_TABLE) is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown credentials.backend %q", c.Credentials.Backend))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ProviderKind returns the validated adapter kind.
func (c *Config) ProviderKind() provider.Kind {
	k, _ := provider.ParseKind(c.Provider.Kind)
	return k
}

// Backend returns the normalized credential backend name.
func (c *Config) Backend() string {
	return strings.ToLower(c.Credentials.Backend)
}

// SlogLevel maps Log.Level to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log.level %q", s)
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
