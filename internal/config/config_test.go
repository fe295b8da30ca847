package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"polyaid/internal/integrations/provider"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithEnvOnly(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		EnvConfigPath:        filepath.Join(t.TempDir(), "missing.toml"),
		"POLYAID_PASSPHRASE": "pass",
	}))
	require.Error(t, err, "an explicit config path must exist")
	require.Nil(t, cfg)

	t.Setenv("HOME", t.TempDir())
	cfg, err = load(lookupFrom(map[string]string{"POLYAID_PASSPHRASE": "pass"}))
	require.NoError(t, err)
	require.Equal(t, provider.KindOpenAI, cfg.ProviderKind())
	require.Equal(t, BackendKeychain, cfg.Backend())
	require.Equal(t, time.Second, cfg.Provider.MockDelay)
	require.Equal(t, 3*time.Second, cfg.FeedbackTTL)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	require.True(t, filepath.IsAbs(cfg.Credentials.Dir))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
feedback_ttl = "5s"

[provider]
kind = "gemini"
model = "gemini-1.5-pro"
mock_delay = "250ms"

[credentials]
backend = "dynamodb"
table = "from-file"

[log]
level = "debug"
`)
	cfg, err := load(lookupFrom(map[string]string{
		EnvConfigPath:   path,
		"POLYAID_TABLE": "from-env",
		"POLYAID_MODEL": "",
	}))
	require.NoError(t, err)
	require.Equal(t, provider.KindGemini, cfg.ProviderKind())
	require.Equal(t, "gemini-1.5-pro", cfg.Provider.Model)
	require.Equal(t, 250*time.Millisecond, cfg.Provider.MockDelay)
	require.Equal(t, 5*time.Second, cfg.FeedbackTTL)
	require.Equal(t, BackendDynamoDB, cfg.Backend())
	require.Equal(t, "from-env", cfg.Credentials.Table)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EnvDurations(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		EnvConfigPath:          writeConfig(t, ""),
		"POLYAID_PROVIDER":     "mock",
		"POLYAID_STORE":        "ssm",
		"POLYAID_MOCK_DELAY":   "0s",
		"POLYAID_FEEDBACK_TTL": "1500ms",
	}))
	require.NoError(t, err)
	require.Equal(t, provider.KindMock, cfg.ProviderKind())
	require.Zero(t, cfg.Provider.MockDelay)
	require.Equal(t, 1500*time.Millisecond, cfg.FeedbackTTL)
	require.Equal(t, "/polyaid", cfg.Credentials.ParamPrefix)

	_, err = load(lookupFrom(map[string]string{
		EnvConfigPath:        writeConfig(t, ""),
		"POLYAID_MOCK_DELAY": "soon",
		"POLYAID_PASSPHRASE": "pass",
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "POLYAID_MOCK_DELAY")
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := load(lookupFrom(map[string]string{EnvConfigPath: writeConfig(t, "provider = [")}))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid keychain", mutate: func(c *Config) { c.Credentials.Passphrase = "p" }},
		{name: "keychain without passphrase", mutate: func(c *Config) {}, wantErr: "passphrase"},
		{name: "unknown provider", mutate: func(c *Config) { c.Credentials.Passphrase = "p"; c.Provider.Kind = "claude" }, wantErr: "provider.kind"},
		{name: "unknown backend", mutate: func(c *Config) { c.Credentials.Backend = "vault" }, wantErr: "credentials.backend"},
		{name: "dynamodb without table", mutate: func(c *Config) { c.Credentials.Backend = "dynamodb" }, wantErr: "credentials.table"},
		{name: "ssm without prefix", mutate: func(c *Config) { c.Credentials.Backend = "ssm"; c.Credentials.ParamPrefix = "" }, wantErr: "param_prefix"},
		{name: "bad log level", mutate: func(c *Config) { c.Credentials.Passphrase = "p"; c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "negative delay", mutate: func(c *Config) { c.Credentials.Passphrase = "p"; c.Provider.MockDelay = -time.Second }, wantErr: "mock_delay"},
		{name: "negative ttl", mutate: func(c *Config) { c.Credentials.Passphrase = "p"; c.FeedbackTTL = -time.Second }, wantErr: "feedback_ttl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	} {
		cfg.Log.Level = in
		require.Equal(t, want, cfg.SlogLevel(), in)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.Equal(t, filepath.Join(home, ".polyaid"), expandHome("~/.polyaid"))
	require.Equal(t, "/abs/path", expandHome("/abs/path"))
	require.Equal(t, "relative", expandHome("relative"))
}
