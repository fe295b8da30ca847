package keychain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"polyaid/internal/domain"
)

func newTestStore(t *testing.T, dir, passphrase string) *Store {
	t.Helper()
	s, err := New(dir, passphrase, WithIterations(1000))
	require.NoError(t, err)
	return s
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	de, ok := domain.AsError(err)
	require.True(t, ok, "expected *domain.Error, got %v", err)
	require.Equal(t, domain.KindCredentialStore, de.Kind)
	require.Equal(t, code, de.Code)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "pass")
	require.Error(t, err)
	_, err = New(t.TempDir(), "")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")
	s := newTestStore(t, dir, "correct horse")

	_, ok, err := s.Retrieve(ctx, "OpenAI")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, "sk-one", "OpenAI"))
	require.NoError(t, s.Save(ctx, "g-key", "Gemini"))

	v, ok, err := s.Retrieve(ctx, "OpenAI")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sk-one", v)

	require.NoError(t, s.Save(ctx, "sk-two", "OpenAI"))
	v, _, err = s.Retrieve(ctx, "OpenAI")
	require.NoError(t, err)
	require.Equal(t, "sk-two", v)

	v, _, err = s.Retrieve(ctx, "Gemini")
	require.NoError(t, err)
	require.Equal(t, "g-key", v)
}

func TestPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, newTestStore(t, dir, "pass").Save(ctx, "sk-test", "OpenAI"))

	v, ok, err := newTestStore(t, dir, "pass").Retrieve(ctx, "OpenAI")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sk-test", v)
}

func TestFileIsEncryptedAndPrivate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestStore(t, dir, "pass")
	require.NoError(t, s.Save(ctx, "sk-very-secret", "OpenAI"))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NotContains(t, string(data), "sk-very-secret")

	var f credentialsFile
	_, err = toml.Decode(string(data), &f)
	require.NoError(t, err)
	require.Equal(t, 1, f.Version)
	require.NotEmpty(t, f.Salt)
	require.Contains(t, f.Credentials, "OpenAI")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.Path())
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, newTestStore(t, dir, "right").Save(ctx, "sk-test", "OpenAI"))

	_, ok, err := newTestStore(t, dir, "wrong").Retrieve(ctx, "OpenAI")
	require.Error(t, err)
	require.False(t, ok)
	requireCode(t, err, CodeDecryptFailed)
	require.Contains(t, err.Error(), "status code: decrypt_failed")
}

func TestEntryBoundToProviderKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), "pass")
	require.NoError(t, s.Save(ctx, "sk-test", "OpenAI"))

	var f credentialsFile
	_, err := toml.DecodeFile(s.Path(), &f)
	require.NoError(t, err)
	f.Credentials["Gemini"] = f.Credentials["OpenAI"]
	out, err := os.Create(s.Path())
	require.NoError(t, err)
	require.NoError(t, toml.NewEncoder(out).Encode(f))
	require.NoError(t, out.Close())

	_, _, err = s.Retrieve(ctx, "Gemini")
	requireCode(t, err, CodeDecryptFailed)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), "pass")

	require.NoError(t, s.Delete(ctx, "OpenAI"))

	require.NoError(t, s.Save(ctx, "sk-test", "OpenAI"))
	require.NoError(t, s.Delete(ctx, "OpenAI"))
	_, ok, err := s.Retrieve(ctx, "OpenAI")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "OpenAI"))
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not = [valid"), 0o600))
	s := newTestStore(t, dir, "pass")

	_, _, err := s.Retrieve(context.Background(), "OpenAI")
	requireCode(t, err, CodeCorruptFile)

	err = s.Save(context.Background(), "x", "OpenAI")
	requireCode(t, err, CodeCorruptFile)
}

func TestMalformedEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), "pass")
	require.NoError(t, s.Save(ctx, "sk-test", "OpenAI"))

	var f credentialsFile
	_, err := toml.DecodeFile(s.Path(), &f)
	require.NoError(t, err)
	f.Credentials["OpenAI"] = "%%%"
	out, err := os.Create(s.Path())
	require.NoError(t, err)
	require.NoError(t, toml.NewEncoder(out).Encode(f))
	require.NoError(t, out.Close())

	_, _, err = s.Retrieve(ctx, "OpenAI")
	requireCode(t, err, CodeCorruptFile)
}

func TestEmptyProviderKey(t *testing.T) {
	s := newTestStore(t, t.TempDir(), "pass")
	requireCode(t, s.Save(context.Background(), "x", " "), CodeInvalidKey)
	_, _, err := s.Retrieve(context.Background(), "")
	requireCode(t, err, CodeInvalidKey)
	requireCode(t, s.Delete(context.Background(), ""), CodeInvalidKey)
}

func TestConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, t.TempDir(), "pass")

	keys := []string{"OpenAI", "Gemini", "Mock Service", "Other"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			require.NoError(t, s.Save(ctx, "secret-"+k, k))
		}(k)
	}
	wg.Wait()

	for _, k := range keys {
		v, ok, err := s.Retrieve(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "secret-"+k, v)
	}
}
