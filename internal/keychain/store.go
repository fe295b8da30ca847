// Package keychain keeps provider API keys in a passphrase-encrypted TOML
// file on the local disk.
//
// Each secret is sealed with AES-256-GCM under a key derived from the
// passphrase with PBKDF2-SHA256. The provider key is bound as additional
// data, so a ciphertext copied to another entry fails to open.
package keychain

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/pbkdf2"

	"polyaid/internal/domain"
)

const (
	FileName          = "credentials.toml"
	DefaultIterations = 600_000

	fileVersion = 1
	saltSize    = 32
	keySize     = 32

	CodeIO            = "io_error"
	CodeCorruptFile   = "corrupt_file"
	CodeDecryptFailed = "decrypt_failed"
	CodeInvalidKey    = "invalid_key"
)

type credentialsFile struct {
	Version     int               `toml:"version"`
	Salt        string            `toml:"salt"`
	Credentials map[string]string `toml:"credentials"`
}

// Store is a file-backed credential store. It is safe for concurrent use
// within one process.
type Store struct {
	path       string
	passphrase []byte
	iterations int

	mu      sync.Mutex
	key     []byte
	keySalt []byte
}

type Option func(*Store)

// WithIterations overrides the PBKDF2 work factor.
func WithIterations(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// DefaultDir returns ~/.polyaid.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("keychain: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".polyaid"), nil
}

// New returns a Store writing dir/credentials.toml. The file is created on
// the first Save.
func New(dir, passphrase string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("keychain: directory must not be empty")
	}
	if passphrase == "" {
		return nil, errors.New("keychain: passphrase must not be empty")
	}
	s := &Store{
		path:       filepath.Join(dir, FileName),
		passphrase: []byte(passphrase),
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path reports the credentials file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Save(_ context.Context, secret, providerKey string) error {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	salt, err := f.salt()
	if err != nil {
		return err
	}
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: generate salt: %w", err))
		}
		f.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	sealed, err := s.seal(salt, providerKey, []byte(secret))
	if err != nil {
		return err
	}
	f.Credentials[providerKey] = sealed
	return s.write(f)
}

// Retrieve reports an unknown provider key or a missing file as absent.
func (s *Store) Retrieve(_ context.Context, providerKey string) (string, bool, error) {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return "", false, err
	}
	sealed, ok := f.Credentials[providerKey]
	if !ok {
		return "", false, nil
	}
	salt, err := f.salt()
	if err != nil {
		return "", false, err
	}
	if salt == nil {
		return "", false, domain.CredentialStoreError(CodeCorruptFile, errors.New("keychain: credentials present without salt"))
	}
	plain, err := s.open(salt, providerKey, sealed)
	if err != nil {
		return "", false, err
	}
	return string(plain), true, nil
}

func (s *Store) Delete(_ context.Context, providerKey string) error {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Credentials[providerKey]; !ok {
		return nil
	}
	delete(f.Credentials, providerKey)
	return s.write(f)
}

func (s *Store) load() (*credentialsFile, error) {
	f := &credentialsFile{Version: fileVersion}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.Credentials = map[string]string{}
		return f, nil
	case err != nil:
		return nil, domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: read %s: %w", s.path, err))
	}
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(f); err != nil {
		return nil, domain.CredentialStoreError(CodeCorruptFile, fmt.Errorf("keychain: decode %s: %w", s.path, err))
	}
	if f.Version > fileVersion {
		return nil, domain.CredentialStoreError(CodeCorruptFile, fmt.Errorf("keychain: unsupported file version %d", f.Version))
	}
	if f.Credentials == nil {
		f.Credentials = map[string]string{}
	}
	return f, nil
}

// write replaces the credentials file atomically.
func (s *Store) write(f *credentialsFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: create %s: %w", dir, err))
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: create temp file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: chmod temp file: %w", err))
	}
	f.Version = fileVersion
	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: encode credentials: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: close temp file: %w", err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: replace %s: %w", s.path, err))
	}
	committed = true
	return nil
}

func (f *credentialsFile) salt() ([]byte, error) {
	if f.Salt == "" {
		return nil, nil
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil || len(salt) == 0 {
		return nil, domain.CredentialStoreError(CodeCorruptFile, errors.New("keychain: invalid salt"))
	}
	return salt, nil
}

// aead derives the file key once per salt and caches it.
func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	if s.key == nil || !bytes.Equal(s.keySalt, salt) {
		s.key = pbkdf2.Key(s.passphrase, salt, s.iterations, keySize, sha256.New)
		s.keySalt = append([]byte(nil), salt...)
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: create cipher: %w", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: create gcm: %w", err))
	}
	return gcm, nil
}

// seal returns base64(nonce|ciphertext).
func (s *Store) seal(salt []byte, providerKey string, plaintext []byte) (string, error) {
	gcm, err := s.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", domain.CredentialStoreError(CodeIO, fmt.Errorf("keychain: generate nonce: %w", err))
	}
	out := gcm.Seal(nonce, nonce, plaintext, []byte(providerKey))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(salt []byte, providerKey, sealed string) ([]byte, error) {
	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < gcm.NonceSize() {
		return nil, domain.CredentialStoreError(CodeCorruptFile, fmt.Errorf("keychain: malformed entry for %s", providerKey))
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, []byte(providerKey))
	if err != nil {
		return nil, domain.CredentialStoreError(CodeDecryptFailed, fmt.Errorf("keychain: decrypt entry for %s: wrong passphrase or tampered file", providerKey))
	}
	return plain, nil
}

func validKey(providerKey string) (string, error) {
	providerKey = strings.TrimSpace(providerKey)
	if providerKey == "" {
		return "", domain.CredentialStoreError(CodeInvalidKey, errors.New("keychain: provider key is required"))
	}
	return providerKey, nil
}
