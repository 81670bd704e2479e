package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyFileName is the key file created inside the data dir when no key is configured.
const KeyFileName = "session.key"

const keySize = 32

var (
	ErrDisabled   = errors.New("session encryption is disabled")
	errInvalidKey = errors.New("must be 32 raw bytes or base64 for 32 bytes")
)

// Service seals persisted session records.
type Service struct {
	aead   cipher.AEAD
	source string
}

// NewService initializes the encryption service.
// Priority:
// 1. rawKey (raw/base64, 32 bytes), usually from PIPEDECK_ENCRYPTION_KEY
// 2. keyPath, auto-generated on first run.
// With neither, the returned service is disabled and records are stored in clear.
func NewService(rawKey, keyPath string) (*Service, error) {
	if raw := strings.TrimSpace(rawKey); raw != "" {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("encryption_key: %w", err)
		}
		return newServiceWithKey(key, "config")
	}
	if strings.TrimSpace(keyPath) == "" {
		return &Service{}, nil
	}

	key, err := loadOrCreateKeyFile(keyPath)
	if err != nil {
		return nil, err
	}
	return newServiceWithKey(key, "file:"+keyPath)
}

func newServiceWithKey(key []byte, source string) (*Service, error) {
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	return &Service{aead: aead, source: source}, nil
}

// decodeKey accepts 32 raw bytes or their base64 form.
func decodeKey(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if len(value) == keySize {
		return []byte(value), nil
	}
	return nil, errInvalidKey
}

// loadOrCreateKeyFile returns the key stored at path, generating it on first
// use. A console and a CLI starting together may race to create the file; the
// loser reads the winner's key.
func loadOrCreateKeyFile(path string) ([]byte, error) {
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			key, err := decodeKey(strings.TrimSpace(string(data)))
			if err != nil {
				return nil, fmt.Errorf("key file %s: %w", path, err)
			}
			return key, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed reading key file: %w", err)
		}

		key, err := createKeyFile(path)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return key, err
	}
}

func createKeyFile(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed creating key dir: %w", err)
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed generating encryption key: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed creating key file: %w", err)
	}
	_, err = file.WriteString(base64.StdEncoding.EncodeToString(key) + "\n")
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed writing key file: %w", err)
	}
	return key, nil
}

// Enabled reports whether encryption is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.aead != nil
}

// KeySource returns where the encryption key was loaded from.
func (s *Service) KeySource() string {
	if s == nil {
		return ""
	}
	return s.source
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (s *Service) Seal(plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed generating nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (s *Service) Open(sealed []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	size := s.aead.NonceSize()
	if len(sealed) < size {
		return nil, fmt.Errorf("sealed record is too short")
	}
	plaintext, err := s.aead.Open(nil, sealed[:size], sealed[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed decrypting record: %w", err)
	}
	return plaintext, nil
}

func zeroBytes(value []byte) {
	for i := range value {
		value[i] = 0
	}
}
