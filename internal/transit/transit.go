// Package transit seals payloads that cross the process boundary: request
// bodies posted to the API and files passed to the CLI with --sealed.
//
// A sealed blob is base64url text over version || salt || nonce || ciphertext.
// The key is derived from a shared passphrase with PBKDF2-SHA256 and a fresh
// salt per blob; the cipher is XChaCha20-Poly1305.
package transit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	version1 byte = 1
	saltSize      = 16
	keySize       = chacha20poly1305.KeySize

	// DefaultIterations is the PBKDF2 work factor
	DefaultIterations = 100_000
)

var (
	// ErrMalformed is returned when a blob is not a sealed payload
	ErrMalformed = errors.New("malformed sealed payload")
	// ErrUnsealFailed is returned when authentication fails, usually a wrong passphrase
	ErrUnsealFailed = errors.New("failed to open sealed payload")
)

var encoding = base64.RawURLEncoding

// Sealer seals and opens payloads with a shared passphrase
type Sealer struct {
	passphrase []byte
	iterations int
}

// Option configures a Sealer
type Option func(*Sealer)

// WithIterations overrides the PBKDF2 work factor
func WithIterations(n int) Option {
	return func(s *Sealer) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// NewSealer creates a Sealer for passphrase
func NewSealer(passphrase string, opts ...Option) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("transit passphrase is empty")
	}
	s := &Sealer{passphrase: []byte(passphrase), iterations: DefaultIterations}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sealer) key(salt []byte) []byte {
	return pbkdf2.Key(s.passphrase, salt, s.iterations, keySize, sha256.New)
}

// Seal encrypts plaintext into an opaque text blob
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	header := make([]byte, 1+saltSize+chacha20poly1305.NonceSizeX)
	header[0] = version1
	if _, err := rand.Read(header[1:]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	salt := header[1 : 1+saltSize]
	nonce := header[1+saltSize:]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	sealed := aead.Seal(header, nonce, plaintext, []byte{version1})
	return encoding.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal
func (s *Sealer) Open(blob string) ([]byte, error) {
	raw, err := encoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	headerSize := 1 + saltSize + chacha20poly1305.NonceSizeX
	if len(raw) < headerSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	if raw[0] != version1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrMalformed, raw[0])
	}
	salt := raw[1 : 1+saltSize]
	nonce := raw[1+saltSize : headerSize]

	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, raw[headerSize:], []byte{version1})
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return plaintext, nil
}

// SealJSON marshals v and seals it
func (s *Sealer) SealJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.Seal(data)
}

// OpenJSON opens blob and unmarshals it into v
func (s *Sealer) OpenJSON(blob string, v any) error {
	data, err := s.Open(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode sealed payload: %w", err)
	}
	return nil
}
