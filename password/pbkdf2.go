package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 round count used when none is configured.
	DefaultIterations = 512000
	// MinIterations is the lowest round count [New] accepts.
	MinIterations = 500000
	// KeyLength is the derived key size in bytes (256 bits).
	KeyLength = 32
	// SaltLength is the size of salts produced by [Hasher.GenerateSalt].
	SaltLength = 32
)

// Config holds the derivation parameters.
type Config struct {
	Iterations int
}

// Hasher derives PBKDF2-HMAC-SHA256 keys. It holds no mutable state and is
// safe for concurrent use.
type Hasher struct {
	iterations int
}

// New validates cfg and returns a [Hasher]. A zero Iterations selects
// [DefaultIterations].
func New(cfg Config) (*Hasher, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Iterations < MinIterations {
		return nil, fmt.Errorf("pbkdf2 iterations must be >= %d", MinIterations)
	}
	return &Hasher{iterations: cfg.Iterations}, nil
}

// Iterations reports the configured round count.
func (h *Hasher) Iterations() int {
	return h.iterations
}

// GenerateSalt returns SaltLength bytes from crypto/rand.
func (h *Hasher) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// Hash derives the key for (salt, secret) and returns it base64 encoded.
func (h *Hasher) Hash(salt []byte, secret string) string {
	key := pbkdf2.Key([]byte(secret), salt, h.iterations, KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify recomputes the hash with the stored salt and compares it to encoded
// in constant time.
func (h *Hasher) Verify(salt []byte, secret, encoded string) bool {
	computed := h.Hash(salt, secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(encoded)) == 1
}

// EncodeSalt renders a salt for storage.
func EncodeSalt(salt []byte) string {
	return base64.StdEncoding.EncodeToString(salt)
}

// DecodeSalt parses a stored salt.
func DecodeSalt(encoded string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	if len(salt) == 0 {
		return nil, errors.New("decode salt: empty")
	}
	return salt, nil
}
