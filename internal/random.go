package internal

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CharClass selects which character sets RandomString draws from.
type CharClass uint8

const (
	Alphabetic CharClass = 1 << iota
	Numeric
	Special
)

const (
	// H, I, O and Q are left out to avoid look-alikes when codes are read aloud.
	alphabeticChars = "abcdefghijklmnopqrstuvwxyzABCDEFGJKLMNPRSTUVWXYZ"
	numericChars    = "0123456789"
	specialChars    = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	SessionTokenLength = 128
	BackupCodeLength   = 6
)

// RandomString returns length characters drawn uniformly from the selected
// classes using crypto/rand. A length below one or an empty class set is a
// programming error and panics.
func RandomString(length int, classes CharClass) (string, error) {
	if length < 1 {
		panic("internal: random string length must be >= 1")
	}

	var alphabet strings.Builder
	if classes&Alphabetic != 0 {
		alphabet.WriteString(alphabeticChars)
	}
	if classes&Numeric != 0 {
		alphabet.WriteString(numericChars)
	}
	if classes&Special != 0 {
		alphabet.WriteString(specialChars)
	}
	chars := alphabet.String()
	if chars == "" {
		panic("internal: random string requires at least one character class")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(chars)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(chars[n.Int64()])
	}

	return b.String(), nil
}

// NewSessionToken returns an opaque URL-safe access or refresh token.
func NewSessionToken() (string, error) {
	return RandomString(SessionTokenLength, Alphabetic|Numeric)
}

// NewBackupCode returns a numeric TFA backup code.
func NewBackupCode() (string, error) {
	return RandomString(BackupCodeLength, Numeric)
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
