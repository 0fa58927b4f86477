package identity

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pulseapp/identity/internal"
)

const (
	totpSecretBytes = 15
	totpDigits      = 6
	totpPeriod      = 30
)

var errTOTPSecretInvalid = errors.New("totp secret invalid")

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type totpManager struct {
	issuer string
	skew   int
}

func newTOTPManager(cfg TFAConfig) *totpManager {
	return &totpManager{issuer: cfg.Issuer, skew: cfg.Skew}
}

// GenerateSecret returns a fresh 120-bit secret in unpadded base32.
func (m *totpManager) GenerateSecret() (string, error) {
	if m == nil {
		return "", ErrEngineNotReady
	}
	raw, err := internal.RandomBytes(totpSecretBytes)
	if err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth URI authenticator apps scan.
func (m *totpManager) ProvisionURI(label, secret string) string {
	return "otpauth://totp/" + uriEscape(m.issuer+":"+label) +
		"?issuer=" + uriEscape(m.issuer) +
		"&secret=" + uriEscape(secret)
}

func uriEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// CurrentPin computes the pin for the step containing now.
func (m *totpManager) CurrentPin(secret string, now time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, now.Unix()/totpPeriod), nil
}

// VerifyCode compares code against every step within the configured skew
// and returns the matching counter.
func (m *totpManager) VerifyCode(secret, code string, now time.Time) (bool, int64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isNumericString(trimmed) {
		return false, 0, nil
	}

	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return false, 0, err
	}

	baseCounter := now.Unix() / totpPeriod
	for step := -m.skew; step <= m.skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(key, counter)), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if normalized == "" {
		return nil, errTOTPSecretInvalid
	}
	key, err := totpEncoding.DecodeString(normalized)
	if err != nil || len(key) == 0 {
		return nil, errTOTPSecretInvalid
	}
	return key, nil
}

func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", totpDigits, bin%1000000)
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
