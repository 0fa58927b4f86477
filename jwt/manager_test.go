package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t testing.TB) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func baseConfig(priv ed25519.PrivateKey) Config {
	return Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "identity",
		Audience:      "organizations",
		KeyID:         "k1",
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(baseConfig(priv))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Sign("user:42", "onboarding")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user:42" || claims.Scope != "onboarding" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, _ := NewManager(baseConfig(priv))

	cfg := baseConfig(nil)
	cfg.PublicKey = pub
	verifier, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Sign("user:1", ""); err == nil {
		t.Fatal("expected verify-only manager to refuse signing")
	}

	token, _ := signer.Sign("user:1", "")
	if _, err := verifier.Parse(token); err != nil {
		t.Fatalf("expected verifier to accept: %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	_, priv := newEdKeys(t)
	m, _ := NewManager(baseConfig(priv))

	now := time.Now()
	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user:1",
		Issuer:    "identity",
		Audience:  gjwt.ClaimStrings{"organizations"},
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	tok.Header["kid"] = "k1"
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseRejectsExpiredAndWrongAudience(t *testing.T) {
	_, priv := newEdKeys(t)
	now := time.Now()
	cfg := baseConfig(priv)
	cfg.Now = func() time.Time { return now }
	m, _ := NewManager(cfg)

	token, _ := m.Sign("user:1", "")
	now = now.Add(2 * time.Minute)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired assertion to be rejected")
	}

	other := baseConfig(priv)
	other.Audience = "billing"
	om, _ := NewManager(other)
	fresh, _ := om.Sign("user:1", "")
	if _, err := m.Parse(fresh); err == nil {
		t.Fatal("expected wrong audience to be rejected")
	}
}

func TestParseRejectsUnknownKeyID(t *testing.T) {
	_, priv := newEdKeys(t)
	m, _ := NewManager(baseConfig(priv))

	cfg := baseConfig(priv)
	cfg.KeyID = "k2"
	other, _ := NewManager(cfg)
	token, _ := other.Sign("user:1", "")
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestHS256(t *testing.T) {
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "identity",
		Audience:      "organizations",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _ := m.Sign("user:1", "")
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	_, priv := newEdKeys(t)
	cases := map[string]func(*Config){
		"ttl too long":   func(c *Config) { c.TTL = time.Hour },
		"zero ttl":       func(c *Config) { c.TTL = 0 },
		"missing issuer": func(c *Config) { c.Issuer = "" },
		"short hs key": func(c *Config) {
			c.SigningMethod = MethodHS256
			c.PrivateKey = []byte("short")
		},
		"unknown method": func(c *Config) { c.SigningMethod = "rs256" },
		"no keys": func(c *Config) {
			c.PrivateKey = nil
			c.PublicKey = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(priv)
			mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
