package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memUserStore struct {
	mu         sync.Mutex
	byID       map[string]*User
	byEmail    map[string]string
	byUsername map[string]string
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:       map[string]*User{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
	}
}

func copyUser(u *User) *User {
	c := *u
	if u.TFA != nil {
		tfa := *u.TFA
		tfa.BackupCodes = append([]string(nil), u.TFA.BackupCodes...)
		c.TFA = &tfa
	}
	return &c
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *memUserStore) FindByUsername(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *memUserStore) FindByID(_ context.Context, userID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *memUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrEmailAlreadyUsed
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return ErrUsernameAlreadyUsed
	}
	s.byID[user.ID] = copyUser(user)
	s.byEmail[user.Email] = user.ID
	s.byUsername[user.Username] = user.ID
	return nil
}

func (s *memUserStore) update(userID string, fn func(*User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	return fn(u)
}

func (s *memUserStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, func(u *User) error {
		u.LastLogin = at
		return nil
	})
}

func (s *memUserStore) SetFlags(_ context.Context, userID string, flags UserFlags) error {
	return s.update(userID, func(u *User) error {
		u.Flags = u.Flags.Set(flags)
		return nil
	})
}

func (s *memUserStore) ClearFlags(_ context.Context, userID string, flags UserFlags) error {
	return s.update(userID, func(u *User) error {
		u.Flags = u.Flags.Clear(flags)
		return nil
	})
}

func (s *memUserStore) EnableTFA(_ context.Context, userID string, profile TFAProfile) error {
	return s.update(userID, func(u *User) error {
		if u.Flags.Has(FlagTFAEnabled) {
			return ErrTFAAlreadyEnabled
		}
		p := profile
		p.BackupCodes = append([]string(nil), profile.BackupCodes...)
		u.TFA = &p
		u.Flags = u.Flags.Set(FlagTFAEnabled)
		return nil
	})
}

func (s *memUserStore) DisableTFA(_ context.Context, userID string) error {
	return s.update(userID, func(u *User) error {
		u.TFA = nil
		u.Flags = u.Flags.Clear(FlagTFAEnabled)
		return nil
	})
}

func (s *memUserStore) ConsumeBackupCode(_ context.Context, userID, codeHash string) (bool, error) {
	consumed := false
	err := s.update(userID, func(u *User) error {
		if u.TFA == nil {
			return nil
		}
		for i, h := range u.TFA.BackupCodes {
			if h == codeHash {
				u.TFA.BackupCodes = append(u.TFA.BackupCodes[:i], u.TFA.BackupCodes[i+1:]...)
				consumed = true
				return nil
			}
		}
		return nil
	})
	return consumed, err
}

type staticFlags map[string]bool

func (f staticFlags) IsEnabled(_ context.Context, flag string) bool {
	enabled, ok := f[flag]
	return !ok || enabled
}

type captchaFunc func(ctx context.Context, token, remoteIP string) (bool, error)

func (f captchaFunc) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return f(ctx, token, remoteIP)
}

type recordingOnboarder struct {
	mu      sync.Mutex
	orgs    []string
	pages   []string
	failOrg error
}

func (o *recordingOnboarder) CreateOrganization(_ context.Context, ownerID, name, slug string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOrg != nil {
		return "", o.failOrg
	}
	o.orgs = append(o.orgs, ownerID+":"+slug)
	return "org-" + slug, nil
}

func (o *recordingOnboarder) CreateStatusPage(_ context.Context, organizationID, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages = append(o.pages, organizationID+":"+name)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine    *Engine
	users     *memUserStore
	redis     *miniredis.Miniredis
	clock     *testClock
	onboarder *recordingOnboarder
}

func newTestEnv(t testing.TB, configure func(*Config, *Builder)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		users:     newMemUserStore(),
		redis:     mr,
		clock:     &testClock{now: time.Now()},
		onboarder: &recordingOnboarder{},
	}

	cfg := DefaultConfig()
	b := New().
		WithRedis(rdb).
		WithUserStore(env.users).
		WithOnboarder(env.onboarder).
		WithClock(env.clock.Now)
	if configure != nil {
		configure(&cfg, b)
	}
	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func registerRequest(email, username string) RegisterRequest {
	return RegisterRequest{
		Email:           email,
		Username:        username,
		Password:        "Correct-horse-1",
		ConfirmPassword: "Correct-horse-1",
	}
}

func (env *testEnv) register(t testing.TB, email, username string) *AuthResult {
	t.Helper()
	res, err := env.engine.Register(context.Background(), registerRequest(email, username))
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res
}

func (env *testEnv) session(t testing.TB, accessToken string) *Session {
	t.Helper()
	sess, _, err := env.engine.GetAuthenticatedUser(context.Background(), accessToken)
	if err != nil {
		t.Fatalf("GetAuthenticatedUser failed: %v", err)
	}
	return sess
}

func (env *testEnv) pin(t testing.TB, secret string) string {
	t.Helper()
	pin, err := env.engine.totp.CurrentPin(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("CurrentPin failed: %v", err)
	}
	return pin
}

// enableTFA runs the full enrollment for the owner of accessToken and
// returns the secret and backup codes.
func (env *testEnv) enableTFA(t *testing.T, accessToken string) (string, []string) {
	t.Helper()
	sess := env.session(t, accessToken)
	setup, err := env.engine.BeginTFASetup(context.Background(), sess)
	if err != nil {
		t.Fatalf("BeginTFASetup failed: %v", err)
	}
	codes, err := env.engine.ConfirmTFASetup(context.Background(), sess, ConfirmTFARequest{
		Secret: setup.Secret,
		Pin:    env.pin(t, setup.Secret),
	})
	if err != nil {
		t.Fatalf("ConfirmTFASetup failed: %v", err)
	}
	return setup.Secret, codes
}
