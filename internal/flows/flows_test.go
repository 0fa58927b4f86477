package flows

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/pulseapp/identity/session"
)

var (
	errNotReady     = errors.New("not ready")
	errDisabled     = errors.New("feature disabled")
	errRateLimited  = errors.New("rate limited")
	errEmailUsed    = errors.New("email used")
	errUsernameUsed = errors.New("username used")
	errBadCreds     = errors.New("bad credentials")
	errAcctDisabled = errors.New("account disabled")
	errTFARequired  = errors.New("tfa required")
	errNoUser       = errors.New("no user")
	errPinInvalid   = errors.New("pin invalid")
	errNotEnabled   = errors.New("tfa not enabled")
	errEnabled      = errors.New("tfa enabled")
	errExpired      = errors.New("setup expired")
	errMismatch     = errors.New("setup mismatch")
	errNoSetup      = errors.New("no setup")
	errNoDevice     = errors.New("no device")
	errUnauth       = errors.New("unauthenticated")
)

func registerDeps() (RegisterDeps, *[]RegisterUserInput) {
	created := &[]RegisterUserInput{}
	return RegisterDeps{
		FeatureEnabled: func(context.Context) bool { return true },
		Validate:       func(RegisterRequest) error { return nil },
		GenerateSalt:   func() ([]byte, error) { return []byte("salt"), nil },
		HashPassword:   func(salt []byte, pw string) string { return string(salt) + ":" + pw },
		NewUserID:      func() string { return "42" },
		CreateUser: func(_ context.Context, in RegisterUserInput) error {
			*created = append(*created, in)
			return nil
		},
		IssueSession: func(_ context.Context, userID string) (*IssuedSession, error) {
			return &IssuedSession{ID: "s1", UserID: userID, AccessToken: "a", RefreshToken: "r"}, nil
		},
		Errors: RegisterErrors{
			EngineNotReady:      errNotReady,
			FeatureDisabled:     errDisabled,
			RateLimited:         errRateLimited,
			EmailAlreadyUsed:    errEmailUsed,
			UsernameAlreadyUsed: errUsernameUsed,
		},
	}, created
}

func TestRunRegisterHappyPath(t *testing.T) {
	deps, created := registerDeps()
	issued, err := RunRegister(context.Background(), RegisterRequest{Email: "a@b.c", Username: "alice", Password: "pw"}, deps)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if issued.UserID != "42" {
		t.Fatalf("unexpected user id %q", issued.UserID)
	}
	if len(*created) != 1 || (*created)[0].PasswordHash != "salt:pw" {
		t.Fatalf("unexpected created users %+v", *created)
	}
}

func TestRunRegisterFeatureGateRunsFirst(t *testing.T) {
	deps, created := registerDeps()
	deps.FeatureEnabled = func(context.Context) bool { return false }
	validated := false
	deps.Validate = func(RegisterRequest) error {
		validated = true
		return nil
	}
	if _, err := RunRegister(context.Background(), RegisterRequest{}, deps); !errors.Is(err, errDisabled) {
		t.Fatalf("expected feature disabled, got %v", err)
	}
	if validated || len(*created) != 0 {
		t.Fatal("expected nothing to run past the feature gate")
	}
}

func TestRunRegisterDuplicateCountsMetric(t *testing.T) {
	deps, _ := registerDeps()
	deps.CreateUser = func(context.Context, RegisterUserInput) error { return errEmailUsed }
	deps.Metrics.Duplicate = 3
	var hits [8]int
	deps.MetricInc = func(id int) { hits[id]++ }

	_, err := RunRegister(context.Background(), RegisterRequest{Email: "a@b.c"}, deps)
	if !errors.Is(err, errEmailUsed) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if hits[3] != 1 {
		t.Fatalf("expected duplicate metric once, got %d", hits[3])
	}
}

func TestRunRegisterSessionFailureSkipsInsert(t *testing.T) {
	deps, created := registerDeps()
	errRedis := errors.New("redis down")
	deps.IssueSession = func(context.Context, string) (*IssuedSession, error) { return nil, errRedis }

	if _, err := RunRegister(context.Background(), RegisterRequest{Email: "a@b.c"}, deps); !errors.Is(err, errRedis) {
		t.Fatalf("expected session error, got %v", err)
	}
	if len(*created) != 0 {
		t.Fatalf("expected no user persisted, got %d", len(*created))
	}
}

func TestRunRegisterInsertFailureRevokesSession(t *testing.T) {
	deps, _ := registerDeps()
	deps.CreateUser = func(context.Context, RegisterUserInput) error { return errUsernameUsed }
	var revoked []string
	deps.RevokeSession = func(_ context.Context, issued *IssuedSession) error {
		revoked = append(revoked, issued.ID)
		return nil
	}

	if _, err := RunRegister(context.Background(), RegisterRequest{Email: "a@b.c"}, deps); !errors.Is(err, errUsernameUsed) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if len(revoked) != 1 || revoked[0] != "s1" {
		t.Fatalf("expected issued session revoked once, got %v", revoked)
	}
}

func TestRunRegisterLimiterStopsBeforeHashing(t *testing.T) {
	deps, _ := registerDeps()
	deps.EnforceLimiter = func(context.Context) error { return errRateLimited }
	deps.HashPassword = func([]byte, string) string {
		t.Fatal("hash must not run when rate limited")
		return ""
	}
	if _, err := RunRegister(context.Background(), RegisterRequest{}, deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func loginDeps(user *LoginUser) LoginDeps {
	return LoginDeps{
		FindUser: func(context.Context, string) (*LoginUser, error) {
			if user == nil {
				return nil, errNoUser
			}
			return user, nil
		},
		VerifyPassword: func(pw, salt, hash string) bool { return salt+":"+pw == hash },
		IssueSession: func(_ context.Context, userID string) (*IssuedSession, error) {
			return &IssuedSession{ID: "s1", UserID: userID}, nil
		},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errBadCreds,
			AccountDisabled:    errAcctDisabled,
			TFARequired:        errTFARequired,
			RateLimited:        errRateLimited,
			UserNotFound:       errNoUser,
		},
	}
}

func TestRunLoginUnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	var failures int32
	unknown := loginDeps(nil)
	burned := false
	unknown.BurnPassword = func(string) { burned = true }
	unknown.IncrementLoginRate = func(context.Context, string, string) error {
		atomic.AddInt32(&failures, 1)
		return nil
	}
	_, errUnknown := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw"}, unknown)

	wrong := loginDeps(&LoginUser{ID: "1", PasswordSalt: "s", PasswordHash: "s:right"})
	wrong.IncrementLoginRate = unknown.IncrementLoginRate
	_, errWrong := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw"}, wrong)

	if !errors.Is(errUnknown, errBadCreds) || !errors.Is(errWrong, errBadCreds) {
		t.Fatalf("expected invalid credentials for both, got %v / %v", errUnknown, errWrong)
	}
	if !burned {
		t.Fatal("expected password hash work for unknown user")
	}
	if failures != 2 {
		t.Fatalf("expected two limiter failures, got %d", failures)
	}
}

func TestRunLoginDisabledAfterPassword(t *testing.T) {
	deps := loginDeps(&LoginUser{ID: "1", PasswordSalt: "s", PasswordHash: "s:pw", Disabled: true})
	if _, err := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw"}, deps); !errors.Is(err, errAcctDisabled) {
		t.Fatalf("expected account disabled, got %v", err)
	}
}

func TestRunLoginTFA(t *testing.T) {
	user := &LoginUser{ID: "1", PasswordSalt: "s", PasswordHash: "s:pw", TFA: TFAUser{ID: "1", TFAEnabled: true, Secret: "X"}}
	deps := loginDeps(user)
	deps.VerifyPin = func(_ context.Context, _ TFAUser, pin string) error {
		if pin != "123456" {
			return errPinInvalid
		}
		return nil
	}

	if _, err := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw"}, deps); !errors.Is(err, errTFARequired) {
		t.Fatalf("expected tfa required, got %v", err)
	}
	if _, err := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw", Pin: "000000"}, deps); !errors.Is(err, errPinInvalid) {
		t.Fatalf("expected pin invalid, got %v", err)
	}
	issued, err := RunLogin(context.Background(), LoginRequest{Email: "x@y.z", Password: "pw", Pin: "123456"}, deps)
	if err != nil || issued.UserID != "1" {
		t.Fatalf("expected login, got %v", err)
	}
}

func pinDeps(codes map[string]bool) PinDeps {
	return PinDeps{
		HashBackupCode: func(code, salt string) string { return salt + code },
		ConsumeBackupCode: func(_ context.Context, _ string, hash string) (bool, error) {
			if codes[hash] {
				delete(codes, hash)
				return true, nil
			}
			return false, nil
		},
		VerifyTOTP: func(_ string, code string) (bool, error) { return code == "111111", nil },
		Errors: PinErrors{
			EngineNotReady: errNotReady,
			PinInvalid:     errPinInvalid,
			RateLimited:    errRateLimited,
			TFANotEnabled:  errNotEnabled,
		},
	}
}

func TestRunVerifyPinBackupCodeSingleUse(t *testing.T) {
	deps := pinDeps(map[string]bool{"s222222": true})
	user := TFAUser{ID: "1", TFAEnabled: true, Secret: "X", BackupCodeSalt: "s"}

	if err := RunVerifyPin(context.Background(), user, "222222", deps); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := RunVerifyPin(context.Background(), user, "222222", deps); !errors.Is(err, errPinInvalid) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}
	if err := RunVerifyPin(context.Background(), user, "111111", deps); err != nil {
		t.Fatalf("totp: %v", err)
	}
}

func TestRunVerifyPinLimiter(t *testing.T) {
	deps := pinDeps(nil)
	deps.RecordFailure = func(context.Context, string) error { return errRateLimited }
	user := TFAUser{ID: "1", TFAEnabled: true, Secret: "X"}
	if err := RunVerifyPin(context.Background(), user, "999999", deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited on the failure that hits the cap, got %v", err)
	}

	deps.CheckLimiter = func(context.Context, string) error { return errRateLimited }
	if err := RunVerifyPin(context.Background(), user, "111111", deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected blocked pin, got %v", err)
	}
}

func tfaDeps(pending map[string]string, enabled map[string]TFAProfileInput) TFADeps {
	var next int32
	return TFADeps{
		GenerateSecret: func() (string, error) { return "SECRET", nil },
		ProvisionURI:   func(label, secret string) string { return label + "/" + secret },
		BeginSetup: func(_ context.Context, userID, secret string) error {
			pending[userID] = secret
			return nil
		},
		PeekSetup: func(_ context.Context, userID string) (string, error) {
			s, ok := pending[userID]
			if !ok {
				return "", errNoSetup
			}
			return s, nil
		},
		ClearSetup: func(_ context.Context, userID string) error {
			delete(pending, userID)
			return nil
		},
		VerifyTOTP: func(_ string, code string) (bool, error) { return code == "111111", nil },
		NewBackupCode: func() (string, error) {
			n := atomic.AddInt32(&next, 1)
			return string(rune('a'+n)) + "00000", nil
		},
		GenerateSalt:   func() (string, error) { return "salt", nil },
		HashBackupCode: func(code, salt string) string { return salt + code },
		EnableTFA: func(_ context.Context, userID string, p TFAProfileInput) error {
			if _, ok := enabled[userID]; ok {
				return errEnabled
			}
			enabled[userID] = p
			return nil
		},
		Errors: TFAErrors{
			EngineNotReady: errNotReady,
			AlreadyEnabled: errEnabled,
			NotEnabled:     errNotEnabled,
			SetupExpired:   errExpired,
			SetupMismatch:  errMismatch,
			SetupNotFound:  errNoSetup,
			PinInvalid:     errPinInvalid,
		},
	}
}

func TestRunConfirmTFASetup(t *testing.T) {
	pending := map[string]string{}
	enabled := map[string]TFAProfileInput{}
	deps := tfaDeps(pending, enabled)
	var revokedExcept string
	deps.RevokeOtherSessions = func(_ context.Context, _ string, except string) (int, error) {
		revokedExcept = except
		return 2, nil
	}
	user := TFAUser{ID: "1", Username: "alice"}

	if _, err := RunConfirmTFASetup(context.Background(), user, "s1", "SECRET", "111111", deps); !errors.Is(err, errExpired) {
		t.Fatalf("expected setup expired, got %v", err)
	}

	setup, err := RunBeginTFASetup(context.Background(), user, "s1", deps)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if setup.URI != "alice/SECRET" {
		t.Fatalf("unexpected uri %q", setup.URI)
	}

	if _, err := RunConfirmTFASetup(context.Background(), user, "s1", "OTHER", "111111", deps); !errors.Is(err, errMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := RunConfirmTFASetup(context.Background(), user, "s1", "SECRET", "000000", deps); !errors.Is(err, errPinInvalid) {
		t.Fatalf("expected pin invalid, got %v", err)
	}

	codes, err := RunConfirmTFASetup(context.Background(), user, "s1", "SECRET", "111111", deps)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(codes) != 8 {
		t.Fatalf("expected 8 codes, got %d", len(codes))
	}
	profile := enabled["1"]
	if profile.Secret != "SECRET" || len(profile.BackupCodes) != 8 {
		t.Fatalf("unexpected stored profile %+v", profile)
	}
	for i, code := range codes {
		if profile.BackupCodes[i] != "salt"+code {
			t.Fatalf("code %d stored as %q", i, profile.BackupCodes[i])
		}
	}
	if revokedExcept != "s1" {
		t.Fatalf("expected current session kept, got %q", revokedExcept)
	}
	if _, ok := pending["1"]; ok {
		t.Fatal("expected setup cleared")
	}

	user.TFAEnabled = true
	if _, err := RunBeginTFASetup(context.Background(), user, "s1", deps); !errors.Is(err, errEnabled) {
		t.Fatalf("expected already enabled, got %v", err)
	}
}

func TestRunDisableTFA(t *testing.T) {
	deps := tfaDeps(map[string]string{}, map[string]TFAProfileInput{})
	disabled := false
	deps.VerifyPin = func(_ context.Context, _ TFAUser, pin string) error {
		if pin != "111111" {
			return errPinInvalid
		}
		return nil
	}
	deps.DisableTFA = func(context.Context, string) error {
		disabled = true
		return nil
	}

	if err := RunDisableTFA(context.Background(), TFAUser{ID: "1"}, "s1", "111111", deps); !errors.Is(err, errNotEnabled) {
		t.Fatalf("expected not enabled, got %v", err)
	}
	user := TFAUser{ID: "1", TFAEnabled: true, Secret: "X"}
	if err := RunDisableTFA(context.Background(), user, "s1", "000000", deps); !errors.Is(err, errPinInvalid) {
		t.Fatalf("expected pin invalid, got %v", err)
	}
	if disabled {
		t.Fatal("disable must not run after a bad pin")
	}
	if err := RunDisableTFA(context.Background(), user, "s1", "111111", deps); err != nil || !disabled {
		t.Fatalf("expected disable, got %v", err)
	}
}

func TestRunRevokeDeviceOwnSessionsOnly(t *testing.T) {
	own := []*session.Session{{ID: "a", UserID: "1"}, {ID: "b", UserID: "1"}}
	var revoked []string
	deps := SessionDeps{
		ListForUser: func(context.Context, string) ([]*session.Session, error) { return own, nil },
		RevokeSession: func(_ context.Context, s *session.Session) error {
			revoked = append(revoked, s.ID)
			return nil
		},
		Errors: SessionErrors{EngineNotReady: errNotReady, Unauthenticated: errUnauth, DeviceNotFound: errNoDevice},
	}

	if err := RunRevokeDevice(context.Background(), own[0], "z", deps); !errors.Is(err, errNoDevice) {
		t.Fatalf("expected device not found, got %v", err)
	}
	if err := RunRevokeDevice(context.Background(), own[0], "b", deps); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(revoked) != 1 || revoked[0] != "b" {
		t.Fatalf("unexpected revocations %v", revoked)
	}
	if err := RunLogout(context.Background(), nil, deps); !errors.Is(err, errUnauth) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
