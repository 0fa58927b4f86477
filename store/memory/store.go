// Package memory is a process-local identity.UserStore for development,
// load tests and handler tests. Data is lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pulseapp/identity"
)

type Store struct {
	mu         sync.RWMutex
	users      map[string]*identity.User
	byEmail    map[string]string
	byUsername map[string]string
}

var _ identity.UserStore = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]*identity.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

// Len reports the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func clone(u *identity.User) *identity.User {
	out := *u
	if u.TFA != nil {
		tfa := *u.TFA
		tfa.BackupCodes = append([]string(nil), u.TFA.BackupCodes...)
		out.TFA = &tfa
	}
	return &out
}

func (s *Store) lookup(index map[string]string, key string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return clone(s.users[id]), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	return s.lookup(s.byEmail, email)
}

func (s *Store) FindByUsername(_ context.Context, username string) (*identity.User, error) {
	return s.lookup(s.byUsername, username)
}

func (s *Store) FindByID(_ context.Context, userID string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return clone(u), nil
}

func (s *Store) Create(_ context.Context, user *identity.User) error {
	if user == nil || user.ID == "" {
		return identity.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return identity.ErrEmailAlreadyUsed
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return identity.ErrUsernameAlreadyUsed
	}

	s.users[user.ID] = clone(user)
	s.byEmail[user.Email] = user.ID
	s.byUsername[user.Username] = user.ID
	return nil
}

func (s *Store) mutate(userID string, fn func(*identity.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	return fn(u)
}

func (s *Store) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.mutate(userID, func(u *identity.User) error {
		u.LastLogin = at
		return nil
	})
}

func (s *Store) SetFlags(_ context.Context, userID string, flags identity.UserFlags) error {
	return s.mutate(userID, func(u *identity.User) error {
		u.Flags = u.Flags.Set(flags)
		return nil
	})
}

func (s *Store) ClearFlags(_ context.Context, userID string, flags identity.UserFlags) error {
	return s.mutate(userID, func(u *identity.User) error {
		u.Flags = u.Flags.Clear(flags)
		return nil
	})
}

func (s *Store) EnableTFA(_ context.Context, userID string, profile identity.TFAProfile) error {
	return s.mutate(userID, func(u *identity.User) error {
		if u.Flags.Has(identity.FlagTFAEnabled) {
			return identity.ErrTFAAlreadyEnabled
		}
		p := profile
		p.BackupCodes = append([]string(nil), profile.BackupCodes...)
		u.TFA = &p
		u.Flags = u.Flags.Set(identity.FlagTFAEnabled)
		return nil
	})
}

func (s *Store) DisableTFA(_ context.Context, userID string) error {
	return s.mutate(userID, func(u *identity.User) error {
		u.TFA = nil
		u.Flags = u.Flags.Clear(identity.FlagTFAEnabled)
		return nil
	})
}

// ConsumeBackupCode removes codeHash under the write lock, so two callers
// racing on one code see exactly one true.
func (s *Store) ConsumeBackupCode(_ context.Context, userID, codeHash string) (bool, error) {
	var consumed bool
	err := s.mutate(userID, func(u *identity.User) error {
		if u.TFA == nil {
			return nil
		}
		for i, h := range u.TFA.BackupCodes {
			if h != codeHash {
				continue
			}
			u.TFA.BackupCodes = append(u.TFA.BackupCodes[:i:i], u.TFA.BackupCodes[i+1:]...)
			consumed = true
			return nil
		}
		return nil
	})
	return consumed, err
}
