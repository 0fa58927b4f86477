package session

import "time"

// Location is the request origin captured when a session is issued.
type Location struct {
	IP        string
	UserAgent string
	Country   string
	Region    string
	City      string
}

// Session is one authenticated device or browser.
//
// AccessToken and RefreshToken hold plaintext only on the value returned by
// [Store.Issue]; sessions read back from Redis carry the digests alone
// (FindByAccessToken echoes the presented access token).
type Session struct {
	ID     string
	UserID string

	AccessToken  string
	RefreshToken string
	AccessHash   [32]byte
	RefreshHash  [32]byte

	Location Location

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
