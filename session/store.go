package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pulseapp/identity/internal"
	"github.com/pulseapp/identity/snowflake"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned for unknown, revoked and expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrTokenCollision is returned when Issue could not reserve unique tokens.
var ErrTokenCollision = errors.New("session token collision")

// DefaultLifetime is the absolute lifetime of an issued session.
const DefaultLifetime = 30 * 24 * time.Hour

const maxIssueAttempts = 3

// IDGenerator mints session IDs.
type IDGenerator interface {
	Generate() snowflake.ID
}

// Config controls key namespace, lifetime and the time source used for
// CreatedAt, ExpiresAt and expiry checks. A nil Clock means time.Now.
type Config struct {
	Prefix   string
	Lifetime time.Duration
	Clock    func() time.Time
}

const issueSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1
  or redis.call("EXISTS", KEYS[2]) == 1
  or redis.call("EXISTS", KEYS[3]) == 1 then
  return 0
end
local ttl = tonumber(ARGV[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
redis.call("SET", KEYS[2], ARGV[3], "PX", ttl)
redis.call("SET", KEYS[3], ARGV[3], "PX", ttl)
redis.call("SADD", KEYS[4], ARGV[3])
if redis.call("PTTL", KEYS[4]) < ttl then
  redis.call("PEXPIRE", KEYS[4], ttl)
end
return 1
`

var issueSessionLua = redis.NewScript(issueSessionScript)

const revokeSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("DEL", KEYS[2], KEYS[3])
redis.call("SREM", KEYS[4], ARGV[1])
return existed
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// Record layout: version, id_len, id, user_len, user, access[32], refresh[32], ...
const revokeAllScript = `
local function tohex(s)
  return (string.gsub(s, ".", function(c)
    return string.format("%02x", string.byte(c))
  end))
end

local user_key = KEYS[1]
local prefix = ARGV[1]
local except = ARGV[2]
local removed = 0

for _, sid in ipairs(redis.call("SMEMBERS", user_key)) do
  if sid ~= except then
    local session_key = prefix .. ":s:" .. sid
    local data = redis.call("GET", session_key)
    if data then
      local idx = 2
      local id_len = string.byte(data, idx)
      if id_len then
        idx = idx + 1 + id_len
        local user_len = string.byte(data, idx)
        if user_len then
          idx = idx + 1 + user_len
          if #data >= idx + 63 then
            redis.call("DEL", prefix .. ":at:" .. tohex(string.sub(data, idx, idx + 31)))
            redis.call("DEL", prefix .. ":rt:" .. tohex(string.sub(data, idx + 32, idx + 63)))
          end
        end
      end
      removed = removed + redis.call("DEL", session_key)
    end
    redis.call("SREM", user_key, sid)
  end
end

return removed
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Store persists sessions in Redis. It is safe for concurrent use.
type Store struct {
	redis    redis.UniversalClient
	ids      IDGenerator
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// NewStore creates a session [Store]. Empty Prefix defaults to "sess" and a
// zero Lifetime to [DefaultLifetime].
func NewStore(redisClient redis.UniversalClient, ids IDGenerator, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "sess"
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{
		redis:    redisClient,
		ids:      ids,
		prefix:   cfg.Prefix,
		lifetime: cfg.Lifetime,
		now:      cfg.Clock,
	}
}

// Lifetime returns the absolute lifetime applied by Issue.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) accessKey(hash [32]byte) string {
	return s.prefix + ":at:" + hex.EncodeToString(hash[:])
}

func (s *Store) refreshKey(hash [32]byte) string {
	return s.prefix + ":rt:" + hex.EncodeToString(hash[:])
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// HashToken returns the digest under which a token is indexed.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Issue mints and persists a new session for userID. The returned value is
// the only place the plaintext tokens are ever available.
//
//	Performance: 1 Redis round-trip (Lua) per attempt.
func (s *Store) Issue(ctx context.Context, userID string, loc Location) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		access, err := internal.NewSessionToken()
		if err != nil {
			return nil, err
		}
		refresh, err := internal.NewSessionToken()
		if err != nil {
			return nil, err
		}

		now := s.now().Truncate(time.Millisecond)
		sess := &Session{
			ID:           s.ids.Generate().String(),
			UserID:       userID,
			AccessToken:  access,
			RefreshToken: refresh,
			AccessHash:   HashToken(access),
			RefreshHash:  HashToken(refresh),
			Location:     loc,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.lifetime),
		}

		saved, err := s.save(ctx, sess)
		if err != nil {
			return nil, err
		}
		if saved {
			return sess, nil
		}
	}

	return nil, ErrTokenCollision
}

func (s *Store) save(ctx context.Context, sess *Session) (bool, error) {
	data, err := Encode(sess)
	if err != nil {
		return false, err
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return false, errors.New("session: expiry in the past")
	}

	res, err := issueSessionLua.Run(ctx, s.redis,
		[]string{
			s.key(sess.ID),
			s.accessKey(sess.AccessHash),
			s.refreshKey(sess.RefreshHash),
			s.userKey(sess.UserID),
		},
		data, ttl.Milliseconds(), sess.ID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// FindByAccessToken resolves a bearer token to its session.
//
//	Performance: 2 Redis GETs.
func (s *Store) FindByAccessToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	hash := HashToken(token)

	sessionID, err := s.redis.Get(ctx, s.accessKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(sess.AccessHash[:], hash[:]) != 1 {
		return nil, ErrSessionNotFound
	}

	sess.AccessToken = token
	return sess, nil
}

// Get loads a session by ID. Expired records are reported as
// [ErrSessionNotFound] and removed.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		_ = s.Revoke(ctx, sess)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListForUser returns the user's live sessions ordered by creation time.
// Set members whose record is gone are pruned.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	sessions := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		if sess.Expired(now) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if len(a.ID) != len(b.ID) {
			return len(a.ID) < len(b.ID)
		}
		return a.ID < b.ID
	})
	return sessions, nil
}

// Revoke deletes exactly one session together with its token indexes.
// Revoking an already removed session is not an error.
func (s *Store) Revoke(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	err := revokeSessionLua.Run(ctx, s.redis,
		[]string{
			s.key(sess.ID),
			s.accessKey(sess.AccessHash),
			s.refreshKey(sess.RefreshHash),
			s.userKey(sess.UserID),
		},
		sess.ID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForUser deletes every session of userID except the one whose ID
// equals except (pass "" to revoke all). It returns the number of session
// records removed.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, except string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.prefix, except).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
