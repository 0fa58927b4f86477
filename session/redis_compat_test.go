//go:build integration

package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pulseapp/identity/snowflake"
	"github.com/redis/go-redis/v9"
)

// redisMode is one backend the compatibility suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis and adds a real server when
// REDIS_ADDR is set.
func redisModes() []redisMode {
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot reach redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}
	return modes
}

func compatStore(t *testing.T, rdb redis.UniversalClient) *Store {
	t.Helper()
	ids, err := snowflake.New(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewStore(rdb, ids, Config{Prefix: "compat"})
}

func TestRedisCompatIssueFindRevoke(t *testing.T) {
	for _, mode := range redisModes() {
		t.Run(mode.name, func(t *testing.T) {
			store := compatStore(t, mode.setup(t))
			ctx := context.Background()

			sess, err := store.Issue(ctx, "7", testLocation())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			got, err := store.FindByAccessToken(ctx, sess.AccessToken)
			if err != nil || got.ID != sess.ID {
				t.Fatalf("FindByAccessToken: %v %+v", err, got)
			}

			for i := 0; i < 2; i++ {
				if err := store.Revoke(ctx, sess); err != nil {
					t.Fatalf("Revoke #%d: %v", i+1, err)
				}
			}
			if _, err := store.FindByAccessToken(ctx, sess.AccessToken); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestRedisCompatRevokeAllKeepsCurrent(t *testing.T) {
	for _, mode := range redisModes() {
		t.Run(mode.name, func(t *testing.T) {
			store := compatStore(t, mode.setup(t))
			ctx := context.Background()

			var keep *Session
			for i := 0; i < 4; i++ {
				sess, err := store.Issue(ctx, "7", testLocation())
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				keep = sess
			}

			n, err := store.RevokeAllForUser(ctx, "7", keep.ID)
			if err != nil {
				t.Fatalf("RevokeAllForUser: %v", err)
			}
			if n != 3 {
				t.Fatalf("revoked %d sessions, want 3", n)
			}

			left, err := store.ListForUser(ctx, "7")
			if err != nil {
				t.Fatalf("ListForUser: %v", err)
			}
			if len(left) != 1 || left[0].ID != keep.ID {
				t.Fatalf("unexpected survivors %+v", left)
			}
		})
	}
}
