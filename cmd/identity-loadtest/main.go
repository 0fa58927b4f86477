// Command identity-loadtest measures register, login and bearer
// authentication throughput of the engine against Redis (or an embedded
// miniredis) with an in-memory user store.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/store/memory"
)

const loadPassword = "Load-test-pass-1"

func main() {
	var (
		users       = flag.Int("users", 64, "accounts to register")
		logins      = flag.Int("logins", 256, "login operations")
		ops         = flag.Int("ops", 200000, "authenticate operations")
		concurrency = flag.Int("concurrency", 64, "concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *logins <= 0 || *ops <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "users, logins, ops and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, cleanup, err := connectRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := identity.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	cfg.Security.MaxRegistrationsPerIP = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := identity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(memory.New()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *users)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
	}

	registerStats := runPhase(*users, *concurrency, func(_ *rand.Rand, i int) error {
		_, err := engine.Register(ctx, identity.RegisterRequest{
			Email:           emails[i],
			Username:        fmt.Sprintf("load_%d", i),
			Password:        loadPassword,
			ConfirmPassword: loadPassword,
		})
		return err
	})

	var (
		tokensMu sync.Mutex
		tokens   = make([]string, 0, *logins)
	)
	loginStats := runPhase(*logins, *concurrency, func(r *rand.Rand, _ int) error {
		res, err := engine.Login(ctx, identity.LoginRequest{
			Email:    emails[r.Intn(len(emails))],
			Password: loadPassword,
		})
		if err != nil {
			return err
		}
		tokensMu.Lock()
		tokens = append(tokens, res.AccessToken)
		tokensMu.Unlock()
		return nil
	})

	if len(tokens) == 0 {
		fmt.Fprintln(os.Stderr, "no successful logins; skipping authenticate phase")
		os.Exit(1)
	}

	authStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, _, err := engine.GetAuthenticatedUser(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	fmt.Println("---- results ----")
	printStats("register", registerStats)
	printStats("login", loginStats)
	printStats("authenticate", authStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("sessions created=%d authenticate failures=%d\n",
		snap.Counters[identity.MetricSessionCreated],
		snap.Counters[identity.MetricAuthenticateFailure],
	)
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runPhase spreads ops calls of fn over concurrency workers, each with its
// own random source.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
