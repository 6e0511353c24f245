package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozen returns a limiter whose clock only moves when advance is called
func frozen(t *testing.T, config *Config) (*Limiter, func(time.Duration)) {
	t.Helper()
	config.CleanupInterval = 0
	l := NewLimiter(config)
	t.Cleanup(l.Stop)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, func(d time.Duration) { now = now.Add(d) }
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := frozen(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	for i := 0; i < 10; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/runs/abc", "GET")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 9-i, info.Remaining)
	}

	allowed, info := limiter.Allow("127.0.0.1", "/api/runs/abc", "GET")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, float64(6*time.Second), float64(info.RetryAfter), float64(time.Millisecond))

	// another client has its own bucket
	allowed, _ = limiter.Allow("10.0.0.2", "/api/runs/abc", "GET")
	assert.True(t, allowed)
}

func TestLimiter_Refill(t *testing.T) {
	limiter, advance := frozen(t, &Config{Enabled: true, DefaultLimit: 60, DefaultWindow: time.Minute, DefaultBurst: 2})

	for i := 0; i < 2; i++ {
		allowed, _ := limiter.Allow("c", "/x", "GET")
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow("c", "/x", "GET")
	require.False(t, allowed)

	advance(time.Second)
	allowed, _ = limiter.Allow("c", "/x", "GET")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("c", "/x", "GET")
	assert.False(t, allowed)

	// refill never exceeds the burst
	advance(time.Hour)
	allowed, info := limiter.Allow("c", "/x", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Remaining)
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	limiter, _ := frozen(t, &Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"127.0.0.1": true},
		Blacklist:     map[string]bool{"192.168.1.1": true},
	})

	for i := 0; i < 50; i++ {
		allowed, info := limiter.Allow("127.0.0.1", "/api/runs", "GET")
		require.True(t, allowed)
		assert.Equal(t, 0, info.Limit)
	}

	allowed, _ := limiter.Allow("192.168.1.1", "/health", "GET")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := frozen(t, &Config{Enabled: false})
	for i := 0; i < 100; i++ {
		allowed, _ := limiter.Allow("127.0.0.1", "/api/runs", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	limiter, _ := frozen(t, &Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: DefaultEndpointConfigs(),
	})

	for i := 0; i < 5; i++ {
		allowed, info := limiter.Allow("c", "/api/runs", "POST")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 30, info.Limit)
	}
	allowed, _ := limiter.Allow("c", "/api/runs", "POST")
	assert.False(t, allowed)

	// reads of the same path fall back to the default bucket
	allowed, info := limiter.Allow("c", "/api/runs", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)

	// health is never limited
	for i := 0; i < 10; i++ {
		allowed, _ := limiter.Allow("c", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_PrefixEndpointsShareBucket(t *testing.T) {
	limiter, _ := frozen(t, &Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/api/runs/", Method: "DELETE", Limit: 2, Window: time.Minute},
		},
	})

	allowed, _ := limiter.Allow("c", "/api/runs/a", "DELETE")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("c", "/api/runs/b", "DELETE")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("c", "/api/runs/c", "DELETE")
	assert.False(t, allowed)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter, _ := frozen(t, &Config{Enabled: true, DefaultLimit: 100, DefaultWindow: time.Minute})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := limiter.Allow("127.0.0.1", "/api/runs", "GET"); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowedCount)
}

func TestLimiter_Sweep(t *testing.T) {
	limiter, advance := frozen(t, &Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})

	limiter.Allow("a", "/x", "GET")
	advance(30 * time.Minute)
	limiter.Allow("b", "/x", "GET")
	advance(45 * time.Minute)

	assert.Equal(t, 1, limiter.Sweep(time.Hour))
	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "b:GET:*")
}

func TestNewLimiter_NilConfig(t *testing.T) {
	limiter := NewLimiter(nil)
	defer limiter.Stop()

	allowed, info := limiter.Allow("127.0.0.1", "/test", "GET")
	assert.True(t, allowed)
	assert.Equal(t, 1000, info.Limit)
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(5, 20)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 300, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	assert.Equal(t, 20, cfg.DefaultBurst)
	assert.NotEmpty(t, cfg.EndpointConfigs)

	assert.False(t, NewConfig(0, 20).Enabled)
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_ENABLED":   "false",
		"RATE_LIMIT_WHITELIST": "10.0.0.1, 10.0.0.2,",
		"RATE_LIMIT_BLACKLIST": "6.6.6.6",
	}
	cfg := NewConfig(1, 1)
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.False(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"10.0.0.1": true, "10.0.0.2": true}, cfg.Whitelist)
	assert.Equal(t, map[string]bool{"6.6.6.6": true}, cfg.Blacklist)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/api/runs", Method: "POST", Limit: 1},
		{Path: "/api/", Method: "DELETE", Limit: 2},
		{Path: "/api/runs/", Method: "DELETE", Limit: 3},
	}

	assert.Equal(t, 1, MatchEndpoint("/api/runs", "POST", configs).Limit)
	assert.Equal(t, 3, MatchEndpoint("/api/runs/abc", "DELETE", configs).Limit)
	assert.Equal(t, 2, MatchEndpoint("/api/other", "DELETE", configs).Limit)
	assert.Nil(t, MatchEndpoint("/api/runs", "GET", configs))
	assert.Equal(t, 0, MatchEndpoint("/health", "GET", configs).Limit)
	assert.Equal(t, 0, MatchEndpoint("/api/runs", "OPTIONS", configs).Limit)
}
