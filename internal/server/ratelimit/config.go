package ratelimit

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// NewConfig builds a configuration whose default bucket refills at rps
// requests per second and holds up to burst requests.
func NewConfig(rps float64, burst int) *Config {
	if rps <= 0 {
		return &Config{Enabled: false}
	}
	limit := int(math.Ceil(rps * 60))
	if burst <= 0 {
		burst = limit
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    limit,
		DefaultWindow:   time.Minute,
		DefaultBurst:    burst,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       make(map[string]bool),
		Blacklist:       make(map[string]bool),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// ApplyEnv overrides the configuration from RATE_LIMIT_ENABLED,
// RATE_LIMIT_WHITELIST and RATE_LIMIT_BLACKLIST. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("RATE_LIMIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Enabled = enabled
		}
	}
	if v := getenv("RATE_LIMIT_WHITELIST"); v != "" {
		c.Whitelist = parseIPList(v)
	}
	if v := getenv("RATE_LIMIT_BLACKLIST"); v != "" {
		c.Blacklist = parseIPList(v)
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Pipeline starts are the expensive calls
		{Path: "/api/runs", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		// Imports may hit remote share pages
		{Path: "/api/extract", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		// Token exchange runs bcrypt
		{Path: "/api/token", Method: "POST", Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/api/runs/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
		// POST /api/conversations/{id}/compress starts a pipeline too
		{Path: "/api/conversations/", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/api/conversations/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; /health is unlimited (see MatchEndpoint)
	}
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
