package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited is returned for requests that never consume tokens
var unlimited = &EndpointConfig{}

// MatchEndpoint picks the rule for a request. An exact path wins; otherwise
// the longest rule path ending in "/" that prefixes path is used, so
// "/api/runs/" covers "/api/runs/{id}". Health checks and CORS preflights
// are unlimited. A nil result means the default limit applies.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == http.MethodOptions || (method == http.MethodGet && path == "/health") {
		return unlimited
	}

	var prefix *EndpointConfig
	for i := range configs {
		c := &configs[i]
		switch {
		case c.Method != method:
		case c.Path == path:
			return c
		case strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path):
			if prefix == nil || len(c.Path) > len(prefix.Path) {
				prefix = c
			}
		}
	}
	return prefix
}
