package auth

import "strings"

// PublicEndpoints defines endpoints that don't require a producer token.
//
// - /health, /ready, /live: orchestration probes
// - /metrics: Prometheus scraping
// - /unsubscribe: followed by recipients from email links; the link carries its own signed token
var PublicEndpoints = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
	"/unsubscribe",
}

// IsPublicEndpoint reports whether path can be served without a producer token.
// Entries ending with '/' match by prefix; others match exactly, with an
// optional trailing slash.
//
// Example:
//
//	IsPublicEndpoint("/health")          // true
//	IsPublicEndpoint("/health/detail")   // false
//	IsPublicEndpoint("/unsubscribe/")    // true
//	IsPublicEndpoint("/notifications")   // false
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range PublicEndpoints {
		if strings.HasSuffix(endpoint, "/") {
			if strings.HasPrefix(path, endpoint) {
				return true
			}
			continue
		}
		if path == endpoint || path == endpoint+"/" {
			return true
		}
	}
	return false
}
