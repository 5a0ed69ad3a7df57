package cache

import (
	"fmt"
	"strings"
	"time"
)

// ETagMatches reports whether an If-None-Match header value matches etag.
// It accepts "*", comma-separated lists and weak validators (W/"...").
func ETagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" || etag == "" {
		return false
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}

// CacheControl builds a Cache-Control value for the remaining freshness window.
func CacheControl(private bool, remaining time.Duration, mustRevalidate bool) string {
	scope := "public"
	if private {
		scope = "private"
	}

	seconds := int64(remaining / time.Second)
	if seconds < 0 {
		seconds = 0
	}

	value := fmt.Sprintf("%s, max-age=%d", scope, seconds)
	if mustRevalidate {
		value += ", must-revalidate"
	}
	return value
}

// WantsBypass reports whether request cache directives ask to skip the cache.
func WantsBypass(cacheControl, pragma string) bool {
	for _, directive := range strings.Split(cacheControl, ",") {
		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "no-cache", "no-store":
			return true
		}
	}
	return strings.EqualFold(strings.TrimSpace(pragma), "no-cache")
}
