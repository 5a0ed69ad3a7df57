package cache

import (
	"net/url"
	"sort"
	"strings"
)

// PublicIdentity is the identity discriminator for responses shared by all callers.
const PublicIdentity = "public"

// Key represents a unique identifier for a cached read response.
type Key struct {
	// Path is the request path (e.g., "/matches")
	Path string

	// Query are the query parameters (e.g., {"leagueId": "42"})
	Query url.Values

	// Identity separates per-caller views; empty means public
	Identity string
}

// String generates a deterministic cache key string.
// Format: <path>?<sorted query>@<identity>
//
// Example:
//
//	/matches?leagueId=42&status=published@public
//
// Keys start with the normalized path so route-prefix patterns such as
// "/matches*" select every view of that route family.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(NormalizePath(k.Path))

	if q := encodeSorted(k.Query); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}

	b.WriteByte('@')
	if k.Identity == "" {
		b.WriteString(PublicIdentity)
	} else {
		b.WriteString(k.Identity)
	}
	return b.String()
}

// NormalizePath collapses repeated slashes and drops a trailing slash.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// encodeSorted encodes query params with keys and values sorted.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		values := append([]string(nil), q[key]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
