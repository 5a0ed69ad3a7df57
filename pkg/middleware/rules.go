package middleware

import (
	"sort"
	"strings"
	"time"

	"github.com/leaguestats/statscache/pkg/cache"
)

// Rule is the caching policy for a route family.
type Rule struct {
	// Prefix is the path prefix the rule applies to (e.g., "/matches")
	Prefix string

	// TTL is how long responses stay fresh
	TTL time.Duration

	// Disabled routes are never cached
	Disabled bool

	// PerIdentity stores one view per caller instead of a shared public view
	PerIdentity bool

	// MustRevalidate adds must-revalidate to Cache-Control
	MustRevalidate bool
}

// Rules resolves the rule for a path by longest prefix, falling back to Default.
type Rules struct {
	Default Rule
	routes  []Rule
}

// NewRules builds a rule set. Prefixes are normalized like cache keys.
func NewRules(def Rule, routes ...Rule) Rules {
	if def.TTL <= 0 {
		def.TTL = cache.DefaultTTL
	}

	sorted := make([]Rule, 0, len(routes))
	for _, r := range routes {
		r.Prefix = cache.NormalizePath(r.Prefix)
		if r.TTL <= 0 {
			r.TTL = def.TTL
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return Rules{Default: def, routes: sorted}
}

// Lookup returns the rule for path. A prefix only matches on a segment
// boundary, so "/match" does not select "/matches".
func (r Rules) Lookup(path string) Rule {
	path = cache.NormalizePath(path)
	for _, rule := range r.routes {
		if rule.Prefix == "/" || path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			return rule
		}
	}
	return r.Default
}

// Routes returns the configured route rules, longest prefix first.
func (r Rules) Routes() []Rule {
	return append([]Rule(nil), r.routes...)
}
