package invalidation

import (
	"fmt"

	"github.com/leaguestats/statscache/pkg/cache"
)

// Mapping lists the cache key patterns to invalidate per resource type.
type Mapping map[string][]string

// DefaultMapping returns the resource-to-pattern mapping for the league API.
// Coarse on purpose: a record change clears every view of its route family
// and of the families that embed it.
func DefaultMapping() Mapping {
	return Mapping{
		"match":     {"/matches*", "/leagues*"},
		"league":    {"/leagues*"},
		"vote":      {"/votes*", "/matches*"},
		"statistic": {"/statistics*", "/matches*", "/players*", "/leagues*"},
		"player":    {"/players*", "/leagues*"},
	}
}

// ResourceTypes returns the mapped resource types.
func (m Mapping) ResourceTypes() []string {
	types := make([]string, 0, len(m))
	for rt := range m {
		types = append(types, rt)
	}
	return types
}

// compile validates every pattern up front so bad configuration fails at startup.
func (m Mapping) compile() (map[string][]cache.Pattern, error) {
	out := make(map[string][]cache.Pattern, len(m))
	for rt, raws := range m {
		key := NormalizeResourceType(rt)
		for _, raw := range raws {
			p, err := cache.CompilePattern(raw)
			if err != nil {
				return nil, fmt.Errorf("mapping for %q: %w", rt, err)
			}
			out[key] = append(out[key], p)
		}
	}
	return out, nil
}
