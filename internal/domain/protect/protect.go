// Package protect implements protected-path matching: sensitive file
// patterns that require explicit caller confirmation before a plan touching
// them may execute under safe mode.
package protect

import "path"

// DefaultPatterns are the sensitive-path globs guarded out of the box.
// A pattern matches against the full path and against its base name.
func DefaultPatterns() []string {
	return []string{
		".env",
		".env.*",
		"*.pem",
		"*.key",
		"*.p12",
		"id_rsa",
		"id_ed25519",
		".npmrc",
		".netrc",
		"credentials*",
		"secrets.*",
	}
}

// Set is a compiled protected-path matcher plus the set of paths the caller
// has explicitly confirmed may be modified.
type Set struct {
	patterns  []string
	confirmed map[string]struct{}
}

// NewSet builds a Set from the given patterns. Empty patterns fall back to
// the defaults.
func NewSet(patterns []string, confirmed []string) *Set {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	c := make(map[string]struct{}, len(confirmed))
	for _, p := range confirmed {
		c[p] = struct{}{}
	}
	return &Set{patterns: patterns, confirmed: c}
}

// IsProtected reports whether p matches any protected pattern.
func (s *Set) IsProtected(p string) bool {
	base := path.Base(p)
	for _, pat := range s.patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// Unconfirmed returns, in input order, the paths that are protected but not
// in the confirmed set. Execution must not start while this is non-empty.
func (s *Set) Unconfirmed(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !s.IsProtected(p) {
			continue
		}
		if _, ok := s.confirmed[p]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}
