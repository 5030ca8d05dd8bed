package repair

import "sort"

// manifestPairs maps dependency manifests to the lock files that change
// with them. Dependency-class repairs may touch both.
var manifestPairs = map[string][]string{
	"package.json":   {"package-lock.json", "yarn.lock", "pnpm-lock.yaml"},
	"go.mod":         {"go.sum"},
	"Cargo.toml":     {"Cargo.lock"},
	"pyproject.toml": {"poetry.lock", "uv.lock"},
	"Gemfile":        {"Gemfile.lock"},
}

// Scope is the restricted set of paths a repair may modify, derived from
// file references in the failure output.
type Scope struct {
	paths map[string]struct{}
}

// BuildScope derives the repair scope from the failing command's output.
// Every file referenced in the failure text is in scope; for dependency
// failures the known manifest/lock pairs are added because the fix lands in
// the manifest, not in the file that failed to import.
func BuildScope(cls Classification, command, stderr, stdout string) Scope {
	s := Scope{paths: make(map[string]struct{})}

	combined := stderr + "\n" + stdout
	for _, m := range fileRefPattern.FindAllStringSubmatch(combined, -1) {
		s.paths[m[1]] = struct{}{}
	}
	if cls.FailingFile != "" {
		s.paths[cls.FailingFile] = struct{}{}
	}

	if cls.ErrorType == ErrorMissingDependency {
		for manifest, locks := range manifestPairs {
			s.paths[manifest] = struct{}{}
			for _, l := range locks {
				s.paths[l] = struct{}{}
			}
		}
	}

	return s
}

// Contains reports whether the given path may be touched by the repair.
// Every proposed repair edit is gated through this.
func (s Scope) Contains(path string) bool {
	_, ok := s.paths[path]
	return ok
}

// Paths returns the scope's paths in sorted order, for logging and events.
func (s Scope) Paths() []string {
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
