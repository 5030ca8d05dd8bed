// Package repair classifies check failures and derives the bounded scope an
// automatic repair attempt may touch.
package repair

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// ErrorType is the failure class chosen by pattern matching check output.
type ErrorType string

const (
	// ErrorMissingDependency is the only class sanctioned to touch more
	// than one file (manifest plus lock file).
	ErrorMissingDependency ErrorType = "missing-module"
	ErrorSyntax            ErrorType = "syntax-error"
	ErrorAssertion         ErrorType = "assertion-failure"
	ErrorTypeCheck         ErrorType = "type-error"
	ErrorUnknown           ErrorType = "unknown"
)

// Classification is the result of analyzing a failed check's output.
type Classification struct {
	ErrorType         ErrorType `json:"error_type"`
	MissingDependency string    `json:"missing_dependency,omitempty"`
	FailingFile       string    `json:"failing_file,omitempty"`
}

var (
	missingModulePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)cannot find module '([^']+)'`),
		regexp.MustCompile(`(?i)module not found.*?["']([^"']+)["']`),
		regexp.MustCompile(`MODULE_NOT_FOUND`),
		regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`),
		regexp.MustCompile(`no required module provides package (\S+)`),
		regexp.MustCompile(`(?i)cannot resolve dependency ["']?([\w@/.-]+)`),
	}
	syntaxPatterns = []*regexp.Regexp{
		regexp.MustCompile(`SyntaxError`),
		regexp.MustCompile(`(?i)syntax error`),
		regexp.MustCompile(`(?i)unexpected token`),
		regexp.MustCompile(`expected ['"]?[;)}]`),
	}
	typePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bTS\d{4,5}\b`),
		regexp.MustCompile(`TypeError`),
		regexp.MustCompile(`(?i)type mismatch`),
		regexp.MustCompile(`cannot use .+ as .+ value`),
	}
	assertionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`AssertionError`),
		regexp.MustCompile(`(?m)^--- FAIL`),
		regexp.MustCompile(`(?i)expect(ed)?\(.*\)`),
		regexp.MustCompile(`(?i)assertion failed`),
	}

	// fileRefPattern extracts file references from failure text, e.g.
	// "src/app.ts:12:3" or "./lib/util.py".
	fileRefPattern = regexp.MustCompile(`(?:\./)?([\w][\w./-]*\.(?:go|ts|tsx|js|jsx|mjs|py|rb|rs|java|json|yaml|yml|toml|mod|sum))\b`)
)

// Classify pattern-matches known failure classes in the captured output of
// a failed check. Ambiguous output classifies as unknown, which repairs
// treat with the strictest (single-file) scope policy.
func Classify(stdout, stderr string, exitCode int) Classification {
	combined := stderr + "\n" + stdout

	for _, re := range missingModulePatterns {
		if m := re.FindStringSubmatch(combined); m != nil {
			c := Classification{ErrorType: ErrorMissingDependency}
			if len(m) > 1 {
				c.MissingDependency = m[1]
			}
			c.FailingFile = firstFileRef(combined)
			return c
		}
	}
	for _, re := range syntaxPatterns {
		if re.MatchString(combined) {
			return Classification{ErrorType: ErrorSyntax, FailingFile: firstFileRef(combined)}
		}
	}
	for _, re := range typePatterns {
		if re.MatchString(combined) {
			return Classification{ErrorType: ErrorTypeCheck, FailingFile: firstFileRef(combined)}
		}
	}
	for _, re := range assertionPatterns {
		if re.MatchString(combined) {
			return Classification{ErrorType: ErrorAssertion, FailingFile: firstFileRef(combined)}
		}
	}
	return Classification{ErrorType: ErrorUnknown, FailingFile: firstFileRef(combined)}
}

// AllowsMultiFile reports whether this failure class may legitimately
// require edits to more than one file. Only the dependency class qualifies
// (manifest plus lock file); everything else stays single-file-scoped.
func (c Classification) AllowsMultiFile() bool {
	return c.ErrorType == ErrorMissingDependency
}

// Fingerprint returns a stable digest identifying this failure for dedup
// analytics. It is carried in the repair run's metadata.
func Fingerprint(cls Classification, command, stderr string) string {
	h := sha256.New()
	h.Write([]byte(string(cls.ErrorType)))
	h.Write([]byte{0})
	h.Write([]byte(cls.FailingFile))
	h.Write([]byte{0})
	h.Write([]byte(command))
	h.Write([]byte{0})
	h.Write([]byte(firstLine(stderr)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func firstFileRef(text string) string {
	if m := fileRefPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
