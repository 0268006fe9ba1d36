// Package patterns parses, validates, and matches the shell-style path
// patterns that select or exclude files during ingestion. An asterisk matches
// any run of characters including path separators.
package patterns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/temirov/ingest/internal/utils"
)

// ErrInvalidPattern signals a pattern containing characters outside the
// allowed set: alphanumerics, dash (-), underscore (_), dot (.), forward
// slash (/), plus (+), asterisk (*), and at sign (@).
var ErrInvalidPattern = errors.New("pattern contains characters outside the allowed set")

const patternSeparators = ", "

// Parse splits raw pattern arguments on commas and spaces, validates each
// piece against the allowed character set, and normalizes the survivors.
// Duplicates are dropped while preserving first-occurrence order.
func Parse(rawPatterns ...string) ([]string, error) {
	var normalized []string
	for _, rawPattern := range rawPatterns {
		for _, piece := range strings.FieldsFunc(rawPattern, isPatternSeparator) {
			candidate := strings.ReplaceAll(piece, "\\", "/")
			if !isValidPattern(candidate) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, piece)
			}
			normalized = append(normalized, normalize(candidate))
		}
	}
	return utils.DeduplicatePatterns(normalized), nil
}

func isPatternSeparator(separator rune) bool {
	return strings.ContainsRune(patternSeparators, separator)
}

func isValidPattern(patternValue string) bool {
	for _, runeValue := range patternValue {
		if runeValue >= 'a' && runeValue <= 'z' {
			continue
		}
		if runeValue >= 'A' && runeValue <= 'Z' {
			continue
		}
		if runeValue >= '0' && runeValue <= '9' {
			continue
		}
		if strings.ContainsRune("-_./+*@", runeValue) {
			continue
		}
		return false
	}
	return true
}

// normalize strips leading slashes and turns directory patterns into
// subtree patterns by appending an asterisk after the trailing slash.
func normalize(patternValue string) string {
	patternValue = strings.TrimLeft(patternValue, "/")
	if strings.HasSuffix(patternValue, "/") {
		patternValue += "*"
	}
	return patternValue
}

// RemoveLiteral returns patternValues without any entry literally present in
// toRemove. Inclusion overrides exclusion by exact pattern text, not by match.
func RemoveLiteral(patternValues, toRemove []string) []string {
	if len(toRemove) == 0 {
		return patternValues
	}
	removeSet := make(map[string]struct{}, len(toRemove))
	for _, pattern := range toRemove {
		removeSet[pattern] = struct{}{}
	}
	var remaining []string
	for _, pattern := range patternValues {
		if _, removed := removeSet[pattern]; removed {
			continue
		}
		remaining = append(remaining, pattern)
	}
	return remaining
}

// Matcher tests relative paths against a fixed pattern set.
type Matcher struct {
	compiled []glob.Glob
}

// NewMatcher compiles the provided patterns. Patterns from unvalidated
// sources may carry glob metacharacters beyond the asterisk; those are
// escaped so every pattern compiles and matches literally.
func NewMatcher(patternValues []string) (*Matcher, error) {
	matcher := &Matcher{}
	for _, patternValue := range patternValues {
		if patternValue == "" {
			continue
		}
		compiled, compileError := glob.Compile(escapeUnsupportedMeta(patternValue))
		if compileError != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", patternValue, compileError)
		}
		matcher.compiled = append(matcher.compiled, compiled)
	}
	return matcher, nil
}

// Matches reports whether relativePath matches any pattern in the set.
func (matcher *Matcher) Matches(relativePath string) bool {
	for _, compiled := range matcher.compiled {
		if compiled.Match(relativePath) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher holds no patterns.
func (matcher *Matcher) Empty() bool {
	return len(matcher.compiled) == 0
}

func escapeUnsupportedMeta(patternValue string) string {
	var builder strings.Builder
	for _, runeValue := range patternValue {
		switch runeValue {
		case '\\', '?', '[', ']', '{', '}', ',':
			builder.WriteRune('\\')
		}
		builder.WriteRune(runeValue)
	}
	return builder.String()
}
