package stackradar

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strconv"
	"strings"
)

const (
	directiveSeparator     = "\\;"
	defaultVersionTemplate = "\\1"
)

// errEmptyPattern is returned for patterns without an expression
var errEmptyPattern = errors.New("empty pattern")

// ParsedPattern encapsulates a case-insensitive regular expression with
// an optional version template.
//
// Patterns are compiled with the standard library RE2 engine, so matching
// time is linear in the size of the input whatever the page contains.
type ParsedPattern struct {
	regex *regexp.Regexp
	// literal is the lowercased text of patterns without any regex operator
	literal   string
	isLiteral bool

	// Version is a template such as "\1" or "v\1.\2" expanded with the
	// capture groups of a match.
	Version string
}

// ParsePattern parses a pattern of the form "regex[\;version:template]".
// The regex part must not be empty.
func ParsePattern(pattern string) (*ParsedPattern, error) {
	parts := strings.Split(pattern, directiveSeparator)
	if parts[0] == "" {
		return nil, errEmptyPattern
	}

	regex, err := regexp.Compile("(?i)" + parts[0])
	if err != nil {
		return nil, err
	}
	p := &ParsedPattern{regex: regex}
	p.literal, p.isLiteral = literalOf(parts[0])

	for _, part := range parts[1:] {
		keyValue := strings.SplitN(part, ":", 2)
		if len(keyValue) < 2 {
			continue
		}
		if keyValue[0] == "version" {
			p.Version = keyValue[1]
		}
	}
	return p, nil
}

// ParseVersionPattern parses a version extraction pattern. The regex must
// contain at least one capturing group; the template defaults to "\1".
func ParseVersionPattern(pattern string) (*ParsedPattern, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if p.regex.NumSubexp() == 0 {
		return nil, fmt.Errorf("version pattern has no capturing group")
	}
	if p.Version == "" {
		p.Version = defaultVersionTemplate
	}
	return p, nil
}

// Match reports whether the pattern matches anywhere in target.
func (p *ParsedPattern) Match(target string) bool {
	return p.regex.MatchString(target)
}

// MatchLower is Match for a target that is already lowercased. Literal
// patterns are checked with a plain substring search.
func (p *ParsedPattern) MatchLower(target string) bool {
	if p.isLiteral {
		return strings.Contains(target, p.literal)
	}
	return p.regex.MatchString(target)
}

// Evaluate matches target and returns the expanded version template of the
// leftmost match, if any.
func (p *ParsedPattern) Evaluate(target string) (bool, string) {
	submatches := p.regex.FindStringSubmatch(target)
	if len(submatches) == 0 {
		return false, ""
	}
	return true, p.extractVersion(submatches)
}

// literalOf returns the lowercased text matched by expr when expr is a
// plain case-insensitive literal.
func literalOf(expr string) (string, bool) {
	re, err := syntax.Parse(expr, syntax.Perl|syntax.FoldCase)
	if err != nil {
		return "", false
	}
	re = re.Simplify()
	if re.Op != syntax.OpLiteral || len(re.Rune) == 0 {
		return "", false
	}
	return strings.ToLower(string(re.Rune)), true
}

// extractVersion replaces the \N placeholders of the version template with
// the matching submatches. Higher indexes go first so \1 never eats \10.
func (p *ParsedPattern) extractVersion(submatches []string) string {
	if p.Version == "" {
		return ""
	}

	result := p.Version
	for i := len(submatches) - 1; i >= 1; i-- {
		result = strings.ReplaceAll(result, "\\"+strconv.Itoa(i), submatches[i])
	}
	return strings.TrimSpace(result)
}

// String returns the source expression of the pattern.
func (p *ParsedPattern) String() string {
	return strings.TrimPrefix(p.regex.String(), "(?i)")
}
