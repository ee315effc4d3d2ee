package stackradar

import (
	"fmt"
	"strings"
)

// DefaultCategory is used for technologies that have no entry in the category map
const DefaultCategory = "Other"

// Fingerprints contains the raw technology tables used for detection
type Fingerprints struct {
	// Signatures is organized as an ordered list of <name, patterns>.
	// The order is the iteration order of the engine and the tie-break
	// order of detections sharing a confidence level.
	Signatures []*Signature `json:"signatures"`
	// Categories maps a technology name to its display category
	Categories map[string]string `json:"categories"`
	// Versions maps a technology name to its version extraction patterns
	Versions map[string][]string `json:"versions"`
}

// Signature is the ordered set of detection patterns for a single technology
type Signature struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
}

// CompiledFingerprints contains the compiled tables for tech detection
type CompiledFingerprints struct {
	// Apps is in signature table order
	Apps []*CompiledFingerprint
	// byName indexes Apps
	byName map[string]*CompiledFingerprint
}

// CompiledFingerprint contains the compiled patterns of one technology
type CompiledFingerprint struct {
	// name is the unique technology name
	name string
	// category is the resolved category, never empty
	category string
	// patterns contains detection patterns matched against the lowercase haystack
	patterns []*ParsedPattern
	// versions contains version patterns matched against the original-case haystack
	versions []*ParsedPattern
}

// Name returns the technology name
func (f *CompiledFingerprint) Name() string {
	return f.name
}

// Category returns the category the technology is grouped under
func (f *CompiledFingerprint) Category() string {
	return f.category
}

// PatternCount returns the number of detection patterns
func (f *CompiledFingerprint) PatternCount() int {
	return len(f.patterns)
}

// ConfigError is returned when the technology tables cannot be compiled.
type ConfigError struct {
	Technology string
	Pattern    string
	Err        error
}

func (e *ConfigError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("invalid fingerprint %q: %v", e.Technology, e.Err)
	}
	return fmt.Sprintf("invalid fingerprint %q pattern %q: %v", e.Technology, e.Pattern, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// merge overlays custom tables on top of f. Signatures with an existing name
// replace the original in place, new ones are appended.
func (f *Fingerprints) merge(custom *Fingerprints) {
	index := make(map[string]int, len(f.Signatures))
	for i, signature := range f.Signatures {
		index[signature.Name] = i
	}
	for _, signature := range custom.Signatures {
		if i, ok := index[signature.Name]; ok {
			f.Signatures[i] = signature
			continue
		}
		index[signature.Name] = len(f.Signatures)
		f.Signatures = append(f.Signatures, signature)
	}

	if f.Categories == nil {
		f.Categories = make(map[string]string)
	}
	for name, category := range custom.Categories {
		f.Categories[name] = category
	}
	if f.Versions == nil {
		f.Versions = make(map[string][]string)
	}
	for name, patterns := range custom.Versions {
		f.Versions[name] = patterns
	}
}

// validateNames checks that technology names are present and unique.
func (f *Fingerprints) validateNames() error {
	seen := make(map[string]struct{}, len(f.Signatures))
	for _, signature := range f.Signatures {
		if signature == nil || strings.TrimSpace(signature.Name) == "" {
			return &ConfigError{Err: fmt.Errorf("technology name is empty")}
		}
		if _, ok := seen[signature.Name]; ok {
			return &ConfigError{Technology: signature.Name, Err: fmt.Errorf("duplicate technology")}
		}
		seen[signature.Name] = struct{}{}
	}
	return nil
}

// compileFingerprints compiles and validates all the tables at once
func compileFingerprints(fingerprints *Fingerprints) (*CompiledFingerprints, error) {
	if err := fingerprints.validateNames(); err != nil {
		return nil, err
	}

	compiled := &CompiledFingerprints{
		Apps:   make([]*CompiledFingerprint, 0, len(fingerprints.Signatures)),
		byName: make(map[string]*CompiledFingerprint, len(fingerprints.Signatures)),
	}
	for _, signature := range fingerprints.Signatures {
		app, err := compileFingerprint(signature, fingerprints.Categories[signature.Name], fingerprints.Versions[signature.Name])
		if err != nil {
			return nil, err
		}
		compiled.Apps = append(compiled.Apps, app)
		compiled.byName[app.name] = app
	}

	for name := range fingerprints.Versions {
		if _, ok := compiled.byName[name]; !ok {
			return nil, &ConfigError{Technology: name, Err: fmt.Errorf("version patterns for unknown technology")}
		}
	}
	return compiled, nil
}

// compileFingerprint compiles the detection and version patterns of a technology
func compileFingerprint(signature *Signature, category string, versions []string) (*CompiledFingerprint, error) {
	if len(signature.Patterns) == 0 {
		return nil, &ConfigError{Technology: signature.Name, Err: fmt.Errorf("no detection patterns")}
	}
	if category == "" {
		category = DefaultCategory
	}

	compiled := &CompiledFingerprint{
		name:     signature.Name,
		category: category,
		patterns: make([]*ParsedPattern, 0, len(signature.Patterns)),
		versions: make([]*ParsedPattern, 0, len(versions)),
	}

	for _, pattern := range signature.Patterns {
		parsed, err := ParsePattern(pattern)
		if err != nil {
			return nil, &ConfigError{Technology: signature.Name, Pattern: pattern, Err: err}
		}
		compiled.patterns = append(compiled.patterns, parsed)
	}

	for _, pattern := range versions {
		parsed, err := ParseVersionPattern(pattern)
		if err != nil {
			return nil, &ConfigError{Technology: signature.Name, Pattern: pattern, Err: err}
		}
		compiled.versions = append(compiled.versions, parsed)
	}
	return compiled, nil
}

// matchCount returns how many distinct patterns matched the lowercase
// haystack at least once. Every pattern is evaluated.
func (f *CompiledFingerprint) matchCount(haystack string) int {
	var matches int
	for _, pattern := range f.patterns {
		if pattern.MatchLower(haystack) {
			matches++
		}
	}
	return matches
}

// extractVersion returns the version produced by the first version pattern
// that yields a non-empty value, or "" if none does.
func (f *CompiledFingerprint) extractVersion(haystack string) string {
	for _, pattern := range f.versions {
		if valid, version := pattern.Evaluate(haystack); valid && version != "" {
			return version
		}
	}
	return ""
}
