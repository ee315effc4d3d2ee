package stackradar

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TimestampFormat is the layout of Result.ScannedAt (ISO-8601, UTC, milliseconds)
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// StackRadar is a client for working with tech detection.
//
// A StackRadar is immutable once created and safe for concurrent use.
type StackRadar struct {
	original     *Fingerprints
	fingerprints *CompiledFingerprints
	now          func() time.Time
}

// Technology is a single detected technology
type Technology struct {
	Name       string     `json:"name"`
	Confidence Confidence `json:"confidence"`
	// Version is empty when no version could be extracted
	Version string `json:"version,omitempty"`
}

// Categories groups detected technologies by category. Technologies inside
// a category are sorted by descending confidence.
type Categories map[string][]Technology

// Result is the outcome of scanning a single page
type Result struct {
	Categories Categories `json:"categories"`
	URL        string     `json:"url"`
	ScannedAt  string     `json:"scannedAt"`
}

// New creates a new tech detection instance from the embedded tables,
// optionally merged with a custom JSON file using the same layout.
func New(customFilePaths ...string) (*StackRadar, error) {
	s := &StackRadar{now: time.Now}

	var customFilePath string
	if len(customFilePaths) > 0 {
		customFilePath = customFilePaths[0]
	}

	if err := s.loadFingerprints(customFilePath); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromFingerprints creates a tech detection instance from the given
// tables only, without the embedded ones.
func NewFromFingerprints(fingerprints *Fingerprints) (*StackRadar, error) {
	compiled, err := compileFingerprints(fingerprints)
	if err != nil {
		return nil, err
	}
	return &StackRadar{
		original:     fingerprints,
		fingerprints: compiled,
		now:          time.Now,
	}, nil
}

// loadFingerprints loads the fingerprints from the embedded JSON and optionally from a custom JSON file
func (s *StackRadar) loadFingerprints(customFilePath string) error {
	var fingerprintsStruct Fingerprints

	if err := json.Unmarshal([]byte(fingerprints), &fingerprintsStruct); err != nil {
		return fmt.Errorf("could not decode embedded fingerprints: %w", err)
	}

	if customFilePath != "" {
		customFingerprints, err := LoadFingerprintsFile(customFilePath)
		if err != nil {
			return err
		}
		fingerprintsStruct.merge(customFingerprints)
	}

	compiled, err := compileFingerprints(&fingerprintsStruct)
	if err != nil {
		return err
	}
	s.original = &fingerprintsStruct
	s.fingerprints = compiled
	return nil
}

// LoadFingerprintsFile reads technology tables from a JSON file
func LoadFingerprintsFile(path string) (*Fingerprints, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read fingerprints file: %w", err)
	}

	var custom Fingerprints
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("could not decode fingerprints file %s: %w", path, err)
	}
	return &custom, nil
}

// GetFingerprints returns the original fingerprints
func (s *StackRadar) GetFingerprints() *Fingerprints {
	return s.original
}

// GetCompiledFingerprints returns the compiled fingerprints
func (s *StackRadar) GetCompiledFingerprints() *CompiledFingerprints {
	return s.fingerprints
}

// Technologies returns the names of all known technologies in table order
func (s *StackRadar) Technologies() []string {
	names := make([]string, 0, len(s.fingerprints.Apps))
	for _, app := range s.fingerprints.Apps {
		names = append(names, app.name)
	}
	return names
}

// Category returns the category of a technology. Unknown technologies
// belong to DefaultCategory.
func (s *StackRadar) Category(technology string) string {
	if app, ok := s.fingerprints.byName[technology]; ok {
		return app.category
	}
	return DefaultCategory
}

// Detect identifies technologies from a page body and its response headers.
//
// Header names are expected to be normalized by the caller already. The
// result is never nil; a page matching nothing yields an empty map.
func (s *StackRadar) Detect(html string, headers map[string]string) Categories {
	categories := make(Categories)

	haystack := strings.ToLower(html) + " " + strings.ToLower(serializeHeaders(headers))

	// Versions are searched in the original case, built on first use
	var versionHaystack string
	var versionHaystackBuilt bool

	for _, app := range s.fingerprints.Apps {
		matches := app.matchCount(haystack)
		if matches == 0 {
			continue
		}

		technology := Technology{
			Name:       app.name,
			Confidence: ConfidenceFromMatches(matches),
		}
		if len(app.versions) > 0 {
			if !versionHaystackBuilt {
				versionHaystack = html + " " + marshalHeaders(headers)
				versionHaystackBuilt = true
			}
			technology.Version = app.extractVersion(versionHaystack)
		}
		categories[app.category] = append(categories[app.category], technology)
	}

	for _, technologies := range categories {
		sort.SliceStable(technologies, func(i, j int) bool {
			return technologies[i].Confidence.Rank() > technologies[j].Confidence.Rank()
		})
	}
	return categories
}

// Fingerprint identifies technologies on a target,
// based on the received response headers and body.
//
// Body should not be mutated while this function is being called, or it may
// lead to unexpected things.
func (s *StackRadar) Fingerprint(headers map[string][]string, body []byte) Categories {
	return s.Detect(string(body), NormalizeHeaders(headers))
}

// Scan runs Detect and wraps the detections into a Result for url.
func (s *StackRadar) Scan(url, html string, headers map[string]string) *Result {
	return &Result{
		Categories: s.Detect(html, headers),
		URL:        url,
		ScannedAt:  s.now().UTC().Format(TimestampFormat),
	}
}

// Names returns the category names in lexical order
func (c Categories) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of detections across categories
func (c Categories) Count() int {
	var count int
	for _, technologies := range c {
		count += len(technologies)
	}
	return count
}

// Find returns the detection for a technology name, if present
func (c Categories) Find(name string) (Technology, bool) {
	for _, technologies := range c {
		for _, technology := range technologies {
			if technology.Name == name {
				return technology, true
			}
		}
	}
	return Technology{}, false
}

// FormatAppVersion formats a technology as "name:version", or just "name"
// when the version is unknown.
func FormatAppVersion(app, version string) string {
	if version == "" {
		return app
	}
	return fmt.Sprintf("%s:%s", app, version)
}

// String implements fmt.Stringer
func (t Technology) String() string {
	return FormatAppVersion(t.Name, t.Version)
}
