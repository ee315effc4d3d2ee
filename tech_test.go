package stackradar

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBodyDetect(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	t.Run("next-data", func(t *testing.T) {
		categories := stackradar.Detect("__NEXT_DATA__", map[string]string{})
		tech, ok := categories.Find("Next.js")
		require.True(t, ok, "could not detect next.js")
		// "__next" and "__NEXT_DATA__" both match the same marker
		require.Equal(t, ConfidenceMedium, tech.Confidence, "could not get correct confidence")
		require.Empty(t, tech.Version, "should not extract a version")
		require.Contains(t, categories, "Framework", "could not get correct category")
	})

	t.Run("react-version", func(t *testing.T) {
		categories := stackradar.Detect(`<div data-reactroot>react@18.2.0</div>`, map[string]string{})
		require.Equal(t, Categories{
			"Framework": {{Name: "React", Confidence: ConfidenceMedium, Version: "18.2.0"}},
		}, categories, "could not get correct detections")
	})

	t.Run("wordpress-high", func(t *testing.T) {
		categories := stackradar.Detect("wordpress wp-content wp-includes", nil)
		require.Equal(t, Categories{
			"CMS": {{Name: "WordPress", Confidence: ConfidenceHigh}},
		}, categories, "could not get correct detections")
	})

	t.Run("wordpress-generator-version", func(t *testing.T) {
		html := `<link href="/wp-content/themes/x.css">` +
			`<script src="/wp-includes/js/jquery/jquery.min.js?ver=3.7.1"></script>` +
			`<meta name="generator" content="WordPress 6.4.2">`
		categories := stackradar.Detect(html, nil)

		wordpress, ok := categories.Find("WordPress")
		require.True(t, ok, "could not detect wordpress")
		require.Equal(t, ConfidenceHigh, wordpress.Confidence)
		require.Equal(t, "6.4.2", wordpress.Version, "could not extract generator version")

		jquery, ok := categories.Find("jQuery")
		require.True(t, ok, "could not detect jquery")
		require.Equal(t, ConfidenceLow, jquery.Confidence)
		require.Empty(t, jquery.Version, "version patterns should not match")
	})

	t.Run("no-match", func(t *testing.T) {
		categories := stackradar.Detect("<html><body>hello</body></html>", map[string]string{})
		require.NotNil(t, categories, "result should never be nil")
		require.Empty(t, categories, "should not detect anything")
	})
}

func TestHeadersDetect(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	t.Run("cf-ray", func(t *testing.T) {
		categories := stackradar.Detect("", map[string]string{"cf-ray": "abc123"})
		require.Equal(t, Categories{
			"CDN":     {{Name: "Cloudflare", Confidence: ConfidenceLow}},
			"Hosting": {{Name: "Cloudflare Pages", Confidence: ConfidenceLow}},
		}, categories, "could not get correct detections")
	})

	t.Run("version-from-header", func(t *testing.T) {
		categories := stackradar.Detect("<p>hello</p>", map[string]string{"server": "vite@5.0.1"})
		require.Equal(t, Categories{
			"Build Tools": {{Name: "Vite", Confidence: ConfidenceLow, Version: "5.0.1"}},
		}, categories, "could not get correct detections")
	})

	t.Run("net-http", func(t *testing.T) {
		categories := stackradar.Fingerprint(map[string][]string{
			"CF-Ray":          {"abc123"},
			"Cf-Cache-Status": {"HIT"},
			"Server":          {"cloudflare"},
		}, []byte(""))

		tech, ok := categories.Find("Cloudflare")
		require.True(t, ok, "could not detect cloudflare")
		require.Equal(t, ConfidenceHigh, tech.Confidence, "could not get correct confidence")
	})
}

func TestDetectOrdering(t *testing.T) {
	stackradar, err := NewFromFingerprints(&Fingerprints{
		Signatures: []*Signature{
			{Name: "One", Patterns: []string{"alpha"}},
			{Name: "Three", Patterns: []string{"alpha", "beta", "gamma"}},
			{Name: "Two", Patterns: []string{"alpha", "beta"}},
			{Name: "AnotherOne", Patterns: []string{"beta"}},
			{Name: "Loose", Patterns: []string{"alpha"}},
		},
		Categories: map[string]string{
			"One":        "Group",
			"Three":      "Group",
			"Two":        "Group",
			"AnotherOne": "Group",
		},
	})
	require.NoError(t, err, "could not create stackradar")

	categories := stackradar.Detect("alpha beta gamma", nil)
	require.Equal(t, Categories{
		"Group": {
			{Name: "Three", Confidence: ConfidenceHigh},
			{Name: "Two", Confidence: ConfidenceMedium},
			{Name: "One", Confidence: ConfidenceLow},
			{Name: "AnotherOne", Confidence: ConfidenceLow},
		},
		DefaultCategory: {{Name: "Loose", Confidence: ConfidenceLow}},
	}, categories, "could not get correct ordering")

	for _, technologies := range categories {
		for i := 1; i < len(technologies); i++ {
			require.GreaterOrEqual(t, technologies[i-1].Confidence.Rank(), technologies[i].Confidence.Rank())
		}
	}
}

func TestDetectIdempotent(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	html := `<script src="https://cdn.jsdelivr.net/npm/bootstrap@5.3.2/dist/js/bootstrap.min.js"></script>
<script src="https://www.googletagmanager.com/gtag/js?id=G-1"></script><div class="sc-abc" data-v-1></div>`
	headers := map[string]string{"x-vercel-id": "fra1::abc", "server": "Vercel", "x-powered-by": "Next.js"}

	first := stackradar.Detect(html, headers)
	require.NotEmpty(t, first)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again := stackradar.Detect(html, headers)
		require.Equal(t, first, again, "detections should be reproducible")

		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		require.Equal(t, string(firstJSON), string(againJSON), "serialized detections should be identical")
	}

	bootstrap, ok := first.Find("Bootstrap")
	require.True(t, ok, "could not detect bootstrap")
	require.Equal(t, "5.3.2", bootstrap.Version)
}

func TestDetectConcurrent(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	html := `<div id="__next"></div><script src="/_next/static/chunks/main.js"></script>`
	expected := stackradar.Detect(html, nil)

	var wg sync.WaitGroup
	results := make([]Categories, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = stackradar.Detect(html, nil)
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.Equal(t, expected, result)
	}
}

func TestDetectMalformedInput(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	inputs := map[string]string{
		"invalid-utf8":   "\xff\xfe<html\x00><<<>>>wp-content\xc3",
		"unclosed":       strings.Repeat("<div <script src=", 5000),
		"nested-bracket": "webpackJsonp" + strings.Repeat("[", 200000),
		"long-run":       strings.Repeat("a", 1<<20),
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				stackradar.Detect(input, nil)
				stackradar.Detect(input, map[string]string{"x-odd": input})
			})
		})
	}

	categories := stackradar.Detect(inputs["invalid-utf8"], nil)
	_, ok := categories.Find("WordPress")
	require.True(t, ok, "should match through invalid bytes")
}

func TestDetectLinearTime(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	// Every repetition starts a match of the wildcard and version patterns
	// without completing it.
	unit := `"react" "version" x-powered-by panda square. django/ webpackJsonp[ `
	headers := map[string]string{"x-powered-by": strings.Repeat("x-powered-by ", 1000)}

	fastest := func(size int) time.Duration {
		html := strings.Repeat(unit, size/len(unit))
		best := time.Duration(1<<63 - 1)
		for i := 0; i < 3; i++ {
			start := time.Now()
			stackradar.Detect(html, headers)
			if elapsed := time.Since(start); elapsed < best {
				best = elapsed
			}
		}
		return best
	}

	small := fastest(100 << 10)
	large := fastest(1 << 20)
	require.Less(t, large, 10*time.Second, "1MB page took too long")
	require.Less(t, large, 50*(small+time.Millisecond), "detection time should grow linearly with input size")
}

func TestVersionOmitted(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	categories := stackradar.Detect(`<script src="/static/react.production.min.js"></script>`, nil)
	tech, ok := categories.Find("React")
	require.True(t, ok, "could not detect react")
	require.Empty(t, tech.Version)

	data, err := json.Marshal(tech)
	require.NoError(t, err)
	require.NotContains(t, string(data), "version", "absent version should not be serialized")
}

func TestScan(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")
	stackradar.now = func() time.Time {
		return time.Date(2024, 3, 1, 10, 20, 30, 123456789, time.FixedZone("CET", 3600))
	}

	result := stackradar.Scan("https://example.com/", "", map[string]string{"x-nf-request-id": "01H"})
	require.Equal(t, "https://example.com/", result.URL)
	require.Equal(t, "2024-03-01T09:20:30.123Z", result.ScannedAt)
	require.Equal(t, 1, result.Categories.Count())

	data, err := json.Marshal(result)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"categories": {"Hosting": [{"name": "Netlify", "confidence": "low"}]},
		"url": "https://example.com/",
		"scannedAt": "2024-03-01T09:20:30.123Z"
	}`, string(data))
}

func TestEmbeddedTables(t *testing.T) {
	stackradar, err := New()
	require.Nil(t, err, "could not create stackradar")

	original := stackradar.GetFingerprints()
	for _, signature := range original.Signatures {
		_, ok := original.Categories[signature.Name]
		require.True(t, ok, "missing category for %s", signature.Name)
	}
	require.Len(t, original.Categories, len(original.Signatures), "category map has unknown entries")

	names := stackradar.Technologies()
	require.Equal(t, "Next.js", names[0], "table order should be preserved")
	require.Equal(t, "CMS", stackradar.Category("WordPress"))
	require.Equal(t, DefaultCategory, stackradar.Category("Unknown Thing"))
}

func TestCustomFingerprints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	err := os.WriteFile(path, []byte(`{
		"signatures": [
			{"name": "Hono", "patterns": ["x-powered-by.*hono", "hono/\\d"]},
			{"name": "StackRadar", "patterns": ["stackradar"]}
		],
		"categories": {"StackRadar": "Analytics"},
		"versions": {"StackRadar": ["stackradar/v(\\d+)\\.(\\d+)\\;version:\\1.\\2"]}
	}`), 0o600)
	require.NoError(t, err)

	stackradar, err := New(path)
	require.NoError(t, err, "could not create stackradar with custom fingerprints")

	names := stackradar.Technologies()
	require.Equal(t, "StackRadar", names[len(names)-1], "new technologies should be appended")
	require.Equal(t, "Framework", stackradar.Category("Hono"), "replaced technology should keep its category")

	categories := stackradar.Detect(`<script src="/stackradar/v2.7/tag.js"></script>`, map[string]string{"x-powered-by": "Hono"})
	require.Equal(t, Categories{
		"Analytics": {{Name: "StackRadar", Confidence: ConfidenceLow, Version: "2.7"}},
		"Framework": {{Name: "Hono", Confidence: ConfidenceLow}},
	}, categories)

	t.Run("missing-file", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})
}
