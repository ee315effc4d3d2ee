package stackradar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	tests := []struct {
		name            string
		input           string
		expectedRegex   string
		expectedVer     string
		expectedLiteral string
		expectError     bool
	}{
		{
			name:          "Basic pattern",
			input:         "x-powered-by.*laravel",
			expectedRegex: "x-powered-by.*laravel",
		},
		{
			name:            "Literal pattern",
			input:           "__NEXT_DATA__",
			expectedRegex:   "__NEXT_DATA__",
			expectedLiteral: "__next_data__",
		},
		{
			name:            "Escaped literal",
			input:           `cdn\.jsdelivr\.net`,
			expectedRegex:   `cdn\.jsdelivr\.net`,
			expectedLiteral: "cdn.jsdelivr.net",
		},
		{
			name:          "With version",
			input:         "jquery-([0-9.]+)\\.js\\;version:\\1",
			expectedRegex: "jquery-([0-9.]+)\\.js",
			expectedVer:   "\\1",
		},
		{
			name:        "Invalid regex",
			input:       "react(",
			expectError: true,
		},
		{
			name:        "Empty pattern",
			input:       "",
			expectError: true,
		},
		{
			name:        "Version directive only",
			input:       "\\;version:\\1",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern, err := ParsePattern(tt.input)
			if (err != nil) != tt.expectError {
				t.Errorf("ParsePattern() error = %v, expectError %v", err, tt.expectError)
				return
			}
			if err == nil {
				if pattern.String() != tt.expectedRegex {
					t.Errorf("Expected regex = %s, got %s", tt.expectedRegex, pattern.String())
				}
				if pattern.Version != tt.expectedVer {
					t.Errorf("Expected version = %s, got %s", tt.expectedVer, pattern.Version)
				}
				if pattern.literal != tt.expectedLiteral {
					t.Errorf("Expected literal = %q, got %q", tt.expectedLiteral, pattern.literal)
				}
				if pattern.isLiteral != (tt.expectedLiteral != "") {
					t.Errorf("Expected isLiteral = %v", tt.expectedLiteral != "")
				}
			}
		})
	}
}

func TestMatchLower(t *testing.T) {
	tests := []struct {
		pattern string
		target  string
		matched bool
	}{
		{"__NEXT_DATA__", "<script id=\"__next_data__\">", true},
		{"MuiButton", "class=\"muibutton-root\"", true},
		{"sc-", "class=\"btn\"", false},
		{`django/\d`, "server: django/4", true},
		{`django/\d`, "server: django/x", false},
		{`square\.(com|site)`, "https://shop.square.site/", true},
		{"x-powered-by.*express", "x-powered-by: express", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			require.NoError(t, err)
			require.Equal(t, tt.matched, p.MatchLower(tt.target), "could not get correct match")
			require.Equal(t, tt.matched, p.Match(tt.target), "literal and regex paths disagree")
		})
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		target      string
		expectedVer string
		expectMatch bool
	}{
		{
			name:        "Default template",
			pattern:     `react@([\d.]+)`,
			target:      `<script src="https://unpkg.com/react@18.2.0/umd/react.js">`,
			expectedVer: "18.2.0",
			expectMatch: true,
		},
		{
			name:        "Case insensitive",
			pattern:     `ng-version="([\d.]+)"`,
			target:      `<app-root NG-VERSION="17.1.0">`,
			expectedVer: "17.1.0",
			expectMatch: true,
		},
		{
			name:        "Multi group template",
			pattern:     "stackradar/v(\\d+)_(\\d+)\\;version:\\1.\\2",
			target:      "/stackradar/v3_12/tag.js",
			expectedVer: "3.12",
			expectMatch: true,
		},
		{
			name:        "Unmatched optional group",
			pattern:     `gatsby(?:@([\d.]+))?`,
			target:      "gatsby-image",
			expectedVer: "",
			expectMatch: true,
		},
		{
			name:        "No match",
			pattern:     `vite@([\d.]+)`,
			target:      "vite",
			expectMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseVersionPattern(tt.pattern)
			require.NoError(t, err, "could not parse version pattern")

			match, ver := p.Evaluate(tt.target)
			require.Equal(t, tt.expectMatch, match, "could not get correct match")
			require.Equal(t, tt.expectedVer, ver, "could not get correct version")
		})
	}

	t.Run("no-capture-group", func(t *testing.T) {
		_, err := ParseVersionPattern(`react@[\d.]+`)
		require.Error(t, err, "should reject version pattern without group")
	})

	t.Run("blank", func(t *testing.T) {
		_, err := ParseVersionPattern("")
		require.ErrorIs(t, err, errEmptyPattern, "blank version pattern should be rejected")
	})
}

func TestConfidenceFromMatches(t *testing.T) {
	require.Equal(t, ConfidenceLow, ConfidenceFromMatches(1))
	require.Equal(t, ConfidenceMedium, ConfidenceFromMatches(2))
	require.Equal(t, ConfidenceHigh, ConfidenceFromMatches(3))
	require.Equal(t, ConfidenceHigh, ConfidenceFromMatches(9))

	for n := 1; n < 10; n++ {
		require.GreaterOrEqual(t, ConfidenceFromMatches(n+1).Rank(), ConfidenceFromMatches(n).Rank(), "confidence should be monotonic")
	}
	require.Zero(t, Confidence("certain").Rank())
}
