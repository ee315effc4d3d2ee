package stackradar

import (
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// headersJSON mirrors a browser JSON.stringify of the header object: compact,
// no HTML escaping. Keys are sorted so the output is stable.
var headersJSON = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

// NormalizeHeaders flattens net/http style headers for detection. Names are
// lowercased and multiple values are joined with ", ". Names differing only
// in case are merged in lexical order of the original names.
func NormalizeHeaders(headers map[string][]string) map[string]string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	normalized := make(map[string]string, len(headers))
	for _, header := range names {
		name := strings.ToLower(header)
		value := strings.Join(headers[header], ", ")
		if existing, ok := normalized[name]; ok && existing != "" {
			value = existing + ", " + value
		}
		normalized[name] = value
	}
	return normalized
}

// sortedHeaderNames returns the header names in lexical order
func sortedHeaderNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// serializeHeaders renders headers as "name: value" pairs joined by spaces.
func serializeHeaders(headers map[string]string) string {
	var builder strings.Builder
	for i, name := range sortedHeaderNames(headers) {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(name)
		builder.WriteString(": ")
		builder.WriteString(headers[name])
	}
	return builder.String()
}

// marshalHeaders returns the JSON object form of the headers used by the
// version haystack.
func marshalHeaders(headers map[string]string) string {
	if headers == nil {
		headers = map[string]string{}
	}
	data, err := headersJSON.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(data)
}
