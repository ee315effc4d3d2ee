package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect technologies in a saved page",
		Long: `Detect runs the detection engine on an HTML file without any network
access. Response headers can be supplied with --header.`,
		Example: `  stackradar detect --html page.html -H 'Server: cloudflare' -H 'X-Powered-By: Next.js'
  curl -s https://example.com | stackradar detect --html -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDetect(cmd)
		},
	}
	cmd.Flags().String("html", "", "HTML file to inspect (- for standard input)")
	cmd.Flags().StringArrayP("header", "H", nil, "Response header (repeatable, e.g., -H 'Server: nginx')")
	cmd.Flags().StringP("url", "u", "", "URL reported in the result")
	cmd.Flags().StringP("format", "f", "json", "Output format (text, json)")
	_ = cmd.MarkFlagRequired("html")
	return cmd
}

func (a *app) runDetect(cmd *cobra.Command) error {
	htmlPath, _ := cmd.Flags().GetString("html")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")
	url, _ := cmd.Flags().GetString("url")
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format, "text", "json"); err != nil {
		return err
	}

	html, err := readHTML(cmd.InOrStdin(), htmlPath)
	if err != nil {
		return err
	}
	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return err
	}

	radar, err := a.radar()
	if err != nil {
		return err
	}
	result := radar.Scan(url, html, headers)

	out := cmd.OutOrStdout()
	if format == "text" {
		writeResultText(out, result)
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func readHTML(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("could not read html: %w", err)
	}
	return string(data), nil
}

// parseHeaders turns "Name: value" strings into a map with lowercase names.
// Repeated names are joined with ", ".
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, header := range raw {
		name, value, ok := strings.Cut(header, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (expected 'Name: value')", header)
		}
		value = strings.TrimSpace(value)
		if existing, ok := headers[name]; ok {
			value = existing + ", " + value
		}
		headers[name] = value
	}
	return headers, nil
}
