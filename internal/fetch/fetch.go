// Package fetch downloads a page and its response headers for detection.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rushi053/stackradar"
	"github.com/rushi053/stackradar/internal/config"
)

var (
	// ErrEmptyURL is returned when no URL was given
	ErrEmptyURL = errors.New("url is required")
	// ErrInvalidURL is returned when the URL cannot be parsed or has no host
	ErrInvalidURL = errors.New("invalid url format")
)

// StatusError is returned when the server answered with a non-2xx status
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.StatusCode, e.Status)
}

// Page is a fetched document
type Page struct {
	// URL is the final URL after redirects
	URL string
	// RequestedURL is the normalized URL that was requested
	RequestedURL string
	StatusCode   int
	HTML         string
	// Headers has lowercase names, repeated values are joined with ", "
	Headers map[string]string
}

// Options configures a Fetcher
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	Proxy        string
	MaxBodySize  int64
	MaxRedirects int
	Logger       *logrus.Logger
}

// OptionsFromConfig maps the fetch section of the configuration
func OptionsFromConfig(cfg config.FetchConfig, logger *logrus.Logger) Options {
	return Options{
		Timeout:      cfg.Timeout,
		UserAgent:    cfg.UserAgent,
		Proxy:        cfg.Proxy,
		MaxBodySize:  cfg.MaxBodySize,
		MaxRedirects: cfg.MaxRedirects,
		Logger:       logger,
	}
}

// Fetcher retrieves pages over HTTP. It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	options Options
	logger  *logrus.Logger
}

// New creates a Fetcher
func New(options Options) (*Fetcher, error) {
	if options.UserAgent == "" {
		options.UserAgent = config.DefaultUserAgent
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Encodings are decoded by readBody so that br is supported too
	transport.DisableCompression = true
	if options.Proxy != "" {
		proxyURL, err := url.Parse(options.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", options.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := options.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   options.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{client: client, options: options, logger: logger}, nil
}

// NormalizeURL validates raw and adds the https scheme when the input does
// not start with "http".
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String(), nil
}

// Fetch downloads rawURL and returns the decoded page
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.options.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	f.logger.WithFields(logrus.Fields{
		"url":      target,
		"final":    resp.Request.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("fetched page")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
		}
	}

	body, err := readBody(resp, f.options.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("could not read body of %s: %w", target, err)
	}

	return &Page{
		URL:          resp.Request.URL.String(),
		RequestedURL: target,
		StatusCode:   resp.StatusCode,
		HTML:         body,
		Headers:      stackradar.NormalizeHeaders(resp.Header),
	}, nil
}

// statusText returns the reason phrase sent by the server, falling back to
// the standard text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// drain discards what is left of a body so the connection can be reused
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
