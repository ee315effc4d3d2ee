package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rushi053/stackradar"
	"github.com/rushi053/stackradar/internal/fetch"
)

// scanRecord is the outcome of scanning one target
type scanRecord struct {
	ID     string             `json:"id"`
	Target string             `json:"target"`
	Result *stackradar.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func newScanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Fetch websites and detect their technologies",
		Long: `Scan fetches every URL and prints the detected technologies grouped by
category. URLs are read from standard input, one per line, when none are
given as arguments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd, args)
		},
	}
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, jsonl)")
	cmd.Flags().IntP("concurrency", "t", 4, "Number of targets scanned in parallel")
	return cmd
}

func (a *app) runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if err := checkFormat(format, "text", "json", "jsonl"); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	targets := args
	if len(targets) == 0 {
		var err error
		if targets, err = readTargets(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("could not read targets: %w", err)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no target URL given")
	}

	radar, err := a.radar()
	if err != nil {
		return err
	}
	fetcher, err := fetch.New(fetch.OptionsFromConfig(a.cfg.Fetch, a.logger))
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	records := scanTargets(ctx, radar, fetcher, a.logger, targets, concurrency)
	if err := writeRecords(cmd.OutOrStdout(), format, records); err != nil {
		return err
	}

	var failed int
	for _, record := range records {
		if record.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scans failed", failed, len(records))
	}
	return nil
}

// scanTargets scans targets with at most concurrency fetches in flight.
// Records keep the order of targets.
func scanTargets(ctx context.Context, radar *stackradar.StackRadar, fetcher *fetch.Fetcher, log *logrus.Logger, targets []string, concurrency int) []*scanRecord {
	records := make([]*scanRecord, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			record := &scanRecord{ID: uuid.NewString(), Target: target}
			records[i] = record

			page, err := fetcher.Fetch(ctx, target)
			if err != nil {
				log.WithError(err).WithField("url", target).Warn("Scan failed")
				record.Error = err.Error()
				return nil
			}
			record.Result = radar.Scan(page.RequestedURL, page.HTML, page.Headers)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// readTargets reads one URL per line, skipping blanks and # comments
func readTargets(r io.Reader) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, scanner.Err()
}

func writeRecords(w io.Writer, format string, records []*scanRecord) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "jsonl":
		encoder := json.NewEncoder(w)
		for _, record := range records {
			if err := encoder.Encode(record); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, record := range records {
			if record.Error != "" {
				fmt.Fprintf(w, "%s\n  error: %s\n", record.Target, record.Error)
				continue
			}
			writeResultText(w, record.Result)
		}
		return nil
	}
}

// writeResultText prints a result as an indented category listing
func writeResultText(w io.Writer, result *stackradar.Result) {
	fmt.Fprintf(w, "%s (%d technologies)\n", result.URL, result.Categories.Count())
	for _, category := range result.Categories.Names() {
		fmt.Fprintf(w, "  %s\n", category)
		for _, technology := range result.Categories[category] {
			fmt.Fprintf(w, "    %-24s %s\n", technology.String(), technology.Confidence)
		}
	}
}

func checkFormat(format string, allowed ...string) error {
	for _, candidate := range allowed {
		if format == candidate {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (use %s)", format, strings.Join(allowed, ", "))
}
