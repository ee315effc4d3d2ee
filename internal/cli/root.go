// Package cli implements the stackradar command line.
package cli

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rushi053/stackradar"
	"github.com/rushi053/stackradar/internal/config"
	"github.com/rushi053/stackradar/internal/logger"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app holds what the subcommands share once flags are parsed
type app struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "stackradar",
		Short: "Detect the technologies behind a website",
		Long: `stackradar - website technology detection

Fetches a page and matches its HTML and response headers against a table of
known frameworks, hosting providers, analytics tools and other technologies.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (yaml, json or toml)")
	flags.String("fingerprints", "", "Custom fingerprints JSON merged over the embedded tables")

	// Fetch flags
	flags.Duration("timeout", 15*time.Second, "Request timeout")
	flags.String("user-agent", "", "User-Agent header sent when fetching pages")
	flags.String("proxy", "", "Proxy URL (http://host:port)")
	flags.Int64("max-body-size", 10<<20, "Maximum decoded body size in bytes (0 = unlimited)")
	flags.Int("max-redirects", 10, "Maximum number of redirects to follow")

	// Log flags
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("log-output", "stderr", "Log output (stdout, stderr, file)")
	flags.String("log-file", "", "Log file path when --log-output is file")

	rootCmd.AddCommand(
		newScanCmd(a),
		newDetectCmd(a),
		newServeCmd(a),
		newFingerprintsCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log
	return nil
}

// radar creates the detection engine with the configured custom tables
func (a *app) radar() (*stackradar.StackRadar, error) {
	radar, err := stackradar.New(a.cfg.Fingerprints.CustomFile)
	if err != nil {
		return nil, fmt.Errorf("could not load fingerprints: %w", err)
	}
	return radar, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackradar %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
