package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/rushi053/stackradar/internal/fetch"
	"github.com/rushi053/stackradar/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP",
		Long: `Serve starts the HTTP API:

  POST /api/scan   {"url": "example.com"}
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}
	cmd.Flags().String("addr", ":8087", "Listen address (PORT overrides the port)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	radar, err := a.radar()
	if err != nil {
		return err
	}
	fetcher, err := fetch.New(fetch.OptionsFromConfig(a.cfg.Fetch, a.logger))
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	gin.SetMode(a.cfg.Server.Mode)
	srv := server.New(radar, fetcher, a.logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.logger.WithField("technologies", len(radar.Technologies())).Info("Fingerprints loaded")
	return srv.Run(ctx, a.cfg.Server.ListenAddr(), a.cfg.Server.ShutdownTimeout)
}
