package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/rushi053/stackradar"
)

// tablesJSON writes tables with stable key order so exports diff cleanly
var tablesJSON = jsoniter.Config{
	EscapeHTML:    false,
	SortMapKeys:   true,
	IndentionStep: 2,
}.Froze()

func newFingerprintsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprints",
		Short: "Inspect and validate fingerprint tables",
	}
	cmd.AddCommand(
		newFingerprintsValidateCmd(a),
		newFingerprintsListCmd(a),
		newFingerprintsExportCmd(a),
	)
	return cmd
}

func newFingerprintsValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Compile the embedded tables, merged with a custom file if given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Fingerprints.CustomFile
			if len(args) == 1 {
				path = args[0]
			}

			radar, err := stackradar.New(path)
			if err != nil {
				var configErr *stackradar.ConfigError
				if errors.As(err, &configErr) {
					return fmt.Errorf("fingerprints are invalid: %w", err)
				}
				return err
			}

			source := "embedded tables"
			if path != "" {
				source = "embedded tables + " + path
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d technologies OK\n", source, len(radar.Technologies()))
			return nil
		},
	}
}

func newFingerprintsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known technologies in detection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")

			radar, err := a.radar()
			if err != nil {
				return err
			}
			versions := radar.GetFingerprints().Versions

			data := pterm.TableData{{"NAME", "CATEGORY", "PATTERNS", "VERSIONED"}}
			for _, fingerprint := range radar.GetCompiledFingerprints().Apps {
				if category != "" && fingerprint.Category() != category {
					continue
				}
				_, versioned := versions[fingerprint.Name()]
				data = append(data, []string{
					fingerprint.Name(),
					fingerprint.Category(),
					strconv.Itoa(fingerprint.PatternCount()),
					strconv.FormatBool(versioned),
				})
			}

			if err := pterm.DefaultTable.
				WithHasHeader(true).
				WithBoxed(false).
				WithData(data).
				WithWriter(cmd.OutOrStdout()).
				Render(); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("category", "", "Only list technologies of this category")
	return cmd
}

func newFingerprintsExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the effective tables as JSON",
		Long: `Export writes the embedded tables, merged with the configured custom
file, in the format accepted by --fingerprints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			radar, err := a.radar()
			if err != nil {
				return err
			}
			data, err := tablesJSON.Marshal(radar.GetFingerprints())
			if err != nil {
				return fmt.Errorf("could not encode fingerprints: %w", err)
			}
			data = append(data, '\n')

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("could not write fingerprints file: %w", err)
			}
			a.logger.WithField("file", output).Infof("Wrote %d technologies", len(radar.Technologies()))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "File to write to (default standard output)")
	return cmd
}
