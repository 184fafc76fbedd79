package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ExportCmd downloads a board report and writes it to disk.
func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the board as a report",
		Long:  "Render the board on the API as html, pdf or docx and save the file locally.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			report, err := client.Export(cmd.Context(), format)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = report.Filename
			}
			if path == "" {
				path = "pipeline." + format
			}
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				name := report.Filename
				if name == "" {
					name = "pipeline." + format
				}
				path = filepath.Join(path, name)
			}
			if err := os.WriteFile(path, report.Data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%d bytes)\n", color.New(color.FgGreen).Sprint("✓"), path, len(report.Data))
			if report.ArchiveKey != "" {
				fmt.Fprintf(out, "  archived as %s\n", report.ArchiveKey)
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "pdf", "report format (html, pdf, docx)")
	cmd.Flags().StringP("output", "o", "", "output file or directory")
	return cmd
}
