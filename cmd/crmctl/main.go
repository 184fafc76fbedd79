package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emanuelmabtis/meu-crm/internal/cli"
	"github.com/emanuelmabtis/meu-crm/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crmctl",
		Short: "crmctl - command line client for the CRM pipeline",
		Long: `crmctl talks to the CRM API. It shows the deal pipeline, moves deals
between stages, searches deals and downloads board reports.`,
		SilenceUsage: true,
	}
	cli.AddGlobalFlags(rootCmd, config.Load())

	rootCmd.AddCommand(cli.BoardCmd())
	rootCmd.AddCommand(cli.MoveCmd())
	rootCmd.AddCommand(cli.SearchCmd())
	rootCmd.AddCommand(cli.ExportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
