package cli

import (
	"github.com/spf13/cobra"
)

// BoardCmd prints the pipeline board.
func BoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the pipeline board",
		Long:  "Load the board from the API and print every stage with its deals and totals.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			board, err := mountBoard(cmd, logger, nil)
			if err != nil {
				return err
			}
			RenderBoard(cmd.OutOrStdout(), board.Columns(), board.Deals().TotalValue())
			return nil
		},
	}
}
