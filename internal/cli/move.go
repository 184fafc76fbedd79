package cli

import (
	"errors"
	"fmt"
	"sync"

	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// MoveCmd drags a deal onto a stage or onto another deal.
func MoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <deal-id> <target-id>",
		Short: "Move a deal to another stage",
		Long: `Move a deal the same way the board does: the target may be a stage id
or the id of another deal, in which case the deal joins that deal's stage.
The board is updated first and rolled back if the API rejects the change.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dealID, targetID := args[0], args[1]
			quiet, _ := cmd.Flags().GetBool("quiet")

			logger, err := loggerFromFlags(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var (
				mu       sync.Mutex
				failures []pipeline.MoveFailure
			)
			notifier := pipeline.NotifierFunc(func(failure pipeline.MoveFailure) {
				mu.Lock()
				failures = append(failures, failure)
				mu.Unlock()
			})

			board, err := mountBoard(cmd, logger, notifier)
			if err != nil {
				return err
			}

			controller := board.Controller()
			if !controller.StartDrag(dealID) {
				return fmt.Errorf("deal %s: %w", dealID, pipeline.ErrNotFound)
			}
			controller.UpdateHoverTarget(targetID)
			_, result, err := controller.DropOnHover(cmd.Context())
			if err != nil {
				return err
			}
			board.Wait()

			out := cmd.OutOrStdout()
			switch result.Outcome {
			case pipeline.DropRejected:
				return fmt.Errorf("target %s: %w", targetID, pipeline.ErrNotFound)
			case pipeline.DropUnchanged:
				deal, _ := board.Deals().Deal(dealID)
				fmt.Fprintf(out, "%s already in %s\n", dealID, stageName(board, deal.StageID))
			}

			mu.Lock()
			defer mu.Unlock()
			if len(failures) > 0 {
				failure := failures[len(failures)-1]
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.New(color.FgRed).Sprint("✗"), failure.Error())
				if !quiet {
					RenderBoard(out, board.Columns(), board.Deals().TotalValue())
				}
				return errors.Join(pipeline.ErrPersistence, failure)
			}

			if result.Outcome == pipeline.DropMoved {
				fmt.Fprintf(out, "%s %s: %s → %s\n",
					color.New(color.FgGreen).Sprint("✓"),
					dealID,
					stageName(board, result.Command.Origin),
					stageName(board, result.Command.Destination))
			}
			if !quiet {
				fmt.Fprintln(out)
				RenderBoard(out, board.Columns(), board.Deals().TotalValue())
			}
			return nil
		},
	}
	cmd.Flags().BoolP("quiet", "q", false, "do not print the board after the move")
	return cmd
}
