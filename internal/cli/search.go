package cli

import (
	"fmt"
	"strings"

	"github.com/emanuelmabtis/meu-crm/internal/search"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// SearchCmd queries the deal search endpoint.
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search deals",
		Long:  "Search deals by title, description or contact name.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageID, _ := cmd.Flags().GetString("stage")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			client, err := clientFromFlags(cmd)
			if err != nil {
				return err
			}
			response, err := client.Search(cmd.Context(), search.Query{
				Text:    strings.Join(args, " "),
				StageID: stageID,
				Limit:   limit,
				Offset:  offset,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(response.Results) == 0 {
				fmt.Fprintf(out, "No deals match %q\n", response.Query)
				return nil
			}
			fmt.Fprintf(out, "%d of %d deals match %q\n\n", len(response.Results), response.Total, response.Query)
			for _, result := range response.Results {
				fmt.Fprintf(out, "%s  %s  %s\n",
					result.ID,
					color.New(color.Bold).Sprint(result.Title),
					color.New(color.FgHiBlack).Sprintf("[%s]", result.StageID))
				if result.ContactName != "" {
					fmt.Fprintf(out, "    %s\n", color.New(color.FgCyan).Sprint(result.ContactName))
				}
				if snippet := truncate(result.Snippet, 80); snippet != "" {
					fmt.Fprintf(out, "    %s\n", snippet)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("stage", "", "only deals in this stage")
	cmd.Flags().Int("limit", 20, "maximum results")
	cmd.Flags().Int("offset", 0, "results to skip")
	return cmd
}
