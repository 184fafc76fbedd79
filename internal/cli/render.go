package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/emanuelmabtis/meu-crm/internal/export"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// RenderBoard prints one block per column followed by the board total.
func RenderBoard(w io.Writer, columns []pipeline.Column, total decimal.Decimal) {
	for i, column := range columns {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := fmt.Sprintf("%s (%d)", column.Stage.Name, len(column.Deals))
		fmt.Fprintf(w, "%s · %s  [%s]\n",
			color.New(color.Bold).Sprint(header),
			export.FormatMoney(column.Total),
			color.New(color.FgHiBlack).Sprint(column.Stage.ID))
		if len(column.Deals) == 0 {
			fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprint("Nenhum negócio"))
			continue
		}
		for _, deal := range column.Deals {
			line := fmt.Sprintf("  %s  %s  %s", deal.ID, deal.Title, color.New(color.FgGreen).Sprint(export.FormatMoney(deal.Value)))
			if deal.ContactName != "" {
				line += color.New(color.FgCyan).Sprintf("  (%s)", deal.ContactName)
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total em Negociação: %s\n", color.New(color.FgGreen, color.Bold).Sprint(export.FormatMoney(total)))
}

func stageName(board *pipeline.Board, stageID string) string {
	if stage, ok := board.Stages().Get(stageID); ok {
		return stage.Name
	}
	return stageID
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= limit {
		return s
	}
	return string([]rune(s)[:limit-1]) + "…"
}
