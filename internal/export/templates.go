package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var boardTemplate = template.Must(
	template.New("board.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"money": FormatMoney,
	}).ParseFS(templateFS, "templates/board.html"),
)

// BoardTemplateData holds data for board report rendering
type BoardTemplateData struct {
	Title       string
	GeneratedAt time.Time
	Columns     []pipeline.Column
	Total       decimal.Decimal
}

// RenderBoardHTML renders the board report template with provided data
func RenderBoardHTML(data BoardTemplateData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatMoney renders a value in Brazilian reais, e.g. R$ 5.000,00.
func FormatMoney(value decimal.Decimal) string {
	fixed := value.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if value.IsNegative() {
		sign = "-"
	}
	return sign + "R$ " + grouped.String() + "," + cents
}
