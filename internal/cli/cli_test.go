package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/emanuelmabtis/meu-crm/internal/config"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const kanbanJSON = `{
  "stages": [
    {"id":"lead","name":"Lead","position":0},
    {"id":"contact","name":"Contato Inicial","position":1},
    {"id":"negotiation","name":"Negociação","position":2}
  ],
  "deals": [
    {"id":"d1","contact_id":"1","contact_name":"João Silva","title":"Projeto Website","value":5000,"stage_id":"lead","description":""},
    {"id":"d2","contact_id":"2","contact_name":"Maria Oliveira","title":"Consultoria CRM","value":2500.75,"stage_id":"negotiation","description":""}
  ]
}`

func init() {
	color.NoColor = true
}

type fakeAPI struct {
	mu        sync.Mutex
	patches   []map[string]string
	patchCode int
}

func (f *fakeAPI) recorded() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.patches...)
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/kanban":
			_, _ = io.WriteString(w, kanbanJSON)
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/deals/"):
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode patch body: %v", err)
			}
			body["deal"] = strings.TrimPrefix(r.URL.Path, "/api/deals/")
			f.mu.Lock()
			f.patches = append(f.patches, body)
			code := f.patchCode
			f.mu.Unlock()
			if code == 0 {
				code = http.StatusOK
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			if code >= 400 {
				_, _ = io.WriteString(w, `{"code":"SERVER_ERROR","error":"Server error"}`)
				return
			}
			_, _ = io.WriteString(w, `{"success":true}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/deals/search":
			if r.URL.Query().Get("q") != "website" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `{"results":[{"id":"d1","title":"Projeto Website","snippet":"","contactName":"João Silva","stageId":"lead","value":"5000"}],"total":1,"query":"website"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/kanban/export":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="pipeline.html"`)
			w.Header().Set("X-Archive-Key", "reports/2026/10/19/120000-pipeline.html")
			_, _ = io.WriteString(w, "<html>board</html>")
		default:
			http.NotFound(w, r)
		}
	}
}

func runCommand(t *testing.T, api *fakeAPI, sub *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	root := &cobra.Command{Use: "crmctl", SilenceUsage: true, SilenceErrors: true}
	AddGlobalFlags(root, config.Config{APIURL: server.URL})
	root.AddCommand(sub)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestBoardCmd(t *testing.T) {
	out, _, err := runCommand(t, &fakeAPI{}, BoardCmd(), "board")
	if err != nil {
		t.Fatalf("board error = %v", err)
	}
	for _, want := range []string{
		"Lead (1) · R$ 5.000,00",
		"Contato Inicial (0) · R$ 0,00",
		"Nenhum negócio",
		"Negociação (1) · R$ 2.500,75",
		"Total em Negociação: R$ 7.500,75",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("board output missing %q:\n%s", want, out)
		}
	}
}

func TestMoveCmdToStage(t *testing.T) {
	api := &fakeAPI{}
	out, _, err := runCommand(t, api, MoveCmd(), "move", "d1", "contact")
	if err != nil {
		t.Fatalf("move error = %v", err)
	}
	if !strings.Contains(out, "d1: Lead → Contato Inicial") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Contato Inicial (1) · R$ 5.000,00") {
		t.Fatalf("board not updated:\n%s", out)
	}
	patches := api.recorded()
	if len(patches) != 1 || patches[0]["deal"] != "d1" || patches[0]["stage_id"] != "contact" {
		t.Fatalf("unexpected patches %+v", patches)
	}
}

func TestMoveCmdOntoDeal(t *testing.T) {
	api := &fakeAPI{}
	out, _, err := runCommand(t, api, MoveCmd(), "move", "--quiet", "d1", "d2")
	if err != nil {
		t.Fatalf("move error = %v", err)
	}
	if !strings.Contains(out, "d1: Lead → Negociação") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	patches := api.recorded()
	if len(patches) != 1 || patches[0]["stage_id"] != "negotiation" {
		t.Fatalf("unexpected patches %+v", patches)
	}
}

func TestMoveCmdSameStageSendsNothing(t *testing.T) {
	api := &fakeAPI{}
	out, _, err := runCommand(t, api, MoveCmd(), "move", "-q", "d1", "lead")
	if err != nil {
		t.Fatalf("move error = %v", err)
	}
	if !strings.Contains(out, "d1 already in Lead") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	patches := api.recorded()
	if len(patches) != 0 {
		t.Fatalf("expected no patches, got %+v", patches)
	}
}

func TestMoveCmdUnknownTarget(t *testing.T) {
	api := &fakeAPI{}
	_, _, err := runCommand(t, api, MoveCmd(), "move", "d1", "nowhere")
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	patches := api.recorded()
	if len(patches) != 0 {
		t.Fatalf("expected no patches, got %+v", patches)
	}
}

func TestMoveCmdUnknownDeal(t *testing.T) {
	_, _, err := runCommand(t, &fakeAPI{}, MoveCmd(), "move", "d9", "lead")
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMoveCmdRollsBackOnFailure(t *testing.T) {
	api := &fakeAPI{patchCode: http.StatusInternalServerError}
	out, stderr, err := runCommand(t, api, MoveCmd(), "move", "d1", "contact")
	if !errors.Is(err, pipeline.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !strings.Contains(stderr, "reverted to lead") {
		t.Fatalf("expected rollback notice, got %q", stderr)
	}
	if !strings.Contains(out, "Lead (1) · R$ 5.000,00") || !strings.Contains(out, "Contato Inicial (0)") {
		t.Fatalf("board not rolled back:\n%s", out)
	}
}

func TestSearchCmd(t *testing.T) {
	out, _, err := runCommand(t, &fakeAPI{}, SearchCmd(), "search", "website")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	for _, want := range []string{`1 of 1 deals match "website"`, "d1  Projeto Website  [lead]", "João Silva"} {
		if !strings.Contains(out, want) {
			t.Errorf("search output missing %q:\n%s", want, out)
		}
	}
}

func TestExportCmdWritesFile(t *testing.T) {
	dir := t.TempDir()
	out, _, err := runCommand(t, &fakeAPI{}, ExportCmd(), "export", "--format", "html", "--output", dir)
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "pipeline.html"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "<html>board</html>" {
		t.Fatalf("unexpected report %q", data)
	}
	if !strings.Contains(out, "archived as reports/2026/10/19/120000-pipeline.html") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRenderBoardEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderBoard(&buf, nil, decimal.Zero)
	if !strings.Contains(buf.String(), "Total em Negociação: R$ 0,00") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
