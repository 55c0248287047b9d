package preflight

import (
	"path/filepath"
	"testing"

	"github.com/jochuuuu/reldb/internal/catalog"
	"github.com/jochuuuu/reldb/internal/types"
)

func TestRunOnEmptyDir(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	indexDir := filepath.Join(dir, "index")

	report := Run(dataDir, indexDir)
	if !report.AllOK() {
		t.Fatalf("expected a fresh empty directory pair to pass, got %+v", report)
	}
	if len(report.Tables) != 0 {
		t.Fatalf("expected no tables, got %d", len(report.Tables))
	}
}

func TestRunWithRegisteredTable(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	indexDir := filepath.Join(dir, "index")

	cat, err := catalog.Open(dataDir, indexDir)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	schema := types.Schema{
		TableName: "widgets",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.TypeInt, IsKey: true, Index: types.IndexHash},
			{Name: "name", Type: types.TypeVarchar, Size: 20},
		},
	}
	if _, err := cat.CreateTable(schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	report := Run(dataDir, indexDir)
	if len(report.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(report.Tables))
	}
	if report.Tables[0].Name != "widgets" {
		t.Fatalf("expected widgets, got %q", report.Tables[0].Name)
	}
	if report.Tables[0].Status == StatusError {
		t.Fatalf("expected widgets to be ok/warning, got error: %s", report.Tables[0].Message)
	}
}

func TestFormatReport(t *testing.T) {
	dir := t.TempDir()
	report := Run(filepath.Join(dir, "data"), filepath.Join(dir, "index"))
	out := FormatReport(report)
	if out == "" {
		t.Fatal("expected non-empty report text")
	}
}
