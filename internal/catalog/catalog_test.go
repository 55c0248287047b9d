package catalog

import (
	"testing"

	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/types"
)

func testSchema(name string) types.Schema {
	return types.Schema{
		TableName: name,
		Attributes: []types.Attribute{
			{Name: "id", Type: types.TypeInt, IsKey: true, Index: types.IndexHash},
			{Name: "nombre", Type: types.TypeVarchar, Size: 20, Index: types.IndexAVL},
		},
	}
}

func TestCatalogCreateTableAndLookup(t *testing.T) {
	c, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mgr, err := c.CreateTable(testSchema("Productos"))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := mgr.Insert(record.Row{"id": int32(1), "nombre": "x"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := c.Table("Productos")
	if !ok || got != mgr {
		t.Fatalf("Table(Productos) = (%v, %v), want the created manager", got, ok)
	}

	names := c.TableNames()
	if len(names) != 1 || names[0] != "Productos" {
		t.Fatalf("TableNames() = %v, want [Productos]", names)
	}
}

func TestCatalogCreateTableDuplicateRejected(t *testing.T) {
	c, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.CreateTable(testSchema("Productos")); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := c.CreateTable(testSchema("Productos")); err == nil {
		t.Fatal("expected error creating a table with a name already in use")
	}
}

// TestCatalogRehydratesOnReopen exercises startup rehydration: a second
// Open against the same data/index directories must recover the table and
// its data without CreateTable being called again.
func TestCatalogRehydratesOnReopen(t *testing.T) {
	dataDir, indexDir := t.TempDir(), t.TempDir()

	c1, err := Open(dataDir, indexDir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	mgr1, err := c1.CreateTable(testSchema("Productos"))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := mgr1.Insert(record.Row{"id": int32(1), "nombre": "arroz"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	c2, err := Open(dataDir, indexDir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	mgr2, ok := c2.Table("Productos")
	if !ok {
		t.Fatal("Table(Productos) not found after reopening the same directories")
	}
	rows, err := mgr2.GetAllRecords()
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(rows) != 1 || rows[0]["nombre"] != "arroz" {
		t.Fatalf("rehydrated rows = %+v, want one row with nombre=arroz", rows)
	}
}

func TestCatalogTableNotFound(t *testing.T) {
	c, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := c.Table("Missing"); ok {
		t.Fatal("Table(Missing) reported ok=true for a table never created")
	}
}
