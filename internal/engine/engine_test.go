package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func mustSucceed(t *testing.T, res BatchResult) {
	t.Helper()
	if !res.Success {
		t.Fatalf("batch failed: %s / %+v", res.Message, res.Results)
	}
}

// TestEngineCreateInsertSelect mirrors a Productos-table scenario: an AVL
// index on nombre, a B+ tree index on precio.
func TestEngineCreateInsertSelect(t *testing.T) {
	e := openTestEngine(t)

	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (
		id INT PRIMARY KEY,
		nombre VARCHAR[30] INDEX avl,
		precio DECIMAL INDEX btree
	);`))

	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre, precio) VALUES
		(1, 'arroz', 3.5), (2, 'azucar', 2.0), (3, 'aceite', 8.0);`))

	res := e.ExecuteBatch(`SELECT * FROM Productos WHERE precio BETWEEN 2.0 AND 5.0;`)
	mustSucceed(t, res)
	data := res.Results[0].Data.(map[string]any)
	if data["count"] != 2 {
		t.Fatalf("SELECT count = %v, want 2", data["count"])
	}
}

func TestEngineDuplicatePrimaryKeyReported(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX avl);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'a');`))

	res := e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'b');`)
	if res.Success {
		t.Fatal("expected a duplicate primary key insert to fail")
	}
}

func TestEngineDeleteWithoutWhereRejected(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX avl);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'a');`))

	res := e.ExecuteBatch(`DELETE FROM Productos;`)
	if res.Success {
		t.Fatal("expected DELETE without WHERE to be rejected")
	}

	res = e.ExecuteBatch(`SELECT * FROM Productos;`)
	mustSucceed(t, res)
	if res.Results[0].Data.(map[string]any)["count"] != 1 {
		t.Fatal("DELETE without WHERE must not have removed any rows")
	}
}

func TestEngineDeleteWithWhere(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX avl);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'a'), (2, 'b');`))

	res := e.ExecuteBatch(`DELETE FROM Productos WHERE nombre = 'a';`)
	mustSucceed(t, res)
	if res.Results[0].Data.(map[string]any)["count"] != 1 {
		t.Fatalf("DELETE count = %v, want 1", res.Results[0].Data.(map[string]any)["count"])
	}

	res = e.ExecuteBatch(`SELECT * FROM Productos;`)
	mustSucceed(t, res)
	if res.Results[0].Data.(map[string]any)["count"] != 1 {
		t.Fatal("expected exactly one remaining row after the targeted delete")
	}
}

// TestEngineSpatialQuery mirrors a POINT/R-tree scenario: RADIUS and KNN
// predicates over a spatially indexed column.
func TestEngineSpatialQuery(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Lugares (id INT PRIMARY KEY, loc POINT INDEX rtree);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Lugares (id, loc) VALUES
		(1, '(0,0)'), (2, '(3,0)'), (3, '(100,100)');`))

	res := e.ExecuteBatch(`SELECT * FROM Lugares WHERE RADIUS(loc, '(0,0)', 5.0);`)
	mustSucceed(t, res)
	if res.Results[0].Data.(map[string]any)["count"] != 2 {
		t.Fatalf("RADIUS count = %v, want 2", res.Results[0].Data.(map[string]any)["count"])
	}

	res = e.ExecuteBatch(`SELECT * FROM Lugares WHERE KNN(loc, '(0,0)', 1);`)
	mustSucceed(t, res)
	if res.Results[0].Data.(map[string]any)["count"] != 1 {
		t.Fatalf("KNN count = %v, want 1", res.Results[0].Data.(map[string]any)["count"])
	}
}

// TestEngineHashRangeSearchFails mirrors a hash-range-failure scenario: a
// range/comparison predicate against a hash-indexed column must fail, not
// silently degrade to a full scan.
func TestEngineHashRangeSearchFails(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX hash);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'a'), (2, 'b');`))

	res := e.ExecuteBatch(`SELECT * FROM Productos WHERE id BETWEEN 1 AND 10;`)
	if res.Success {
		t.Fatal("expected a range query over a hash-only-indexed column to fail")
	}
}

// TestEngineCSVImportWithPKCollision mirrors a CSV-import-with-PK-collision
// scenario: rows that violate the primary key are reported as failures
// without aborting the rest of the import.
func TestEngineCSVImportWithPKCollision(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX avl);`))
	mustSucceed(t, e.ExecuteBatch(`INSERT INTO Productos (id, nombre) VALUES (1, 'existing');`))

	csvPath := filepath.Join(t.TempDir(), "productos.csv")
	if err := os.WriteFile(csvPath, []byte("id,nombre\n1,dup\n2,new\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res := e.ExecuteBatch(`IMPORT FROM CSV '` + csvPath + `' INTO Productos;`)
	data := res.Results[0].Data.(map[string]any)
	if data["failed_count"] != 1 || data["successful_count"] != 1 {
		t.Fatalf("IMPORT result = %+v, want one failure (PK collision) and one success", data)
	}
}

func TestEngineSelectUnknownTable(t *testing.T) {
	e := openTestEngine(t)
	res := e.ExecuteBatch(`SELECT * FROM Ghost;`)
	if res.Success {
		t.Fatal("expected SELECT against a nonexistent table to fail")
	}
}

func TestEngineBatchPartialFailureDoesNotAbortRemaining(t *testing.T) {
	e := openTestEngine(t)
	mustSucceed(t, e.ExecuteBatch(`CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[20] INDEX avl);`))

	res := e.ExecuteBatch(`SELECT * FROM Ghost; INSERT INTO Productos (id, nombre) VALUES (1, 'a');`)
	if res.Success {
		t.Fatal("expected overall batch success=false due to the failing SELECT")
	}
	if len(res.Results) != 2 {
		t.Fatalf("Results = %+v, want both statements represented", res.Results)
	}
	if res.Results[1].Error {
		t.Fatal("a failing earlier statement must not prevent a later statement from running")
	}
}
