package sqlfront

import (
	"strings"
	"testing"

	"github.com/jochuuuu/reldb/internal/types"
)

func productosSchema() types.Schema {
	return types.Schema{
		TableName: "Productos",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.TypeInt, IsKey: true, Index: types.IndexHash},
			{Name: "nombre", Type: types.TypeVarchar, Size: 30, Index: types.IndexAVL},
			{Name: "precio", Type: types.TypeDecimal, Index: types.IndexBTree},
		},
	}
}

func lugaresSchema() types.Schema {
	return types.Schema{
		TableName: "Lugares",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.TypeInt, IsKey: true, Index: types.IndexHash},
			{Name: "loc", Type: types.TypePoint, Index: types.IndexRTree},
		},
	}
}

func testLookup(schemas ...types.Schema) SchemaLookup {
	byName := make(map[string]types.Schema, len(schemas))
	for _, s := range schemas {
		byName[s.TableName] = s
	}
	return func(name string) (types.Schema, bool) {
		s, ok := byName[name]
		return s, ok
	}
}

func TestParseCreateTable(t *testing.T) {
	stmts, err := Parse(
		"CREATE TABLE Productos (id INT PRIMARY KEY, nombre VARCHAR[30] INDEX avl, precio DECIMAL INDEX btree);",
		testLookup(),
	)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 1 || stmts[0].Kind != KindCreate {
		t.Fatalf("stmts = %+v, want one CREATE statement", stmts)
	}
	schema := stmts[0].Create.Schema
	if schema.TableName != "Productos" || len(schema.Attributes) != 3 {
		t.Fatalf("schema = %+v", schema)
	}
	pk, ok := schema.PrimaryKey()
	if !ok || pk.Name != "id" {
		t.Fatalf("PrimaryKey() = (%+v, %v), want id", pk, ok)
	}
}

func TestParseInsertMultiRow(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse(
		"INSERT INTO Productos (id, nombre, precio) VALUES (1, 'arroz', 3.5), (2, 'azucar', 2.0);",
		lookup,
	)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 1 || stmts[0].Kind != KindInsert {
		t.Fatalf("stmts = %+v, want one INSERT statement", stmts)
	}
	rows, err := stmts[0].Insert.ResolveRows(productosSchema())
	if err != nil {
		t.Fatalf("ResolveRows: %v", err)
	}
	if len(rows) != 2 || rows[0]["nombre"] != "arroz" || rows[1]["nombre"] != "azucar" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestParseSelectWithWhere(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse("SELECT id, nombre FROM Productos WHERE nombre = 'arroz' AND precio BETWEEN 1 AND 5;", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	q := stmts[0].Select
	if len(q.Equals) != 1 || q.Equals[0].Attr != "nombre" || q.Equals[0].Value != "arroz" {
		t.Fatalf("Equals = %+v", q.Equals)
	}
	if len(q.Ranges) != 1 || q.Ranges[0].Attr != "precio" {
		t.Fatalf("Ranges = %+v", q.Ranges)
	}
}

func TestParseSelectStarExpandsColumns(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse("SELECT * FROM Productos;", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts[0].Select.Attributes) != 3 {
		t.Fatalf("Attributes = %v, want all 3 schema columns", stmts[0].Select.Attributes)
	}
}

func TestParseDeleteRequiresWhere(t *testing.T) {
	lookup := testLookup(productosSchema())
	_, err := Parse("DELETE FROM Productos;", lookup)
	if err == nil {
		t.Fatal("expected DELETE without WHERE to be rejected at parse time")
	}
	if !strings.Contains(err.Error(), "WHERE") {
		t.Fatalf("error = %v, want it to mention WHERE", err)
	}
}

func TestParseDeleteWithWhere(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse("DELETE FROM Productos WHERE id = 1;", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d := stmts[0].Delete
	if len(d.Equals) != 1 || d.Equals[0].Attr != "id" {
		t.Fatalf("Equals = %+v", d.Equals)
	}
}

func TestParseSpatialPredicates(t *testing.T) {
	lookup := testLookup(lugaresSchema())
	stmts, err := Parse("SELECT * FROM Lugares WHERE RADIUS(loc, '(1.0, 2.0)', 5.0);", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	q := stmts[0].Select
	if len(q.Spatials) != 1 || q.Spatials[0].Kind != "RADIUS" || q.Spatials[0].Param != 5.0 {
		t.Fatalf("Spatials = %+v", q.Spatials)
	}
}

// TestParsePointColumnRejectedInComparison exercises the rule that POINT
// attributes cannot appear in BETWEEN or comparison-operator predicates:
// only RADIUS(...)/KNN(...) are meaningful over them.
func TestParsePointColumnRejectedInComparison(t *testing.T) {
	lookup := testLookup(lugaresSchema())
	if _, err := Parse("SELECT * FROM Lugares WHERE loc > '(1.0, 2.0)';", lookup); err == nil {
		t.Fatal("expected an error using a POINT column in a comparison operator")
	}
}

func TestParsePointColumnRejectedInBetween(t *testing.T) {
	lookup := testLookup(lugaresSchema())
	if _, err := Parse("SELECT * FROM Lugares WHERE loc BETWEEN '(0,0)' AND '(1,1)';", lookup); err == nil {
		t.Fatal("expected an error using a POINT column in BETWEEN")
	}
}

func TestParseUnknownStatementIgnored(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse("DROP TABLE Productos;", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 0 {
		t.Fatalf("stmts = %+v, want unrecognized statements silently dropped", stmts)
	}
}

func TestParseMultiStatementBatch(t *testing.T) {
	lookup := testLookup(productosSchema())
	batch := "INSERT INTO Productos (id, nombre, precio) VALUES (1, 'a', 1.0); SELECT * FROM Productos;"
	stmts, err := Parse(batch, lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 2 || stmts[0].Kind != KindInsert || stmts[1].Kind != KindSelect {
		t.Fatalf("stmts kinds = %v, %v", stmts[0].Kind, stmts[1].Kind)
	}
}

func TestParseSemicolonInsideStringNotSplit(t *testing.T) {
	lookup := testLookup(productosSchema())
	stmts, err := Parse("INSERT INTO Productos (id, nombre, precio) VALUES (1, 'a;b', 1.0);", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("stmts = %+v, want a semicolon inside a quoted literal to not split the batch", stmts)
	}
}
