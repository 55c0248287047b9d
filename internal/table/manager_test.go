package table

import (
	"testing"

	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/types"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	schema := types.Schema{
		TableName: "Productos",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.TypeInt, IsKey: true, Index: types.IndexHash},
			{Name: "nombre", Type: types.TypeVarchar, Size: 30, Index: types.IndexAVL},
			{Name: "precio", Type: types.TypeDecimal, Index: types.IndexBTree},
			{Name: "stock", Type: types.TypeInt},
		},
	}
	m, err := Open(schema, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func TestManagerInsertGetDelete(t *testing.T) {
	m := openTestManager(t)

	id, err := m.Insert(record.Row{"id": int32(1), "nombre": "arroz", "precio": 3.5, "stock": int32(10)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	row, ok, err := m.Get(id)
	if err != nil || !ok {
		t.Fatalf("Get(%d) = (_, %v, %v)", id, ok, err)
	}
	if row["nombre"] != "arroz" {
		t.Fatalf("nombre = %v, want arroz", row["nombre"])
	}

	ok, err = m.Delete(id)
	if err != nil || !ok {
		t.Fatalf("Delete(%d) = (%v, %v)", id, ok, err)
	}
	_, ok, err = m.Get(id)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if ok {
		t.Fatal("Get after Delete reports the record still live")
	}
}

func TestManagerDuplicatePrimaryKeyRejected(t *testing.T) {
	m := openTestManager(t)
	if _, err := m.Insert(record.Row{"id": int32(1), "nombre": "a", "precio": 1.0, "stock": int32(1)}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if _, err := m.Insert(record.Row{"id": int32(1), "nombre": "b", "precio": 2.0, "stock": int32(1)}); err == nil {
		t.Fatal("expected duplicate primary key error, got nil")
	}
}

func TestManagerUpdateReindexes(t *testing.T) {
	m := openTestManager(t)
	id, err := m.Insert(record.Row{"id": int32(1), "nombre": "arroz", "precio": 3.5, "stock": int32(10)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := m.Update(id, record.Row{"nombre": "azucar"})
	if err != nil || !ok {
		t.Fatalf("Update = (%v, %v)", ok, err)
	}

	rows, err := m.FindByAttribute("nombre", "azucar")
	if err != nil {
		t.Fatalf("FindByAttribute(azucar): %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("FindByAttribute(azucar) = %d rows, want 1", len(rows))
	}

	rows, err = m.FindByAttribute("nombre", "arroz")
	if err != nil {
		t.Fatalf("FindByAttribute(arroz): %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("FindByAttribute(arroz) after rename = %d rows, want 0 (stale index entry)", len(rows))
	}

	// precio/stock must be unaffected by a partial update.
	row, _, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row["precio"] != 3.5 || row["stock"] != int32(10) {
		t.Fatalf("unspecified attributes changed: %+v", row)
	}
}

func TestManagerSelectIntersectsPredicates(t *testing.T) {
	m := openTestManager(t)
	rows := []record.Row{
		{"id": int32(1), "nombre": "arroz", "precio": 3.5, "stock": int32(10)},
		{"id": int32(2), "nombre": "arroz", "precio": 5.0, "stock": int32(2)},
		{"id": int32(3), "nombre": "azucar", "precio": 3.5, "stock": int32(7)},
	}
	for _, r := range rows {
		if _, err := m.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ids, err := m.Select(
		[]EqualsPredicate{{Attr: "nombre", Value: "arroz"}},
		[]RangePredicate{{Attr: "precio", Lo: 3.0, Hi: 4.0}},
		nil,
	)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("Select(nombre=arroz AND precio in [3,4]) = %d ids, want 1", len(ids))
	}
}

func TestManagerSelectNoPredicatesReturnsAllLive(t *testing.T) {
	m := openTestManager(t)
	for i := int32(1); i <= 3; i++ {
		if _, err := m.Insert(record.Row{"id": i, "nombre": "x", "precio": 1.0, "stock": int32(1)}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	ids, err := m.Select(nil, nil, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Select() = %d ids, want 3", len(ids))
	}
}

func TestManagerSelectMissingIndexIsHardError(t *testing.T) {
	m := openTestManager(t)
	_, err := m.Select([]EqualsPredicate{{Attr: "stock", Value: int32(1)}}, nil, nil)
	if err == nil {
		t.Fatal("expected a hard error selecting on an unindexed attribute, got nil")
	}
}

func TestManagerRebuildAfterDelete(t *testing.T) {
	m := openTestManager(t)
	ids := make([]int32, 0, 3)
	for i := int32(1); i <= 3; i++ {
		id, err := m.Insert(record.Row{"id": i, "nombre": "x", "precio": float64(i), "stock": int32(1)})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, id)
	}
	if _, err := m.Delete(ids[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	all, err := m.GetAllRecords()
	if err != nil {
		t.Fatalf("GetAllRecords: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAllRecords after Rebuild = %d rows, want 2", len(all))
	}
}
