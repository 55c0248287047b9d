package index

import (
	"path/filepath"
	"testing"

	"github.com/jochuuuu/reldb/internal/types"
)

func openTestBPlus(t *testing.T, heap *fakeHeap, isKey bool) *BPlusIdx {
	t.Helper()
	dir := t.TempDir()
	idx, err := OpenBPlus(
		filepath.Join(dir, "t_attr.bplus"),
		filepath.Join(dir, "t_attr.meta"),
		types.TypeDecimal, isKey, heap.fetch,
	)
	if err != nil {
		t.Fatalf("OpenBPlus: %v", err)
	}
	return idx
}

func TestBPlusInsertSearchDelete(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestBPlus(t, heap, false)

	prices := map[int32]float64{1: 10.0, 2: 20.0, 3: 10.0, 4: 30.0}
	for id, p := range prices {
		heap.set(id, p)
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	got, err := idx.Search(10.0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || !containsID(got, 1) || !containsID(got, 3) {
		t.Fatalf("Search(10.0) = %v, want {1,3}", got)
	}

	found, err := idx.Delete(3)
	if err != nil || !found {
		t.Fatalf("Delete(3) = (%v, %v)", found, err)
	}
	got, err = idx.Search(10.0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || !containsID(got, 1) {
		t.Fatalf("Search(10.0) after delete = %v, want {1}", got)
	}
}

// TestBPlusRangeSearchOrdered exercises Testable Property 7: leaves form an
// ordered chain, so a range search returns every id whose value falls in
// [lo, hi] regardless of insertion order.
func TestBPlusRangeSearchOrdered(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestBPlus(t, heap, false)

	values := []float64{50, 10, 40, 20, 30, 60, 5, 45}
	for i, v := range values {
		id := int32(i + 1)
		heap.set(id, v)
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := idx.RangeSearch(20.0, 45.0)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	wantValues := map[float64]bool{20: true, 30: true, 40: true, 45: true}
	if len(got) != len(wantValues) {
		t.Fatalf("RangeSearch(20,45) returned %d ids, want %d", len(got), len(wantValues))
	}
	for _, id := range got {
		v, ok, err := heap.fetch(id)
		if err != nil || !ok {
			t.Fatalf("fetch(%d) = (_, %v, %v)", id, ok, err)
		}
		if !wantValues[v.(float64)] {
			t.Errorf("RangeSearch(20,45) returned unexpected value %v for id %d", v, id)
		}
	}
}

func TestBPlusSplitsAcrossManyInserts(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestBPlus(t, heap, false)

	for i := int32(1); i <= 100; i++ {
		heap.set(i, float64(i))
		if err := idx.Insert(i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	got, err := idx.RangeSearch(1.0, 100.0)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("RangeSearch(1,100) returned %d ids, want 100", len(got))
	}
}

func TestBPlusUniqueKeyRejectsDuplicate(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestBPlus(t, heap, true)
	heap.set(1, 5.0)
	heap.set(2, 5.0)
	if err := idx.Insert(1); err != nil {
		t.Fatalf("Insert(1): %v", err)
	}
	if err := idx.Insert(2); err == nil {
		t.Fatal("expected duplicate-key error on second insert of the same key value")
	}
}

func TestBPlusRebuildFiltersLiveIDs(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestBPlus(t, heap, false)

	for i := int32(1); i <= 5; i++ {
		heap.set(i, float64(i))
	}
	if err := idx.Rebuild([]int32{1, 3, 5}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	got, err := idx.RangeSearch(0.0, 10.0)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(got) != 3 || !containsID(got, 1) || !containsID(got, 3) || !containsID(got, 5) {
		t.Fatalf("RangeSearch after Rebuild = %v, want {1,3,5}", got)
	}
}
