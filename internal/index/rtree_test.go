package index

import (
	"path/filepath"
	"testing"

	"github.com/jochuuuu/reldb/internal/types"
)

func openTestRTree(t *testing.T, heap *fakeHeap, isKey bool) *RTreeIdx {
	t.Helper()
	idx, err := OpenRTree(filepath.Join(t.TempDir(), "t_attr.rtree.json"), isKey, heap.fetch)
	if err != nil {
		t.Fatalf("OpenRTree: %v", err)
	}
	return idx
}

func TestRTreeInsertSearchDelete(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestRTree(t, heap, false)

	pts := map[int32]types.Point{
		1: {X: 0, Y: 0},
		2: {X: 1, Y: 1},
		3: {X: 0, Y: 0},
	}
	for id, p := range pts {
		heap.set(id, p)
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	got, err := idx.Search(types.Point{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || !containsID(got, 1) || !containsID(got, 3) {
		t.Fatalf("Search({0,0}) = %v, want {1,3}", got)
	}

	found, err := idx.Delete(1)
	if err != nil || !found {
		t.Fatalf("Delete(1) = (%v, %v)", found, err)
	}
	got, err = idx.Search(types.Point{X: 0, Y: 0})
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(got) != 1 || !containsID(got, 3) {
		t.Fatalf("Search({0,0}) after delete = %v, want {3}", got)
	}
}

// TestRTreeRadiusSearch exercises Testable Property 9: every point within
// radius of center is returned, and points strictly outside are not.
func TestRTreeRadiusSearch(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestRTree(t, heap, false)

	pts := map[int32]types.Point{
		1: {X: 0, Y: 0},
		2: {X: 3, Y: 0},
		3: {X: 0, Y: 4},
		4: {X: 10, Y: 10},
	}
	for id, p := range pts {
		heap.set(id, p)
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	got, err := idx.RadiusSearch(types.Point{X: 0, Y: 0}, 5.0)
	if err != nil {
		t.Fatalf("RadiusSearch: %v", err)
	}
	if len(got) != 3 || !containsID(got, 1) || !containsID(got, 2) || !containsID(got, 3) {
		t.Fatalf("RadiusSearch(origin, 5) = %v, want {1,2,3}", got)
	}
	if containsID(got, 4) {
		t.Fatal("RadiusSearch(origin, 5) incorrectly included a point outside the radius")
	}
}

func TestRTreeKNNSearch(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestRTree(t, heap, false)

	pts := map[int32]types.Point{
		1: {X: 1, Y: 0},
		2: {X: 2, Y: 0},
		3: {X: 5, Y: 0},
		4: {X: 9, Y: 0},
	}
	for id, p := range pts {
		heap.set(id, p)
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	got, err := idx.KNNSearch(types.Point{X: 0, Y: 0}, 2)
	if err != nil {
		t.Fatalf("KNNSearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("KNNSearch(origin, 2) returned %d ids, want 2", len(got))
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("KNNSearch(origin, 2) = %v, want [1,2] sorted by distance", got)
	}
}

func TestRTreeRebuildFiltersLiveIDs(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestRTree(t, heap, false)

	for i := int32(1); i <= 4; i++ {
		heap.set(i, types.Point{X: float64(i), Y: 0})
	}
	if err := idx.Rebuild([]int32{1, 3}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	got, err := idx.RadiusSearch(types.Point{X: 0, Y: 0}, 100.0)
	if err != nil {
		t.Fatalf("RadiusSearch: %v", err)
	}
	if len(got) != 2 || !containsID(got, 1) || !containsID(got, 3) {
		t.Fatalf("RadiusSearch after Rebuild = %v, want {1,3}", got)
	}
}
