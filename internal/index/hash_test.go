package index

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jochuuuu/reldb/internal/types"
)

func openTestHash(t *testing.T, heap *fakeHeap, isKey bool) *HashIdx {
	t.Helper()
	dir := t.TempDir()
	idx, err := OpenHash(
		filepath.Join(dir, "t_attr_dir.dat"),
		filepath.Join(dir, "t_attr_buckets.dat"),
		types.TypeInt, isKey, heap.fetch,
	)
	if err != nil {
		t.Fatalf("OpenHash: %v", err)
	}
	return idx
}

func TestHashInsertSearch(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestHash(t, heap, false)

	heap.set(1, int32(7))
	heap.set(2, int32(9))
	heap.set(3, int32(7))

	for _, id := range []int32{1, 2, 3} {
		if err := idx.Insert(id); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	got, err := idx.Search(int32(7))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || !containsID(got, 1) || !containsID(got, 3) {
		t.Fatalf("Search(7) = %v, want {1,3}", got)
	}
}

func TestHashRangeSearchUnsupported(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestHash(t, heap, false)
	heap.set(1, int32(5))
	if err := idx.Insert(1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := idx.RangeSearch(int32(0), int32(10))
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("RangeSearch error = %v, want ErrNotSupported", err)
	}
}

func TestHashUniqueKeyRejectsDuplicate(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestHash(t, heap, true)
	heap.set(1, int32(5))
	heap.set(2, int32(5))

	if err := idx.Insert(1); err != nil {
		t.Fatalf("Insert(1): %v", err)
	}
	if err := idx.Insert(2); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Insert(2) error = %v, want ErrDuplicateKey", err)
	}
}

func TestHashDeleteThenDeleteAgain(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestHash(t, heap, false)
	heap.set(1, int32(3))

	if err := idx.Insert(1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	found, err := idx.Delete(1)
	if err != nil || !found {
		t.Fatalf("Delete(1) = (%v, %v), want (true, nil)", found, err)
	}
	got, err := idx.Search(int32(3))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Search after delete = %v, want empty", got)
	}

	found, err = idx.Delete(1)
	if err != nil || found {
		t.Fatalf("second Delete(1) = (%v, %v), want (false, nil)", found, err)
	}
}

// TestHashBucketSplit exercises the extendible-hash split path by inserting
// more distinct ids than fit in one bucket (capacity 5).
func TestHashBucketSplit(t *testing.T) {
	heap := newFakeHeap()
	idx := openTestHash(t, heap, false)

	for i := int32(1); i <= 40; i++ {
		heap.set(i, i)
		if err := idx.Insert(i); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int32(1); i <= 40; i++ {
		got, err := idx.Search(i)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !containsID(got, i) {
			t.Fatalf("Search(%d) = %v, missing %d after bucket splits", i, got, i)
		}
	}
}

func TestHashDeterministicPrefix(t *testing.T) {
	if hashBin(int32(7), types.TypeInt) != hashBin(int32(7), types.TypeInt) {
		t.Fatal("hashBin is not deterministic for a fixed (type, value)")
	}
}
