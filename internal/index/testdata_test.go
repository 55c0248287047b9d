package index

// fakeHeap is an in-memory stand-in for the heap file, used by every index
// test so the index under test can be exercised without a real table.
type fakeHeap struct {
	values map[int32]any
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{values: make(map[int32]any)}
}

func (h *fakeHeap) set(id int32, v any) {
	h.values[id] = v
}

func (h *fakeHeap) remove(id int32) {
	delete(h.values, id)
}

func (h *fakeHeap) fetch(id int32) (any, bool, error) {
	v, ok := h.values[id]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func containsID(ids []int32, want int32) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
