// Package table implements the per-table storage manager: one heap file
// plus one Index per indexed column, kept in lockstep on every mutation.
package table

import (
	"fmt"
	"path/filepath"

	"github.com/jochuuuu/reldb/internal/heap"
	"github.com/jochuuuu/reldb/internal/index"
	"github.com/jochuuuu/reldb/internal/record"
	"github.com/jochuuuu/reldb/internal/types"
)

// Manager owns one table's schema, heap file, and secondary indexes.
type Manager struct {
	schema     types.Schema
	heap       *heap.File
	codec      *record.Codec
	indexes    map[string]index.Index
	primaryKey string
}

// EqualsPredicate matches rows whose attribute exactly equals Value.
type EqualsPredicate struct {
	Attr  string
	Value any
}

// RangePredicate matches rows whose attribute falls in [Lo, Hi].
type RangePredicate struct {
	Attr   string
	Lo, Hi any
}

// SpatialPredicate matches rows via an R-tree-specific operation: RADIUS
// (Center/Param=radius) or KNN (Center/Param=k).
type SpatialPredicate struct {
	Kind   string
	Attr   string
	Center types.Point
	Param  float64
}

// Open builds a Manager for schema, rooted at dataDir for the heap file and
// indexDir for every index's backing files.
func Open(schema types.Schema, dataDir, indexDir string) (*Manager, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("table: invalid schema: %w", err)
	}
	codec := record.New(schema)
	heapPath := filepath.Join(dataDir, schema.TableName+".heap")
	hf, err := heap.Open(heapPath, codec.Size())
	if err != nil {
		return nil, fmt.Errorf("table: open heap: %w", err)
	}

	m := &Manager{schema: schema, heap: hf, codec: codec, indexes: make(map[string]index.Index)}
	if pk, ok := schema.PrimaryKey(); ok {
		m.primaryKey = pk.Name
	}

	for _, attr := range schema.Attributes {
		kind := attr.Index.Normalize()
		if kind == types.IndexNone {
			continue
		}
		idx, err := buildIndex(schema.TableName, attr, kind, indexDir, m.valueFetcher(attr.Name))
		if err != nil {
			return nil, fmt.Errorf("table: build index for %q: %w", attr.Name, err)
		}
		m.indexes[attr.Name] = idx
	}
	return m, nil
}

func buildIndex(tableName string, attr types.Attribute, kind types.IndexKind, indexDir string, fetch index.ValueFetcher) (index.Index, error) {
	base := filepath.Join(indexDir, fmt.Sprintf("%s_%s", tableName, attr.Name))
	switch kind {
	case types.IndexHash:
		return index.OpenHash(base+"_dir.dat", base+"_buckets.dat", attr.Type, attr.IsKey, fetch)
	case types.IndexAVL:
		return index.OpenAVL(base+"_avl.dat", attr.Type, attr.IsKey, fetch)
	case types.IndexBTree:
		return index.OpenBPlus(base+"_tree.dat", base+"_meta.dat", attr.Type, attr.IsKey, fetch)
	case types.IndexRTree:
		if attr.Type != types.TypePoint {
			return nil, fmt.Errorf("rtree index requires a POINT attribute, got %s", attr.Type)
		}
		return index.OpenRTree(base+"_rtree.json", attr.IsKey, fetch)
	default:
		return nil, fmt.Errorf("unsupported index kind %q", kind)
	}
}

// valueFetcher returns a closure indexes use to dereference an attribute's
// current value for any record id, without materializing it themselves.
func (m *Manager) valueFetcher(attrName string) index.ValueFetcher {
	return func(id int32) (any, bool, error) {
		row, live, err := m.readLive(id)
		if err != nil || !live {
			return nil, false, err
		}
		return row[attrName], true, nil
	}
}

func (m *Manager) readLive(id int32) (record.Row, bool, error) {
	raw, ok, err := m.heap.Read(id)
	if err != nil || !ok {
		return nil, false, err
	}
	row, next, err := m.codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	if next != record.Live {
		return nil, false, nil
	}
	return row, true, nil
}

// Insert validates and coerces every declared attribute, rejects a
// duplicate primary key (only when the key attribute itself carries an
// index), writes the heap record, then inserts into every index in
// declaration order.
func (m *Manager) Insert(row record.Row) (int32, error) {
	validated := make(record.Row, len(m.schema.Attributes))
	for _, attr := range m.schema.Attributes {
		v, ok := row[attr.Name]
		if !ok {
			return 0, fmt.Errorf("table: missing attribute %q", attr.Name)
		}
		coerced, err := record.Coerce(attr, v)
		if err != nil {
			return 0, fmt.Errorf("table: attribute %q: %w", attr.Name, err)
		}
		validated[attr.Name] = coerced
	}

	if m.primaryKey != "" {
		if idx, ok := m.indexes[m.primaryKey]; ok {
			existing, err := idx.Search(validated[m.primaryKey])
			if err != nil {
				return 0, err
			}
			if len(existing) > 0 {
				return 0, fmt.Errorf("table: duplicate primary key %v", validated[m.primaryKey])
			}
		}
	}

	raw, err := m.codec.Encode(validated, record.Live)
	if err != nil {
		return 0, fmt.Errorf("table: encode record: %w", err)
	}
	id, err := m.heap.Insert(raw)
	if err != nil {
		return 0, fmt.Errorf("table: write heap: %w", err)
	}

	for _, attr := range m.schema.Attributes {
		idx, ok := m.indexes[attr.Name]
		if !ok {
			continue
		}
		if err := idx.Insert(id); err != nil {
			return id, fmt.Errorf("table: index %q: %w", attr.Name, err)
		}
	}
	return id, nil
}

// Get reads one record by id, returning ok=false if it is absent or deleted.
func (m *Manager) Get(id int32) (record.Row, bool, error) {
	return m.readLive(id)
}

// Delete removes id from every index first, then frees its heap slot. This
// ordering is best-effort atomicity: an index failure midway leaves the
// heap record intact, but a subsequent heap failure after index removal
// can still leave the record heap-live with stale index entries.
func (m *Manager) Delete(id int32) (bool, error) {
	row, live, err := m.readLive(id)
	if err != nil {
		return false, err
	}
	if !live {
		return false, nil
	}
	_ = row

	for _, attr := range m.schema.Attributes {
		idx, ok := m.indexes[attr.Name]
		if !ok {
			continue
		}
		if _, err := idx.Delete(id); err != nil {
			return false, fmt.Errorf("table: index %q: %w", attr.Name, err)
		}
	}
	if err := m.heap.Delete(id); err != nil {
		return false, fmt.Errorf("table: free heap slot: %w", err)
	}
	return true, nil
}

// Update applies newValues over the current record (unspecified attributes
// keep their current value), re-indexing as needed: removes the old index
// entries first, rewrites the heap slot in place, then re-inserts under the
// new values.
func (m *Manager) Update(id int32, newValues record.Row) (bool, error) {
	current, live, err := m.readLive(id)
	if err != nil {
		return false, err
	}
	if !live {
		return false, nil
	}

	for _, attr := range m.schema.Attributes {
		idx, ok := m.indexes[attr.Name]
		if !ok {
			continue
		}
		if _, err := idx.Delete(id); err != nil {
			return false, fmt.Errorf("table: index %q: %w", attr.Name, err)
		}
	}

	merged := make(record.Row, len(m.schema.Attributes))
	for k, v := range current {
		merged[k] = v
	}
	for _, attr := range m.schema.Attributes {
		if v, ok := newValues[attr.Name]; ok {
			coerced, err := record.Coerce(attr, v)
			if err != nil {
				return false, fmt.Errorf("table: attribute %q: %w", attr.Name, err)
			}
			merged[attr.Name] = coerced
		}
	}

	raw, err := m.codec.Encode(merged, record.Live)
	if err != nil {
		return false, fmt.Errorf("table: encode record: %w", err)
	}
	if err := m.heap.Overwrite(id, raw); err != nil {
		return false, fmt.Errorf("table: overwrite heap: %w", err)
	}

	for _, attr := range m.schema.Attributes {
		idx, ok := m.indexes[attr.Name]
		if !ok {
			continue
		}
		if err := idx.Insert(id); err != nil {
			return false, fmt.Errorf("table: index %q: %w", attr.Name, err)
		}
	}
	return true, nil
}

// FindByAttribute returns every live row whose attrName equals value, using
// that attribute's index if one exists, or a full live scan otherwise.
func (m *Manager) FindByAttribute(attrName string, value any) ([]record.Row, error) {
	attr, ok := m.schema.Attribute(attrName)
	if !ok {
		return nil, fmt.Errorf("table: unknown attribute %q", attrName)
	}
	coerced, err := record.Coerce(attr, value)
	if err != nil {
		return nil, err
	}

	if idx, ok := m.indexes[attrName]; ok {
		ids, err := idx.Search(coerced)
		if err != nil {
			return nil, err
		}
		return m.rowsFor(ids)
	}

	var rows []record.Row
	ids, err := m.heap.LiveScan()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		row, live, err := m.readLive(id)
		if err != nil {
			return nil, err
		}
		if live && index.Equal(row[attrName], coerced) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// GetAllRecords returns every live row in the table.
func (m *Manager) GetAllRecords() ([]record.Row, error) {
	ids, err := m.heap.LiveScan()
	if err != nil {
		return nil, err
	}
	return m.rowsFor(ids)
}

func (m *Manager) rowsFor(ids []int32) ([]record.Row, error) {
	rows := make([]record.Row, 0, len(ids))
	for _, id := range ids {
		row, live, err := m.readLive(id)
		if err != nil {
			return nil, err
		}
		if live {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Select intersects the id sets produced by every equals, range, and
// spatial predicate (in that order), short-circuiting to empty as soon as
// the running intersection is empty. With no predicates at all, it returns
// every live record id. An attribute with no index is a hard error, except
// that all three predicate lists being empty always triggers the full
// live scan instead.
func (m *Manager) Select(equals []EqualsPredicate, ranges []RangePredicate, spatials []SpatialPredicate) ([]int32, error) {
	if len(equals) == 0 && len(ranges) == 0 && len(spatials) == 0 {
		return m.heap.LiveScan()
	}

	var sets []map[int32]struct{}

	for _, p := range equals {
		idx, ok := m.indexes[p.Attr]
		if !ok {
			return nil, fmt.Errorf("table: no index for attribute %q", p.Attr)
		}
		attr, ok := m.schema.Attribute(p.Attr)
		if !ok {
			return nil, fmt.Errorf("table: unknown attribute %q", p.Attr)
		}
		value, err := record.Coerce(attr, p.Value)
		if err != nil {
			return nil, err
		}
		ids, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		sets = append(sets, toSet(ids))
	}

	for _, p := range ranges {
		idx, ok := m.indexes[p.Attr]
		if !ok {
			return nil, fmt.Errorf("table: no index for attribute %q", p.Attr)
		}
		attr, ok := m.schema.Attribute(p.Attr)
		if !ok {
			return nil, fmt.Errorf("table: unknown attribute %q", p.Attr)
		}
		lo, err := record.Coerce(attr, p.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := record.Coerce(attr, p.Hi)
		if err != nil {
			return nil, err
		}
		ids, err := idx.RangeSearch(lo, hi)
		if err != nil {
			return nil, fmt.Errorf("table: range search on %q: %w", p.Attr, err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		sets = append(sets, toSet(ids))
	}

	for _, p := range spatials {
		idx, ok := m.indexes[p.Attr]
		if !ok {
			return nil, fmt.Errorf("table: no index for attribute %q", p.Attr)
		}
		rtree, ok := idx.(*index.RTreeIdx)
		if !ok {
			return nil, fmt.Errorf("table: attribute %q has no spatial index", p.Attr)
		}
		var ids []int32
		var err error
		switch p.Kind {
		case "RADIUS":
			ids, err = rtree.RadiusSearch(p.Center, p.Param)
		case "KNN":
			ids, err = rtree.KNNSearch(p.Center, int(p.Param))
		default:
			return nil, fmt.Errorf("table: unsupported spatial predicate %q", p.Kind)
		}
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		sets = append(sets, toSet(ids))
	}

	result := sets[0]
	for _, s := range sets[1:] {
		result = intersect(result, s)
		if len(result) == 0 {
			return nil, nil
		}
	}
	out := make([]int32, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	return out, nil
}

func toSet(ids []int32) map[int32]struct{} {
	s := make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func intersect(a, b map[int32]struct{}) map[int32]struct{} {
	out := make(map[int32]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Rebuild rebuilds every index from the heap file's current live records.
func (m *Manager) Rebuild() error {
	liveIDs, err := m.heap.LiveScan()
	if err != nil {
		return err
	}
	for name, idx := range m.indexes {
		if err := idx.Rebuild(liveIDs); err != nil {
			return fmt.Errorf("table: rebuild index %q: %w", name, err)
		}
	}
	return nil
}

// Schema returns the table's schema.
func (m *Manager) Schema() types.Schema {
	return m.schema
}
