package index

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/dhconnelly/rtreego"

	"github.com/jochuuuu/reldb/internal/types"
)

const (
	rtreeMinBranch = 25
	rtreeMaxBranch = 50
	// rtreeEpsilon sizes each indexed point's bounding box so rtreego never
	// sees a zero-volume rectangle.
	rtreeEpsilon = 1e-9
)

// rtreeEntry adapts one indexed point to rtreego.Spatial.
type rtreeEntry struct {
	id   int32
	x, y float64
}

func (e *rtreeEntry) Bounds() *rtreego.Rect {
	rect, err := rtreego.NewRect(rtreego.Point{e.x, e.y}, []float64{rtreeEpsilon, rtreeEpsilon})
	if err != nil {
		// Degenerate point coordinates never fail rtreego's rect validation
		// for a strictly positive side length; this would indicate a bug.
		panic(fmt.Sprintf("rtree: invalid bounds for point (%v, %v): %v", e.x, e.y, err))
	}
	return rect
}

// RTreeIdx is a 2-D spatial index over POINT columns, backed by an
// in-memory rtreego.Rtree plus a JSON sidecar caching id->Point so the tree
// can be rebuilt on load without re-scanning the heap file for every op.
type RTreeIdx struct {
	tree      *rtreego.Rtree
	cache     map[int32]types.Point
	cachePath string
	fetch     ValueFetcher
	isKey     bool
}

type rtreeCacheEntry struct {
	ID int32   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// OpenRTree opens or creates an RTreeIdx backed by cachePath.
func OpenRTree(cachePath string, isKey bool, fetch ValueFetcher) (*RTreeIdx, error) {
	r := &RTreeIdx{
		tree:      rtreego.NewTree(2, rtreeMinBranch, rtreeMaxBranch),
		cache:     make(map[int32]types.Point),
		cachePath: cachePath,
		fetch:     fetch,
		isKey:     isKey,
	}
	if err := r.loadCache(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RTreeIdx) loadCache() error {
	data, err := os.ReadFile(r.cachePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rtree: read cache %s: %w", r.cachePath, err)
	}
	var entries []rtreeCacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("rtree: decode cache %s: %w", r.cachePath, err)
	}
	for _, e := range entries {
		p := types.Point{X: e.X, Y: e.Y}
		r.cache[e.ID] = p
		r.tree.Insert(&rtreeEntry{id: e.ID, x: e.X, y: e.Y})
	}
	return nil
}

func (r *RTreeIdx) saveCache() error {
	entries := make([]rtreeCacheEntry, 0, len(r.cache))
	for id, p := range r.cache {
		entries = append(entries, rtreeCacheEntry{ID: id, X: p.X, Y: p.Y})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("rtree: encode cache: %w", err)
	}
	return os.WriteFile(r.cachePath, data, 0644)
}

func (r *RTreeIdx) valuePoint(id int32) (types.Point, error) {
	v, live, err := r.fetch(id)
	if err != nil {
		return types.Point{}, err
	}
	if !live {
		return types.Point{}, fmt.Errorf("rtree: record %d is not live", id)
	}
	p, ok := v.(types.Point)
	if !ok {
		return types.Point{}, fmt.Errorf("rtree: record %d does not hold a POINT value", id)
	}
	return p, nil
}

func toPointValue(value any) (types.Point, error) {
	p, ok := value.(types.Point)
	if !ok {
		return types.Point{}, ErrNotSupported
	}
	return p, nil
}

// Insert adds id under its fetched Point value.
func (r *RTreeIdx) Insert(id int32) error {
	p, err := r.valuePoint(id)
	if err != nil {
		return err
	}
	if r.isKey {
		existing, err := r.Search(p)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicateKey
		}
	}
	r.tree.Insert(&rtreeEntry{id: id, x: p.X, y: p.Y})
	r.cache[id] = p
	return r.saveCache()
}

// Search returns every id at exactly value's coordinates (within
// types.Point's equality tolerance): a degenerate bbox intersection
// followed by an exact-coordinate recheck.
func (r *RTreeIdx) Search(value any) ([]int32, error) {
	target, err := toPointValue(value)
	if err != nil {
		return nil, err
	}
	bbox, err := rtreego.NewRect(rtreego.Point{target.X, target.Y}, []float64{rtreeEpsilon, rtreeEpsilon})
	if err != nil {
		return nil, fmt.Errorf("rtree: build search rect: %w", err)
	}
	candidates := r.tree.SearchIntersect(bbox)
	var result []int32
	for _, c := range candidates {
		e := c.(*rtreeEntry)
		if target.Equal(types.Point{X: e.x, Y: e.y}) {
			result = append(result, e.id)
			if r.isKey {
				return result, nil
			}
		}
	}
	return result, nil
}

// RangeSearch returns every id whose Point falls in the rectangle spanned
// by lo and hi: bbox intersection, then a fine filter via types.Point.InRange.
func (r *RTreeIdx) RangeSearch(lo, hi any) ([]int32, error) {
	loPoint, err := toPointValue(lo)
	if err != nil {
		return nil, err
	}
	hiPoint, err := toPointValue(hi)
	if err != nil {
		return nil, err
	}
	minX, maxX := math.Min(loPoint.X, hiPoint.X), math.Max(loPoint.X, hiPoint.X)
	minY, maxY := math.Min(loPoint.Y, hiPoint.Y), math.Max(loPoint.Y, hiPoint.Y)
	bbox, err := rtreego.NewRect(rtreego.Point{minX, minY}, []float64{maxX - minX + rtreeEpsilon, maxY - minY + rtreeEpsilon})
	if err != nil {
		return nil, fmt.Errorf("rtree: build range rect: %w", err)
	}
	candidates := r.tree.SearchIntersect(bbox)
	var result []int32
	for _, c := range candidates {
		e := c.(*rtreeEntry)
		p := types.Point{X: e.x, Y: e.y}
		if p.InRange(loPoint, hiPoint) {
			result = append(result, e.id)
		}
	}
	return result, nil
}

// RadiusSearch returns every id within radius of center: a coarse
// bbox-of-circle intersection, then a true Euclidean-distance fine filter.
func (r *RTreeIdx) RadiusSearch(center types.Point, radius float64) ([]int32, error) {
	if radius <= 0 {
		return nil, nil
	}
	bbox, err := rtreego.NewRect(
		rtreego.Point{center.X - radius, center.Y - radius},
		[]float64{2 * radius, 2 * radius},
	)
	if err != nil {
		return nil, fmt.Errorf("rtree: build radius rect: %w", err)
	}
	candidates := r.tree.SearchIntersect(bbox)
	var result []int32
	for _, c := range candidates {
		e := c.(*rtreeEntry)
		if center.InCircle(types.Point{X: e.x, Y: e.y}, radius) {
			result = append(result, e.id)
		}
	}
	return result, nil
}

// KNNSearch returns up to k ids nearest to center, ordered by distance: the
// library's native nearest-neighbor search, followed by a defensive
// re-sort and truncation.
func (r *RTreeIdx) KNNSearch(center types.Point, k int) ([]int32, error) {
	if k <= 0 {
		return nil, nil
	}
	nearest := r.tree.NearestNeighbors(k, rtreego.Point{center.X, center.Y})
	type scored struct {
		id   int32
		dist float64
	}
	results := make([]scored, 0, len(nearest))
	for _, c := range nearest {
		if c == nil {
			continue
		}
		e := c.(*rtreeEntry)
		results = append(results, scored{id: e.id, dist: center.DistanceTo(types.Point{X: e.x, Y: e.y})})
	}
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].dist < results[j-1].dist; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	ids := make([]int32, len(results))
	for i, s := range results {
		ids[i] = s.id
	}
	return ids, nil
}

// Delete removes id from the tree.
func (r *RTreeIdx) Delete(id int32) (bool, error) {
	p, ok := r.cache[id]
	if !ok {
		return false, nil
	}
	r.tree.DeleteWithComparator(&rtreeEntry{id: id, x: p.X, y: p.Y}, func(a, b rtreego.Spatial) bool {
		return a.(*rtreeEntry).id == b.(*rtreeEntry).id
	})
	delete(r.cache, id)
	if err := r.saveCache(); err != nil {
		return false, err
	}
	return true, nil
}

// Rebuild discards the tree and cache and re-inserts liveIDs from scratch.
func (r *RTreeIdx) Rebuild(liveIDs []int32) error {
	r.tree = rtreego.NewTree(2, rtreeMinBranch, rtreeMaxBranch)
	r.cache = make(map[int32]types.Point)
	for _, id := range liveIDs {
		if err := r.Insert(id); err != nil && err != ErrDuplicateKey {
			return err
		}
	}
	return nil
}
