package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jochuuuu/reldb/internal/types"
)

// Extendible-hashing parameters, fixed per the original design: a bucket
// holds FB record ids plus one overflow pointer; directory prefixes never
// grow past Depth bits, after which a full bucket chains an overflow bucket
// instead of splitting.
const (
	hashBucketCapacity = 5
	hashDirectoryDepth = 5
)

type dirEntry struct {
	prefix   string
	bucketID int32
}

// HashIdx is an on-disk extendible hash index: a text directory of
// (prefix, bucket_id) pairs plus a binary bucket file, (FB+1) int32s per
// bucket (FB record-id slots, -1 for empty, then one overflow pointer, -1 =
// no overflow).
type HashIdx struct {
	dirPath     string
	bucketsPath string
	fetch       ValueFetcher
	isKey       bool
	dataType    types.DataType
}

const hashBucketSize = (hashBucketCapacity + 1) * 4 // bytes

// OpenHash opens or creates a HashIdx backed by dirPath/bucketsPath.
func OpenHash(dirPath, bucketsPath string, dataType types.DataType, isKey bool, fetch ValueFetcher) (*HashIdx, error) {
	h := &HashIdx{dirPath: dirPath, bucketsPath: bucketsPath, fetch: fetch, isKey: isKey, dataType: dataType}
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := h.initFiles(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *HashIdx) initFiles() error {
	if err := os.WriteFile(h.dirPath, []byte("0 0\n1 1\n"), 0644); err != nil {
		return fmt.Errorf("hash: init directory %s: %w", h.dirPath, err)
	}
	empty := emptyBucketBytes()
	buf := make([]byte, 0, len(empty)*(1<<hashDirectoryDepth))
	for i := 0; i < (1 << hashDirectoryDepth); i++ {
		buf = append(buf, empty...)
	}
	if err := os.WriteFile(h.bucketsPath, buf, 0644); err != nil {
		return fmt.Errorf("hash: init buckets %s: %w", h.bucketsPath, err)
	}
	return nil
}

func emptyBucketBytes() []byte {
	buf := make([]byte, hashBucketSize)
	for i := 0; i < hashBucketCapacity+1; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], ^uint32(0))
	}
	return buf
}

func (h *HashIdx) loadDirectory() ([]dirEntry, error) {
	f, err := os.Open(h.dirPath)
	if err != nil {
		return nil, fmt.Errorf("hash: open directory: %w", err)
	}
	defer f.Close()
	var entries []dirEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		entries = append(entries, dirEntry{prefix: parts[0], bucketID: int32(id)})
	}
	return entries, sc.Err()
}

func (h *HashIdx) saveDirectory(entries []dirEntry) error {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %d\n", e.prefix, e.bucketID)
	}
	return os.WriteFile(h.dirPath, []byte(b.String()), 0644)
}

type bucket struct {
	records []int32
	next    int32
}

func (h *HashIdx) readBucket(id int32) (bucket, error) {
	f, err := os.Open(h.bucketsPath)
	if err != nil {
		return bucket{}, fmt.Errorf("hash: open buckets: %w", err)
	}
	defer f.Close()
	buf := make([]byte, hashBucketSize)
	if _, err := f.ReadAt(buf, int64(id)*hashBucketSize); err != nil {
		return bucket{next: -1}, nil // unallocated bucket reads as empty
	}
	var b bucket
	for i := 0; i < hashBucketCapacity; i++ {
		v := int32(binary.LittleEndian.Uint32(buf[i*4:]))
		if v != -1 {
			b.records = append(b.records, v)
		}
	}
	b.next = int32(binary.LittleEndian.Uint32(buf[hashBucketCapacity*4:]))
	return b, nil
}

func (h *HashIdx) writeBucket(id int32, b bucket) error {
	f, err := os.OpenFile(h.bucketsPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("hash: open buckets for write: %w", err)
	}
	defer f.Close()
	buf := make([]byte, hashBucketSize)
	for i := 0; i < hashBucketCapacity; i++ {
		if i < len(b.records) {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(b.records[i]))
		} else {
			binary.LittleEndian.PutUint32(buf[i*4:], ^uint32(0))
		}
	}
	binary.LittleEndian.PutUint32(buf[hashBucketCapacity*4:], uint32(b.next))
	if _, err := f.WriteAt(buf, int64(id)*hashBucketSize); err != nil {
		return fmt.Errorf("hash: write bucket %d: %w", id, err)
	}
	return nil
}

func (h *HashIdx) nextAvailableBucketID() (int32, error) {
	info, err := os.Stat(h.bucketsPath)
	if err != nil {
		return 0, fmt.Errorf("hash: stat buckets: %w", err)
	}
	return int32(info.Size() / hashBucketSize), nil
}

func isBucketFull(b bucket) bool { return len(b.records) >= hashBucketCapacity }

// hashBin computes the D-bit binary-string hash prefix for value, per the
// data type it indexes: int uses v mod 2^D, double uses floor(v*1000) mod
// 2^D (undefined for |v| large enough to overflow, per the open question),
// text sums code points mod 2^D, anything else hashes to 0.
func hashBin(value any, dataType types.DataType) string {
	const mod = 1 << hashDirectoryDepth
	var h int
	switch dataType {
	case types.TypeInt:
		v, _ := value.(int32)
		h = pymod(int(v), mod)
	case types.TypeDecimal:
		v, _ := value.(float64)
		h = pymod(int(v*1000), mod)
	case types.TypeChar, types.TypeVarchar:
		s, _ := value.(string)
		sum := 0
		for _, r := range s {
			sum += int(r)
		}
		h = pymod(sum, mod)
	default:
		h = 0
	}
	return padBinary(h, hashDirectoryDepth)
}

// pymod implements Python's modulo (result has the sign of the divisor),
// unlike Go's %, which has the sign of the dividend.
func pymod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func padBinary(v, width int) string {
	s := strconv.FormatInt(int64(v), 2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// matchPrefix finds the directory entry whose prefix exactly equals the
// longest suffix of hbin that has one: try hbin, then hbin[1:], hbin[2:],
// … until a match or the string is exhausted.
func matchPrefix(entries []dirEntry, hbin string) (dirEntry, bool) {
	b := hbin
	for b != "" {
		for _, e := range entries {
			if e.prefix == b {
				return e, true
			}
		}
		b = b[1:]
	}
	return dirEntry{}, false
}

func removeEntry(entries []dirEntry, target dirEntry) []dirEntry {
	out := entries[:0]
	for _, e := range entries {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

func (h *HashIdx) valueOf(id int32) (any, error) {
	v, live, err := h.fetch(id)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("hash: record %d is not live", id)
	}
	return v, nil
}

// Insert adds id under its fetched column value, splitting a full bucket
// when its directory prefix has room to grow, or chaining an overflow
// bucket once the prefix has reached the depth cap.
func (h *HashIdx) Insert(id int32) error {
	value, err := h.valueOf(id)
	if err != nil {
		return err
	}

	if h.isKey {
		existing, err := h.Search(value)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicateKey
		}
	}

	hbin := hashBin(value, h.dataType)
	entries, err := h.loadDirectory()
	if err != nil {
		return err
	}

	matching, ok := matchPrefix(entries, hbin)
	if !ok {
		return fmt.Errorf("hash: no matching directory prefix for hash %q", hbin)
	}

	b, err := h.readBucket(matching.bucketID)
	if err != nil {
		return err
	}

	// Reject if id already present anywhere in the chain.
	cur := matching.bucketID
	for cur != -1 {
		cb, err := h.readBucket(cur)
		if err != nil {
			return err
		}
		for _, r := range cb.records {
			if r == id {
				return fmt.Errorf("hash: record %d already indexed", id)
			}
		}
		cur = cb.next
	}

	if !isBucketFull(b) {
		b.records = append(b.records, id)
		return h.writeBucket(matching.bucketID, b)
	}

	if len(matching.prefix) < hashDirectoryDepth {
		return h.split(entries, matching, b, id)
	}

	// Full and at depth cap: chain an overflow bucket.
	overflowID, err := h.nextAvailableBucketID()
	if err != nil {
		return err
	}
	bucketID := matching.bucketID
	for b.next != -1 {
		bucketID = b.next
		b, err = h.readBucket(bucketID)
		if err != nil {
			return err
		}
		if !isBucketFull(b) {
			b.records = append(b.records, id)
			return h.writeBucket(bucketID, b)
		}
	}
	b.next = overflowID
	if err := h.writeBucket(bucketID, b); err != nil {
		return err
	}
	return h.writeBucket(overflowID, bucket{records: []int32{id}, next: -1})
}

func (h *HashIdx) split(entries []dirEntry, matching dirEntry, full bucket, newID int32) error {
	prefix0 := "0" + matching.prefix
	prefix1 := "1" + matching.prefix
	id0, _ := strconv.ParseInt(prefix0, 2, 32)
	id1, _ := strconv.ParseInt(prefix1, 2, 32)

	if err := h.writeBucket(int32(id0), bucket{next: -1}); err != nil {
		return err
	}
	if err := h.writeBucket(int32(id1), bucket{next: -1}); err != nil {
		return err
	}

	entries = removeEntry(entries, matching)
	entries = append(entries, dirEntry{prefix: prefix0, bucketID: int32(id0)}, dirEntry{prefix: prefix1, bucketID: int32(id1)})

	all := append(append([]int32{}, full.records...), newID)
	for _, rec := range all {
		if err := h.distribute(entries, rec); err != nil {
			return err
		}
	}
	return h.saveDirectory(entries)
}

// distribute re-routes a single record into its (possibly just-split)
// bucket, used while redistributing a split bucket's contents.
func (h *HashIdx) distribute(entries []dirEntry, id int32) error {
	value, err := h.valueOf(id)
	if err != nil {
		return err
	}
	hbin := hashBin(value, h.dataType)
	matching, ok := matchPrefix(entries, hbin)
	if !ok {
		return fmt.Errorf("hash: no matching directory prefix for hash %q", hbin)
	}
	b, err := h.readBucket(matching.bucketID)
	if err != nil {
		return err
	}
	if !isBucketFull(b) {
		b.records = append(b.records, id)
		return h.writeBucket(matching.bucketID, b)
	}
	overflowID, err := h.nextAvailableBucketID()
	if err != nil {
		return err
	}
	b.next = overflowID
	if err := h.writeBucket(matching.bucketID, b); err != nil {
		return err
	}
	return h.writeBucket(overflowID, bucket{records: []int32{id}, next: -1})
}

// Search returns every id in the bucket chain whose fetched value equals
// value. For an is_key index it returns as soon as the first match is found.
func (h *HashIdx) Search(value any) ([]int32, error) {
	hbin := hashBin(value, h.dataType)
	entries, err := h.loadDirectory()
	if err != nil {
		return nil, err
	}
	matching, ok := matchPrefix(entries, hbin)
	if !ok {
		return nil, nil
	}

	var found []int32
	bucketID := matching.bucketID
	for bucketID != -1 {
		b, err := h.readBucket(bucketID)
		if err != nil {
			return nil, err
		}
		for _, id := range b.records {
			v, err := h.valueOf(id)
			if err != nil {
				return nil, err
			}
			if Equal(v, value) {
				found = append(found, id)
				if h.isKey {
					return found, nil
				}
			}
		}
		bucketID = b.next
	}
	return found, nil
}

// RangeSearch always fails: extendible hashing cannot serve range queries.
func (h *HashIdx) RangeSearch(lo, hi any) ([]int32, error) {
	return nil, ErrNotSupported
}

// Delete removes id from its bucket chain, then compacts: it walks the
// remaining overflow chain pulling the head record of each subsequent
// bucket back by one position, exactly as the original always does
// regardless of how many overflow buckets are involved.
func (h *HashIdx) Delete(id int32) (bool, error) {
	value, err := h.valueOf(id)
	if err != nil {
		// Record may already be gone from the heap; fall back to a full
		// directory scan so deletes remain possible post-heap-free.
		return h.deleteByScan(id)
	}

	hbin := hashBin(value, h.dataType)
	entries, err := h.loadDirectory()
	if err != nil {
		return false, err
	}
	matching, ok := matchPrefix(entries, hbin)
	if !ok {
		return false, nil
	}

	bucketID := matching.bucketID
	b, err := h.readBucket(bucketID)
	if err != nil {
		return false, err
	}

	if idx := indexOf(b.records, id); idx >= 0 {
		b.records = append(b.records[:idx], b.records[idx+1:]...)
		if err := h.writeBucket(bucketID, b); err != nil {
			return false, err
		}

		nextOverflow := b.next
		for nextOverflow != -1 {
			overflow, err := h.readBucket(nextOverflow)
			if err != nil {
				return false, err
			}
			if len(overflow.records) > 0 {
				pulled := overflow.records[0]
				overflow.records = overflow.records[1:]
				b.records = append(b.records, pulled)
				if err := h.writeBucket(nextOverflow, overflow); err != nil {
					return false, err
				}
				if err := h.writeBucket(bucketID, b); err != nil {
					return false, err
				}
			}
			bucketID = nextOverflow
			b = overflow
			nextOverflow = overflow.next
		}
		return true, nil
	}

	prevID := bucketID
	curID := b.next
	for curID != -1 {
		cur, err := h.readBucket(curID)
		if err != nil {
			return false, err
		}
		if idx := indexOf(cur.records, id); idx >= 0 {
			cur.records = append(cur.records[:idx], cur.records[idx+1:]...)
			if err := h.writeBucket(curID, cur); err != nil {
				return false, err
			}
			if len(cur.records) == 0 {
				prev, err := h.readBucket(prevID)
				if err != nil {
					return false, err
				}
				prev.next = cur.next
				if err := h.writeBucket(prevID, prev); err != nil {
					return false, err
				}
			}
			return true, nil
		}
		prevID = curID
		curID = cur.next
	}
	return false, nil
}

// deleteByScan handles deletion after the heap slot has already been freed
// (value can no longer be fetched), by walking every directory bucket chain.
func (h *HashIdx) deleteByScan(id int32) (bool, error) {
	entries, err := h.loadDirectory()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		bucketID := e.bucketID
		prevID := int32(-1)
		for bucketID != -1 {
			b, err := h.readBucket(bucketID)
			if err != nil {
				return false, err
			}
			if idx := indexOf(b.records, id); idx >= 0 {
				b.records = append(b.records[:idx], b.records[idx+1:]...)
				if err := h.writeBucket(bucketID, b); err != nil {
					return false, err
				}
				return true, nil
			}
			prevID = bucketID
			bucketID = b.next
		}
		_ = prevID
	}
	return false, nil
}

func indexOf(records []int32, id int32) int {
	for i, r := range records {
		if r == id {
			return i
		}
	}
	return -1
}

// Rebuild discards every directory/bucket entry and re-inserts liveIDs from
// scratch.
func (h *HashIdx) Rebuild(liveIDs []int32) error {
	if err := h.initFiles(); err != nil {
		return err
	}
	for _, id := range liveIDs {
		if err := h.Insert(id); err != nil && err != ErrDuplicateKey {
			return err
		}
	}
	return nil
}
