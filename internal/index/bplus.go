package index

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/jochuuuu/reldb/internal/types"
)

const (
	bplusDegree   = 4
	bplusMaxKeys  = bplusDegree - 1
	bplusMinKeys  = (bplusDegree+1)/2 - 1
)

// bplusNode is the in-memory B+ tree node. Internal nodes hold len(keys)+1
// children; leaf nodes are right-linked via next for range scans.
type bplusNode struct {
	keys     []int32
	children []*bplusNode
	isLeaf   bool
	next     *bplusNode
	parent   *bplusNode
}

// persistNode is the gob-serializable snapshot of one node's shape: no
// next/parent pointers, since those are reconstructed from leaf order on
// load (mirroring the split leaf-data/tree-shape persistence strategy).
type persistNode struct {
	Keys     []int32
	IsLeaf   bool
	Children []*persistNode
}

type bplusMeta struct {
	DataType string
	IsKey    bool
}

// BPlusIdx is an in-memory B+ tree (order 4) persisted as a blob after
// every mutating operation — the closest stdlib analogue available to an
// object-graph pickle, justified in the design ledger.
type BPlusIdx struct {
	root     *bplusNode
	treePath string
	metaPath string
	fetch    ValueFetcher
	isKey    bool
	dataType types.DataType
}

// OpenBPlus opens or creates a BPlusIdx backed by treePath/metaPath.
func OpenBPlus(treePath, metaPath string, dataType types.DataType, isKey bool, fetch ValueFetcher) (*BPlusIdx, error) {
	b := &BPlusIdx{
		root:     &bplusNode{isLeaf: true},
		treePath: treePath,
		metaPath: metaPath,
		fetch:    fetch,
		isKey:    isKey,
		dataType: dataType,
	}
	if err := b.loadIndex(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BPlusIdx) saveIndex() error {
	meta := bplusMeta{DataType: string(b.dataType), IsKey: b.isKey}
	var metaBuf bytes.Buffer
	if err := gob.NewEncoder(&metaBuf).Encode(meta); err != nil {
		return fmt.Errorf("bplus: encode metadata: %w", err)
	}
	if err := os.WriteFile(b.metaPath, metaBuf.Bytes(), 0644); err != nil {
		return fmt.Errorf("bplus: write metadata: %w", err)
	}

	tree := serializeNode(b.root)
	var treeBuf bytes.Buffer
	if err := gob.NewEncoder(&treeBuf).Encode(tree); err != nil {
		return fmt.Errorf("bplus: encode tree: %w", err)
	}
	if err := os.WriteFile(b.treePath, treeBuf.Bytes(), 0644); err != nil {
		return fmt.Errorf("bplus: write tree: %w", err)
	}
	return nil
}

func (b *BPlusIdx) loadIndex() error {
	metaBytes, err := os.ReadFile(b.metaPath)
	if err != nil {
		return nil // no previous index
	}
	treeBytes, err := os.ReadFile(b.treePath)
	if err != nil {
		return nil
	}

	var meta bplusMeta
	if err := gob.NewDecoder(bytes.NewReader(metaBytes)).Decode(&meta); err != nil {
		return nil // incompatible metadata, start fresh
	}
	if meta.DataType != string(b.dataType) || meta.IsKey != b.isKey {
		return nil
	}

	var tree *persistNode
	if err := gob.NewDecoder(bytes.NewReader(treeBytes)).Decode(&tree); err != nil {
		return nil
	}
	if tree == nil {
		return nil
	}

	b.root = deserializeNode(tree, nil)
	var leaves []*bplusNode
	collectLeaves(b.root, &leaves)
	for i := 0; i < len(leaves); i++ {
		if i < len(leaves)-1 {
			leaves[i].next = leaves[i+1]
		}
	}
	return nil
}

func serializeNode(n *bplusNode) *persistNode {
	if n == nil {
		return nil
	}
	pn := &persistNode{Keys: append([]int32{}, n.keys...), IsLeaf: n.isLeaf}
	if !n.isLeaf {
		for _, c := range n.children {
			pn.Children = append(pn.Children, serializeNode(c))
		}
	}
	return pn
}

func deserializeNode(pn *persistNode, parent *bplusNode) *bplusNode {
	if pn == nil {
		return nil
	}
	n := &bplusNode{keys: append([]int32{}, pn.Keys...), isLeaf: pn.IsLeaf, parent: parent}
	if !pn.IsLeaf {
		for _, cd := range pn.Children {
			c := deserializeNode(cd, n)
			if c != nil {
				n.children = append(n.children, c)
			}
		}
	}
	return n
}

func collectLeaves(n *bplusNode, leaves *[]*bplusNode) {
	if n == nil {
		return
	}
	if n.isLeaf {
		*leaves = append(*leaves, n)
		return
	}
	for _, c := range n.children {
		collectLeaves(c, leaves)
	}
}

func (b *BPlusIdx) valueOf(id int32) (any, error) {
	v, live, err := b.fetch(id)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("bplus: record %d is not live", id)
	}
	return v, nil
}

// compareValueWithRecord compares targetValue against the fetched value of
// recordID: -1/0/1.
func (b *BPlusIdx) compareValueWithRecord(targetValue any, recordID int32) (int, error) {
	v, err := b.valueOf(recordID)
	if err != nil {
		return 0, err
	}
	return Compare(targetValue, v), nil
}

func (b *BPlusIdx) compareRecordValues(id1, id2 int32) (int, error) {
	v1, err := b.valueOf(id1)
	if err != nil {
		return 0, err
	}
	v2, err := b.valueOf(id2)
	if err != nil {
		return 0, err
	}
	return Compare(v1, v2), nil
}

func (b *BPlusIdx) findLeafByValue(targetValue any) (*bplusNode, error) {
	node := b.root
	for !node.isLeaf {
		i := 0
		for i < len(node.keys) {
			cmp, err := b.compareValueWithRecord(targetValue, node.keys[i])
			if err != nil {
				return nil, err
			}
			if cmp < 0 {
				break
			}
			i++
		}
		node = node.children[i]
	}
	return node, nil
}

func (b *BPlusIdx) findLeafForRecord(id int32) (*bplusNode, error) {
	value, err := b.valueOf(id)
	if err != nil {
		return b.root, nil
	}
	return b.findLeafByValue(value)
}

// Search returns every id whose fetched value equals value. Duplicates
// spill into adjacent leaves, so matching continues across the leaf chain
// as long as each next leaf's first key still compares equal.
func (b *BPlusIdx) Search(value any) ([]int32, error) {
	leaf, err := b.findLeafByValue(value)
	if err != nil {
		return nil, err
	}
	var result []int32
	if err := b.searchInLeaf(leaf, value, &result); err != nil {
		return nil, err
	}
	if !b.isKey {
		current := leaf
		for current.next != nil && len(current.next.keys) > 0 {
			cmp, err := b.compareValueWithRecord(value, current.next.keys[0])
			if err != nil {
				return nil, err
			}
			if cmp != 0 {
				break
			}
			if err := b.searchInLeaf(current.next, value, &result); err != nil {
				return nil, err
			}
			current = current.next
		}
	}
	return result, nil
}

func (b *BPlusIdx) searchInLeaf(leaf *bplusNode, value any, result *[]int32) error {
	for _, id := range leaf.keys {
		cmp, err := b.compareValueWithRecord(value, id)
		if err != nil {
			return err
		}
		if cmp == 0 {
			*result = append(*result, id)
		}
	}
	return nil
}

// Insert adds id in sorted-by-value position in its target leaf, splitting
// leaves and internal nodes up the tree as needed, then persists the tree.
func (b *BPlusIdx) Insert(id int32) error {
	if b.isKey {
		value, err := b.valueOf(id)
		if err != nil {
			return err
		}
		existing, err := b.Search(value)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicateKey
		}
	}

	leaf, err := b.findLeafForRecord(id)
	if err != nil {
		return err
	}
	for _, k := range leaf.keys {
		if k == id {
			return nil
		}
	}

	if err := b.insertRecordInLeaf(leaf, id); err != nil {
		return err
	}
	if len(leaf.keys) > bplusMaxKeys {
		if err := b.splitLeaf(leaf); err != nil {
			return err
		}
	}
	return b.saveIndex()
}

func (b *BPlusIdx) insertRecordInLeaf(leaf *bplusNode, id int32) error {
	if len(leaf.keys) == 0 {
		leaf.keys = append(leaf.keys, id)
		return nil
	}
	for i, existing := range leaf.keys {
		cmp, err := b.compareRecordValues(id, existing)
		if err != nil {
			return err
		}
		if cmp <= 0 {
			leaf.keys = append(leaf.keys, 0)
			copy(leaf.keys[i+1:], leaf.keys[i:])
			leaf.keys[i] = id
			return nil
		}
	}
	leaf.keys = append(leaf.keys, id)
	return nil
}

func (b *BPlusIdx) splitLeaf(leaf *bplusNode) error {
	mid := len(leaf.keys) / 2
	newLeaf := &bplusNode{isLeaf: true}
	newLeaf.keys = append([]int32{}, leaf.keys[mid:]...)
	newLeaf.next = leaf.next
	newLeaf.parent = leaf.parent

	leaf.keys = leaf.keys[:mid]
	leaf.next = newLeaf

	promote := newLeaf.keys[0]

	if leaf.parent == nil {
		newRoot := &bplusNode{isLeaf: false, keys: []int32{promote}, children: []*bplusNode{leaf, newLeaf}}
		leaf.parent = newRoot
		newLeaf.parent = newRoot
		b.root = newRoot
		return nil
	}
	return b.insertInternal(leaf.parent, promote, newLeaf)
}

func (b *BPlusIdx) insertInternal(node *bplusNode, id int32, rightChild *bplusNode) error {
	inserted := false
	for i, existing := range node.keys {
		cmp, err := b.compareRecordValues(id, existing)
		if err != nil {
			return err
		}
		if cmp <= 0 {
			node.keys = append(node.keys, 0)
			copy(node.keys[i+1:], node.keys[i:])
			node.keys[i] = id

			node.children = append(node.children, nil)
			copy(node.children[i+2:], node.children[i+1:])
			node.children[i+1] = rightChild
			inserted = true
			break
		}
	}
	if !inserted {
		node.keys = append(node.keys, id)
		node.children = append(node.children, rightChild)
	}
	rightChild.parent = node

	if len(node.keys) > bplusMaxKeys {
		return b.splitInternal(node)
	}
	return nil
}

func (b *BPlusIdx) splitInternal(node *bplusNode) error {
	mid := len(node.keys) / 2
	promote := node.keys[mid]

	newNode := &bplusNode{isLeaf: false}
	newNode.keys = append([]int32{}, node.keys[mid+1:]...)
	newNode.children = append([]*bplusNode{}, node.children[mid+1:]...)
	newNode.parent = node.parent
	for _, c := range newNode.children {
		c.parent = newNode
	}

	node.keys = node.keys[:mid]
	node.children = node.children[:mid+1]

	if node.parent == nil {
		newRoot := &bplusNode{isLeaf: false, keys: []int32{promote}, children: []*bplusNode{node, newNode}}
		node.parent = newRoot
		newNode.parent = newRoot
		b.root = newRoot
		return nil
	}
	return b.insertInternal(node.parent, promote, newNode)
}

// RangeSearch returns every id whose fetched value falls in [lo, hi],
// walking right from the leaf containing lo until a value exceeds hi.
func (b *BPlusIdx) RangeSearch(lo, hi any) ([]int32, error) {
	var result []int32
	leaf, err := b.findLeafByValue(lo)
	if err != nil {
		return nil, err
	}
	current := leaf
	for current != nil {
		for _, id := range current.keys {
			v, err := b.valueOf(id)
			if err != nil {
				return nil, err
			}
			if Compare(lo, v) <= 0 && Compare(v, hi) <= 0 {
				result = append(result, id)
			} else if Compare(v, hi) > 0 {
				return result, nil
			}
		}
		current = current.next
	}
	return result, nil
}

// Delete removes id from its leaf, patches ancestor separator keys, and
// rebalances leaf-to-leaf in both directions but, for internal nodes,
// merges only with the left sibling — replicated as-is, a known asymmetry
// in the underlying algorithm rather than a bug to fix here.
func (b *BPlusIdx) Delete(id int32) (bool, error) {
	leaf, err := b.findLeafForRecord(id)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, k := range leaf.keys {
		if k == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	leaf.keys = append(leaf.keys[:idx], leaf.keys[idx+1:]...)

	if len(leaf.keys) > 0 {
		b.updateSeparatorKeys(id, leaf)
	}

	if len(leaf.keys) < bplusMinKeys && leaf != b.root {
		if err := b.rebalanceLeaf(leaf); err != nil {
			return false, err
		}
	}

	if err := b.saveIndex(); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BPlusIdx) updateSeparatorKeys(oldRecord int32, leaf *bplusNode) {
	if leaf.parent == nil {
		return
	}
	parent := leaf.parent
	for i, k := range parent.keys {
		if k == oldRecord {
			if len(leaf.keys) > 0 {
				parent.keys[i] = leaf.keys[0]
			}
		}
	}
	b.updateSeparatorKeys(oldRecord, parent)
}

func childIndex(parent, child *bplusNode) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (b *BPlusIdx) rebalanceLeaf(leaf *bplusNode) error {
	parent := leaf.parent
	if parent == nil {
		return nil
	}
	leafIndex := childIndex(parent, leaf)

	if leafIndex > 0 {
		left := parent.children[leafIndex-1]
		if len(left.keys) > bplusMinKeys {
			borrowed := left.keys[len(left.keys)-1]
			left.keys = left.keys[:len(left.keys)-1]
			leaf.keys = append([]int32{borrowed}, leaf.keys...)
			parent.keys[leafIndex-1] = leaf.keys[0]
			return nil
		}
	}

	if leafIndex < len(parent.children)-1 {
		right := parent.children[leafIndex+1]
		if len(right.keys) > bplusMinKeys {
			borrowed := right.keys[0]
			right.keys = right.keys[1:]
			leaf.keys = append(leaf.keys, borrowed)
			if err := b.sortByValue(leaf.keys); err != nil {
				return err
			}
			parent.keys[leafIndex] = right.keys[0]
			return nil
		}
	}

	if leafIndex > 0 {
		left := parent.children[leafIndex-1]
		left.keys = append(left.keys, leaf.keys...)
		if err := b.sortByValue(left.keys); err != nil {
			return err
		}
		left.next = leaf.next
		parent.keys = append(parent.keys[:leafIndex-1], parent.keys[leafIndex:]...)
		parent.children = append(parent.children[:leafIndex], parent.children[leafIndex+1:]...)
	} else {
		right := parent.children[leafIndex+1]
		leaf.keys = append(leaf.keys, right.keys...)
		if err := b.sortByValue(leaf.keys); err != nil {
			return err
		}
		leaf.next = right.next
		parent.keys = append(parent.keys[:leafIndex], parent.keys[leafIndex+1:]...)
		parent.children = append(parent.children[:leafIndex+1], parent.children[leafIndex+2:]...)
	}

	if len(parent.keys) < bplusMinKeys && parent != b.root {
		b.rebalanceInternal(parent)
	} else if len(parent.keys) == 0 && parent == b.root {
		if len(parent.children) > 0 {
			b.root = parent.children[0]
			b.root.parent = nil
		}
	}
	return nil
}

// rebalanceInternal only ever merges with the left sibling, even when a
// right sibling exists; this mirrors the original exactly rather than
// adding a right-merge fallback it never had.
func (b *BPlusIdx) rebalanceInternal(node *bplusNode) {
	parent := node.parent
	if parent == nil {
		return
	}
	nodeIndex := childIndex(parent, node)

	if nodeIndex > 0 {
		left := parent.children[nodeIndex-1]
		separator := parent.keys[nodeIndex-1]
		parent.keys = append(parent.keys[:nodeIndex-1], parent.keys[nodeIndex:]...)

		left.keys = append(left.keys, separator)
		left.keys = append(left.keys, node.keys...)
		left.children = append(left.children, node.children...)
		for _, c := range node.children {
			c.parent = left
		}

		parent.children = append(parent.children[:nodeIndex], parent.children[nodeIndex+1:]...)
	}

	if len(parent.keys) < bplusMinKeys && parent != b.root {
		b.rebalanceInternal(parent)
	} else if len(parent.keys) == 0 && parent == b.root {
		if len(parent.children) > 0 {
			b.root = parent.children[0]
			b.root.parent = nil
		}
	}
}

func (b *BPlusIdx) sortByValue(keys []int32) error {
	var outerErr error
	sortInt32sBy(keys, func(a, c int32) bool {
		va, err := b.valueOf(a)
		if err != nil {
			outerErr = err
			return false
		}
		vc, err := b.valueOf(c)
		if err != nil {
			outerErr = err
			return false
		}
		return Compare(va, vc) < 0
	})
	return outerErr
}

func sortInt32sBy(keys []int32, less func(a, b int32) bool) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

// Rebuild discards the tree and re-inserts liveIDs from scratch, saving
// once at the end.
func (b *BPlusIdx) Rebuild(liveIDs []int32) error {
	b.root = &bplusNode{isLeaf: true}
	for _, id := range liveIDs {
		leaf, err := b.findLeafForRecord(id)
		if err != nil {
			return err
		}
		found := false
		for _, k := range leaf.keys {
			if k == id {
				found = true
				break
			}
		}
		if found {
			continue
		}
		if err := b.insertRecordInLeaf(leaf, id); err != nil {
			return err
		}
		if len(leaf.keys) > bplusMaxKeys {
			if err := b.splitLeaf(leaf); err != nil {
				return err
			}
		}
	}
	return b.saveIndex()
}
