package index

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jochuuuu/reldb/internal/types"
)

const (
	avlHeaderSize = 8 // root int32, freeHead int32
	avlNodeSize   = 20
	avlNodeInUse  = -2
)

// AvlIdx is a disk-resident AVL tree keyed by the fetched column value,
// storing record ids as node keys. Node 0 means nil; freed nodes are
// recycled through an in-file free list threaded via each node's `next`
// field (in-use nodes always carry next == avlNodeInUse).
type AvlIdx struct {
	path     string
	fetch    ValueFetcher
	isKey    bool
	dataType types.DataType
}

type avlNode struct {
	key    int32
	left   int32
	right  int32
	height int32
	next   int32
}

// OpenAVL opens or creates an AvlIdx backed by path.
func OpenAVL(path string, dataType types.DataType, isKey bool, fetch ValueFetcher) (*AvlIdx, error) {
	a := &AvlIdx{path: path, fetch: fetch, isKey: isKey, dataType: dataType}
	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		if err := a.writeHeader(0, -1); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *AvlIdx) readHeader() (root, freeHead int32, err error) {
	f, err := os.Open(a.path)
	if err != nil {
		return 0, 0, fmt.Errorf("avl: open %s: %w", a.path, err)
	}
	defer f.Close()
	buf := make([]byte, avlHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, 0, fmt.Errorf("avl: read header: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[0:4])), int32(binary.LittleEndian.Uint32(buf[4:8])), nil
}

func (a *AvlIdx) writeHeader(root, freeHead int32) error {
	f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("avl: open %s: %w", a.path, err)
	}
	defer f.Close()
	buf := make([]byte, avlHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(root))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(freeHead))
	_, err = f.WriteAt(buf, 0)
	return err
}

func (a *AvlIdx) nodeOffset(index int32) int64 {
	return avlHeaderSize + int64(index-1)*avlNodeSize
}

func (a *AvlIdx) readNode(index int32) (avlNode, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return avlNode{}, fmt.Errorf("avl: open %s: %w", a.path, err)
	}
	defer f.Close()
	buf := make([]byte, avlNodeSize)
	if _, err := f.ReadAt(buf, a.nodeOffset(index)); err != nil {
		return avlNode{}, fmt.Errorf("avl: read node %d: %w", index, err)
	}
	return avlNode{
		key:    int32(binary.LittleEndian.Uint32(buf[0:4])),
		left:   int32(binary.LittleEndian.Uint32(buf[4:8])),
		right:  int32(binary.LittleEndian.Uint32(buf[8:12])),
		height: int32(binary.LittleEndian.Uint32(buf[12:16])),
		next:   int32(binary.LittleEndian.Uint32(buf[16:20])),
	}, nil
}

func (a *AvlIdx) writeNode(index int32, n avlNode) error {
	f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("avl: open %s: %w", a.path, err)
	}
	defer f.Close()
	buf := make([]byte, avlNodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n.key))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n.left))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n.right))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(n.height))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(n.next))
	_, err = f.WriteAt(buf, a.nodeOffset(index))
	return err
}

func (a *AvlIdx) height(index int32) (int32, error) {
	if index == 0 {
		return 0, nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return 0, err
	}
	return n.height, nil
}

func (a *AvlIdx) updateHeight(index int32) error {
	if index == 0 {
		return nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return err
	}
	lh, err := a.height(n.left)
	if err != nil {
		return err
	}
	rh, err := a.height(n.right)
	if err != nil {
		return err
	}
	if lh > rh {
		n.height = 1 + lh
	} else {
		n.height = 1 + rh
	}
	return a.writeNode(index, n)
}

func (a *AvlIdx) balanceFactor(index int32) (int32, error) {
	if index == 0 {
		return 0, nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return 0, err
	}
	lh, err := a.height(n.left)
	if err != nil {
		return 0, err
	}
	rh, err := a.height(n.right)
	if err != nil {
		return 0, err
	}
	return lh - rh, nil
}

func (a *AvlIdx) createNode(key int32) (int32, error) {
	root, freeHead, err := a.readHeader()
	if err != nil {
		return 0, err
	}
	if freeHead != -1 {
		freeNode, err := a.readNode(freeHead)
		if err != nil {
			return 0, err
		}
		if err := a.writeHeader(root, freeNode.next); err != nil {
			return 0, err
		}
		index := freeHead
		if err := a.writeNode(index, avlNode{key: key, left: 0, right: 0, height: 1, next: avlNodeInUse}); err != nil {
			return 0, err
		}
		return index, nil
	}

	f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return 0, fmt.Errorf("avl: open %s: %w", a.path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	index := int32((info.Size()-avlHeaderSize)/avlNodeSize) + 1
	buf := make([]byte, avlNodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(key))
	binary.LittleEndian.PutUint32(buf[12:16], 1)
	inUse := int32(avlNodeInUse)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(inUse))
	if _, err := f.WriteAt(buf, a.nodeOffset(index)); err != nil {
		return 0, err
	}
	return index, nil
}

func (a *AvlIdx) addToFreeList(index int32) error {
	root, freeHead, err := a.readHeader()
	if err != nil {
		return err
	}
	if err := a.writeNode(index, avlNode{next: freeHead}); err != nil {
		return err
	}
	return a.writeHeader(root, index)
}

func (a *AvlIdx) rotateRight(yIndex int32) (int32, error) {
	y, err := a.readNode(yIndex)
	if err != nil {
		return 0, err
	}
	xIndex := y.left
	if xIndex == 0 {
		return yIndex, nil
	}
	x, err := a.readNode(xIndex)
	if err != nil {
		return 0, err
	}
	t2 := x.right
	x.right = yIndex
	y.left = t2
	if err := a.writeNode(yIndex, y); err != nil {
		return 0, err
	}
	if err := a.writeNode(xIndex, x); err != nil {
		return 0, err
	}
	if err := a.updateHeight(yIndex); err != nil {
		return 0, err
	}
	if err := a.updateHeight(xIndex); err != nil {
		return 0, err
	}
	return xIndex, nil
}

func (a *AvlIdx) rotateLeft(xIndex int32) (int32, error) {
	x, err := a.readNode(xIndex)
	if err != nil {
		return 0, err
	}
	yIndex := x.right
	if yIndex == 0 {
		return xIndex, nil
	}
	y, err := a.readNode(yIndex)
	if err != nil {
		return 0, err
	}
	t2 := y.left
	y.left = xIndex
	x.right = t2
	if err := a.writeNode(xIndex, x); err != nil {
		return 0, err
	}
	if err := a.writeNode(yIndex, y); err != nil {
		return 0, err
	}
	if err := a.updateHeight(xIndex); err != nil {
		return 0, err
	}
	if err := a.updateHeight(yIndex); err != nil {
		return 0, err
	}
	return yIndex, nil
}

func (a *AvlIdx) rebalance(index int32) (int32, error) {
	if index == 0 {
		return 0, nil
	}
	if err := a.updateHeight(index); err != nil {
		return 0, err
	}
	balance, err := a.balanceFactor(index)
	if err != nil {
		return 0, err
	}
	n, err := a.readNode(index)
	if err != nil {
		return 0, err
	}

	if balance > 1 {
		lbf, err := a.balanceFactor(n.left)
		if err != nil {
			return 0, err
		}
		if n.left != 0 && lbf >= 0 {
			return a.rotateRight(index)
		}
		if n.left != 0 {
			newLeft, err := a.rotateLeft(n.left)
			if err != nil {
				return 0, err
			}
			n.left = newLeft
			if err := a.writeNode(index, n); err != nil {
				return 0, err
			}
			return a.rotateRight(index)
		}
	}

	if balance < -1 {
		rbf, err := a.balanceFactor(n.right)
		if err != nil {
			return 0, err
		}
		if n.right != 0 && rbf <= 0 {
			return a.rotateLeft(index)
		}
		if n.right != 0 {
			newRight, err := a.rotateRight(n.right)
			if err != nil {
				return 0, err
			}
			n.right = newRight
			if err := a.writeNode(index, n); err != nil {
				return 0, err
			}
			return a.rotateLeft(index)
		}
	}

	return index, nil
}

func (a *AvlIdx) valueOf(id int32) (any, error) {
	v, live, err := a.fetch(id)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, fmt.Errorf("avl: record %d is not live", id)
	}
	return v, nil
}

// Insert adds id as a new node, keyed by its fetched column value.
// Duplicates (is_key false) always descend to the right subtree.
func (a *AvlIdx) Insert(id int32) error {
	root, _, err := a.readHeader()
	if err != nil {
		return err
	}

	if a.isKey && root != 0 {
		value, err := a.valueOf(id)
		if err != nil {
			return err
		}
		results, err := a.Search(value)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			return ErrDuplicateKey
		}
	}

	if root == 0 {
		newRoot, err := a.createNode(id)
		if err != nil {
			return err
		}
		_, freeHead, err := a.readHeader()
		if err != nil {
			return err
		}
		return a.writeHeader(newRoot, freeHead)
	}

	newRoot, err := a.insertRec(id, root)
	if err != nil {
		return err
	}
	_, freeHead, err := a.readHeader()
	if err != nil {
		return err
	}
	return a.writeHeader(newRoot, freeHead)
}

func (a *AvlIdx) insertRec(id, rootIndex int32) (int32, error) {
	if rootIndex == 0 {
		return a.createNode(id)
	}
	n, err := a.readNode(rootIndex)
	if err != nil {
		return 0, err
	}
	cmp, err := a.compareKeys(id, n.key)
	if err != nil {
		return 0, err
	}
	switch {
	case cmp < 0:
		newLeft, err := a.insertRec(id, n.left)
		if err != nil {
			return 0, err
		}
		n.left = newLeft
		if err := a.writeNode(rootIndex, n); err != nil {
			return 0, err
		}
	case cmp > 0:
		newRight, err := a.insertRec(id, n.right)
		if err != nil {
			return 0, err
		}
		n.right = newRight
		if err := a.writeNode(rootIndex, n); err != nil {
			return 0, err
		}
	default:
		if a.isKey {
			return rootIndex, nil
		}
		newRight, err := a.insertRec(id, n.right)
		if err != nil {
			return 0, err
		}
		n.right = newRight
		if err := a.writeNode(rootIndex, n); err != nil {
			return 0, err
		}
	}
	return a.rebalance(rootIndex)
}

func (a *AvlIdx) compareKeys(id1, id2 int32) (int, error) {
	v1, err := a.valueOf(id1)
	if err != nil {
		return 0, err
	}
	v2, err := a.valueOf(id2)
	if err != nil {
		return 0, err
	}
	return Compare(v1, v2), nil
}

func (a *AvlIdx) minValueNode(index int32) (int32, error) {
	current := index
	for {
		n, err := a.readNode(current)
		if err != nil {
			return 0, err
		}
		if n.left == 0 {
			return current, nil
		}
		current = n.left
	}
}

// Search returns every id whose fetched value equals value. When the index
// allows duplicates, both subtrees are explored past an equal node since
// duplicates may live on either side.
func (a *AvlIdx) Search(value any) ([]int32, error) {
	root, _, err := a.readHeader()
	if err != nil {
		return nil, err
	}
	var results []int32
	if err := a.searchRec(root, value, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *AvlIdx) searchRec(index int32, value any, results *[]int32) error {
	if index == 0 {
		return nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return err
	}
	current, err := a.valueOf(n.key)
	if err != nil {
		return err
	}
	cmp := Compare(value, current)
	switch {
	case cmp < 0:
		return a.searchRec(n.left, value, results)
	case cmp > 0:
		return a.searchRec(n.right, value, results)
	default:
		*results = append(*results, n.key)
		if !a.isKey {
			if err := a.searchRec(n.left, value, results); err != nil {
				return err
			}
			if err := a.searchRec(n.right, value, results); err != nil {
				return err
			}
		}
		return nil
	}
}

// RangeSearch returns every id whose fetched value falls in [lo, hi]. POINT
// ranges explore both subtrees unconditionally, since distance-to-origin
// ordering does not admit the usual one-sided pruning for a 2-D box.
func (a *AvlIdx) RangeSearch(lo, hi any) ([]int32, error) {
	root, _, err := a.readHeader()
	if err != nil {
		return nil, err
	}
	var results []int32
	if err := a.rangeSearchRec(root, lo, hi, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *AvlIdx) rangeSearchRec(index int32, lo, hi any, results *[]int32) error {
	if index == 0 {
		return nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return err
	}
	current, err := a.valueOf(n.key)
	if err != nil {
		return err
	}

	loPoint, loIsPoint := lo.(types.Point)
	hiPoint, hiIsPoint := hi.(types.Point)
	curPoint, curIsPoint := current.(types.Point)
	if loIsPoint && hiIsPoint && curIsPoint {
		if err := a.rangeSearchRec(n.left, lo, hi, results); err != nil {
			return err
		}
		if curPoint.InRange(loPoint, hiPoint) {
			*results = append(*results, n.key)
		}
		return a.rangeSearchRec(n.right, lo, hi, results)
	}

	if Compare(lo, current) < 0 {
		if err := a.rangeSearchRec(n.left, lo, hi, results); err != nil {
			return err
		}
	}
	if Compare(lo, current) <= 0 && Compare(current, hi) <= 0 {
		*results = append(*results, n.key)
	}
	if Compare(current, hi) <= 0 {
		if err := a.rangeSearchRec(n.right, lo, hi, results); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the node holding id from the tree.
func (a *AvlIdx) Delete(id int32) (bool, error) {
	root, _, err := a.readHeader()
	if err != nil {
		return false, err
	}
	if root == 0 {
		return false, nil
	}

	value, err := a.valueOf(id)
	if err != nil {
		return false, err
	}

	found, err := a.searchRecordInSubtree(root, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	newRoot, err := a.deleteSpecificRec(root, id, value)
	if err != nil {
		return false, err
	}
	_, freeHead, err := a.readHeader()
	if err != nil {
		return false, err
	}
	if err := a.writeHeader(newRoot, freeHead); err != nil {
		return false, err
	}
	return true, nil
}

func (a *AvlIdx) searchRecordInSubtree(index, targetID int32) (bool, error) {
	if index == 0 {
		return false, nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return false, err
	}
	if n.key == targetID {
		return true, nil
	}
	foundLeft, err := a.searchRecordInSubtree(n.left, targetID)
	if err != nil {
		return false, err
	}
	if foundLeft {
		return true, nil
	}
	return a.searchRecordInSubtree(n.right, targetID)
}

func (a *AvlIdx) deleteSpecificRec(index, targetID int32, targetValue any) (int32, error) {
	if index == 0 {
		return 0, nil
	}
	n, err := a.readNode(index)
	if err != nil {
		return 0, err
	}
	current, err := a.valueOf(n.key)
	if err != nil {
		return 0, err
	}

	if n.key == targetID && Equal(current, targetValue) {
		return a.removeNode(index)
	}

	cmp := Compare(targetValue, current)
	switch {
	case cmp < 0:
		newLeft, err := a.deleteSpecificRec(n.left, targetID, targetValue)
		if err != nil {
			return 0, err
		}
		n.left = newLeft
		if err := a.writeNode(index, n); err != nil {
			return 0, err
		}
	case cmp > 0:
		newRight, err := a.deleteSpecificRec(n.right, targetID, targetValue)
		if err != nil {
			return 0, err
		}
		n.right = newRight
		if err := a.writeNode(index, n); err != nil {
			return 0, err
		}
	default:
		newLeft, err := a.deleteSpecificRec(n.left, targetID, targetValue)
		if err != nil {
			return 0, err
		}
		n.left = newLeft
		newRight, err := a.deleteSpecificRec(n.right, targetID, targetValue)
		if err != nil {
			return 0, err
		}
		n.right = newRight
		if err := a.writeNode(index, n); err != nil {
			return 0, err
		}
	}
	return a.rebalance(index)
}

func (a *AvlIdx) removeNode(index int32) (int32, error) {
	n, err := a.readNode(index)
	if err != nil {
		return 0, err
	}

	if n.left == 0 && n.right == 0 {
		return 0, a.addToFreeList(index)
	}
	if n.left == 0 {
		newRoot := n.right
		return newRoot, a.addToFreeList(index)
	}
	if n.right == 0 {
		newRoot := n.left
		return newRoot, a.addToFreeList(index)
	}

	successorIndex, err := a.minValueNode(n.right)
	if err != nil {
		return 0, err
	}
	successor, err := a.readNode(successorIndex)
	if err != nil {
		return 0, err
	}
	n.key = successor.key
	if err := a.writeNode(index, n); err != nil {
		return 0, err
	}
	successorValue, err := a.valueOf(successor.key)
	if err != nil {
		return 0, err
	}
	newRight, err := a.deleteSpecificRec(n.right, successor.key, successorValue)
	if err != nil {
		return 0, err
	}
	n.right = newRight
	if err := a.writeNode(index, n); err != nil {
		return 0, err
	}
	return a.rebalance(index)
}

// Rebuild discards every node and re-inserts liveIDs from scratch.
func (a *AvlIdx) Rebuild(liveIDs []int32) error {
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("avl: remove %s: %w", a.path, err)
	}
	if err := a.writeHeader(0, -1); err != nil {
		return err
	}
	for _, id := range liveIDs {
		if err := a.Insert(id); err != nil && err != ErrDuplicateKey {
			return err
		}
	}
	return nil
}
