package tree

import (
	"bytes"
	"sort"

	"github.com/nvmtree/nvmtree/pkg/index"
	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/pool"
)

// leafSplitMidpoint is the index at which a full leaf's L existing
// entries plus the one new entry being inserted (L+1 total) are
// divided: entries[:leafSplitMidpoint] stay in the original leaf,
// entries[leafSplitMidpoint:] move to the new one.
const leafSplitMidpoint = (leaf.L + 1) / 2

// innerSplitMidpoint is the analogous index for an overflowing inner
// node's I+1 separator keys: the key at this index is promoted to the
// parent, keys before it stay left, keys after it move right.
const innerSplitMidpoint = (index.I + 1) / 2

// splitAndInsert implements LeafSplitFull: the leaf at leafID is full,
// so its L entries plus the new (key, value) are redistributed across
// it and a sibling leaf acquired via acquireLeaf (reused from the
// preallocated pool, or freshly allocated and prepended to the
// persistent chain head — never spliced next to oldRef, since the
// chain's physical order carries no ordering meaning), and the split
// is propagated up through InnerUpdateAfterSplit.
func (e *Engine) splitAndInsert(leafID index.NodeID, hash byte, key, value []byte) error {
	node := e.arena.Get(leafID)
	oldRef := node.LeafRef

	existing := scanLeaf(e.pool, oldRef)
	all := make([]entry, 0, len(existing)+1)
	all = append(all, existing...)
	all = append(all, entry{hash: hash, key: cloneBytes(key), value: cloneBytes(value), index: -1})
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].key, all[j].key) < 0 })

	left := all[:leafSplitMidpoint]
	right := all[leafSplitMidpoint:]

	var newRef pool.Ref
	err := e.pool.Transaction(func(txn *pool.Txn) error {
		for i := 0; i < leaf.L; i++ {
			if err := leaf.ClearSlot(txn, e.pool, oldRef, i); err != nil {
				return err
			}
		}
		for i, en := range left {
			if err := leaf.SetSlot(txn, e.pool, oldRef, i, en.hash, en.key, en.value); err != nil {
				return err
			}
		}

		r, err := e.acquireLeaf(txn)
		if err != nil {
			return err
		}
		newRef = r
		for i, en := range right {
			if err := leaf.SetSlot(txn, e.pool, newRef, i, en.hash, en.key, en.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	node.MinKey, node.MaxKey = left[0].key, left[len(left)-1].key
	newLeafID := e.arena.NewLeaf(newRef, right[0].key, right[len(right)-1].key)

	sepKey := left[len(left)-1].key
	e.insertIntoParent(leafID, newLeafID, sepKey, node.Parent)
	return nil
}

// insertIntoParent implements InnerUpdateAfterSplit: leftChild keeps
// its existing position, rightChild is inserted immediately after it
// under a separator of sepKey, and if that overflows the inner node's
// capacity the inner node itself splits and the promotion recurses
// upward. parentID is leftChild's parent before this call (NilNode if
// leftChild was the root).
func (e *Engine) insertIntoParent(leftChild, rightChild index.NodeID, sepKey []byte, parentID index.NodeID) {
	if parentID == index.NilNode {
		newRoot := e.arena.NewInner([][]byte{cloneBytes(sepKey)}, []index.NodeID{leftChild, rightChild})
		e.arena.SetRoot(newRoot)
		return
	}

	parent := e.arena.Get(parentID)
	pos := childPosition(parent.Children, leftChild)

	keys := insertAt(parent.Keys, pos, cloneBytes(sepKey))
	children := insertChildAt(parent.Children, pos+1, rightChild)
	e.arena.Get(rightChild).Parent = parentID
	parent.Keys, parent.Children = keys, children

	if len(parent.Keys) <= index.I {
		return
	}

	e.splitInner(parentID)
}

// splitInner divides an overflowing inner node (I+1 keys, I+2
// children) into two nodes of capacity I, promoting the middle key to
// the grandparent.
func (e *Engine) splitInner(nodeID index.NodeID) {
	node := e.arena.Get(nodeID)
	grandparentID := node.Parent

	keys := node.Keys
	children := node.Children

	leftKeys := keys[:innerSplitMidpoint]
	promoted := keys[innerSplitMidpoint]
	rightKeys := keys[innerSplitMidpoint+1:]

	leftChildren := children[:innerSplitMidpoint+1]
	rightChildren := children[innerSplitMidpoint+1:]

	node.Keys = leftKeys
	node.Children = leftChildren
	// Children in leftChildren already point their Parent at nodeID.

	rightID := e.arena.NewInner(rightKeys, rightChildren)
	e.arena.Get(rightID).Parent = grandparentID

	e.insertIntoParent(nodeID, rightID, promoted, grandparentID)
}

// childPosition returns the index of target within children.
func childPosition(children []index.NodeID, target index.NodeID) int {
	for i, c := range children {
		if c == target {
			return i
		}
	}
	return -1
}

func insertAt(keys [][]byte, pos int, key []byte) [][]byte {
	out := make([][]byte, 0, len(keys)+1)
	out = append(out, keys[:pos]...)
	out = append(out, key)
	out = append(out, keys[pos:]...)
	return out
}

func insertChildAt(children []index.NodeID, pos int, child index.NodeID) []index.NodeID {
	out := make([]index.NodeID, 0, len(children)+1)
	out = append(out, children[:pos]...)
	out = append(out, child)
	out = append(out, children[pos:]...)
	return out
}
