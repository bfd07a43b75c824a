// Package index implements the volatile B+-tree index: the in-memory
// mirror of the persistent leaf chain that makes lookups logarithmic
// instead of linear. Every VolatileInnerNode and VolatileLeafNode lives
// in a single process-local Arena and is rebuilt from scratch on every
// Open by pkg/recovery; none of it is ever written to the pool.
package index

import (
	"bytes"

	"github.com/nvmtree/nvmtree/pkg/pool"
)

// I is the compile-time fan-out of one inner node: up to I separator
// keys routing to up to I+1 children.
const I = 4

// NodeID addresses a node inside an Arena. The zero value is NOT a
// valid ID (unlike a pointer's nil, 0 is a legitimate arena slot), so
// NilNode is -1.
type NodeID int32

// NilNode is the sentinel "no node" ID.
const NilNode NodeID = -1

// Kind distinguishes a leaf node from an inner node within the tagged
// Node union.
type Kind uint8

const (
	KindLeaf  Kind = 1
	KindInner Kind = 2
)

// Node is the tagged variant backing both volatile node types. Using
// one arena-resident struct for both kinds keeps parent back-links as
// plain NodeID indices instead of pointers, so the whole index can be
// discarded and rebuilt by pkg/recovery without ever touching a GC
// root outside the Arena itself.
type Node struct {
	Kind   Kind
	Parent NodeID

	// Leaf fields (Kind == KindLeaf).
	LeafRef pool.Ref // the persistent leaf this volatile node mirrors
	MinKey  []byte
	MaxKey  []byte

	// Inner fields (Kind == KindInner). len(Keys) == len(Children)-1.
	Keys     [][]byte
	Children []NodeID
}

// Arena owns every Node in the volatile index. Nodes are never freed
// individually; the whole Arena is discarded and rebuilt on recovery.
type Arena struct {
	nodes []Node
	root  NodeID
}

// NewArena returns an empty arena with no root.
func NewArena() *Arena {
	return &Arena{root: NilNode}
}

// Root returns the current root node of the volatile index.
func (a *Arena) Root() NodeID {
	return a.root
}

// SetRoot replaces the arena's root node.
func (a *Arena) SetRoot(id NodeID) {
	a.root = id
}

// Get returns the node at id. The caller must only pass IDs returned
// by this Arena's own allocation methods.
func (a *Arena) Get(id NodeID) *Node {
	return &a.nodes[id]
}

// NewLeaf allocates a volatile leaf node mirroring the persistent leaf
// at ref, with cached min/max keys for fast routing comparisons.
func (a *Arena) NewLeaf(ref pool.Ref, minKey, maxKey []byte) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, Node{
		Kind:    KindLeaf,
		Parent:  NilNode,
		LeafRef: ref,
		MinKey:  minKey,
		MaxKey:  maxKey,
	})
	return id
}

// NewInner allocates a volatile inner node with the given separator
// keys and children, fixing up each child's parent back-link.
func (a *Arena) NewInner(keys [][]byte, children []NodeID) NodeID {
	id := NodeID(len(a.nodes))
	a.nodes = append(a.nodes, Node{
		Kind:     KindInner,
		Parent:   NilNode,
		Keys:     keys,
		Children: children,
	})
	for _, c := range children {
		if c != NilNode {
			a.nodes[c].Parent = id
		}
	}
	return id
}

// Route implements the "<= routes left" descent predicate from
// spec.md §4.4: returns the index of the child subtree that key must
// live under, given an inner node's separator keys.
func Route(keys [][]byte, key []byte) int {
	for i, sep := range keys {
		if bytes.Compare(key, sep) <= 0 {
			return i
		}
	}
	return len(keys)
}

// DescendTo walks from root to the volatile leaf node that key would
// live in, following the "<= routes left" rule at every inner node.
func (a *Arena) DescendTo(key []byte) NodeID {
	id := a.root
	for id != NilNode && a.nodes[id].Kind == KindInner {
		n := &a.nodes[id]
		id = n.Children[Route(n.Keys, key)]
	}
	return id
}

// Reset discards every node, returning the arena to its initial empty
// state. Used by pkg/recovery before a full rebuild.
func (a *Arena) Reset() {
	a.nodes = a.nodes[:0]
	a.root = NilNode
}
