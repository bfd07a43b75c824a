// Package recovery rebuilds the volatile B+-tree index from the
// persistent leaf chain every time a pool is opened. The persistent
// leaves are the only durable state; the inner-node spine above them
// is pure in-memory scaffolding that recovery reconstructs by folding
// the leaves, in ascending max-key order, through the same
// InnerUpdateAfterSplit logic the tree uses at runtime.
package recovery

import (
	"bytes"
	"sort"

	"github.com/nvmtree/nvmtree/pkg/common/log"
	"github.com/nvmtree/nvmtree/pkg/index"
	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/pool"
	"github.com/nvmtree/nvmtree/pkg/stats"
)

// PreallocatedLeafPool tracks persistent leaves that recovery found
// completely empty: they are still spliced into the chain (so defrag
// and future writers can find and reuse them) but carry no volatile
// leaf node of their own, since there is nothing to route to.
type PreallocatedLeafPool struct {
	Refs []pool.Ref
}

// leafInfo is the scratch bookkeeping recovery uses while walking the
// persistent chain, before the volatile arena exists.
type leafInfo struct {
	ref        pool.Ref
	minKey     []byte
	maxKey     []byte
	entryCount int
}

// Result is everything recovery produces: the rebuilt volatile arena,
// the set of leaves with no live entries, and counts for stats.
type Result struct {
	Arena       *index.Arena
	Preallocated PreallocatedLeafPool
	TotalLeaves int
	EmptyLeaves int
	Entries     int
}

// Run walks p's persistent leaf chain end to end, classifies every
// leaf as live or empty, and folds the live leaves into a freshly
// built volatile index ordered by ascending max key. It is the only
// place outside pkg/tree that constructs an index.Arena.
func Run(p *pool.Pool, logger log.Logger, collector stats.Collector) (*Result, error) {
	if logger == nil {
		logger = log.NewStandardLogger()
	}
	if collector == nil {
		collector = stats.NewAtomicCollector()
	}
	logger = logger.WithField("component", "recovery")

	start := collector.StartRecovery()

	root, err := p.Root()
	if err != nil {
		return nil, err
	}

	var live []leafInfo
	var empty PreallocatedLeafPool
	totalEntries := 0
	totalLeaves := 0

	for ref := root; !ref.IsNil(); ref = leaf.Next(p, ref) {
		totalLeaves++
		entries := scanLeafKeys(p, ref)
		if len(entries) == 0 {
			empty.Refs = append(empty.Refs, ref)
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i], entries[j]) < 0 })
		live = append(live, leafInfo{
			ref:        ref,
			minKey:     entries[0],
			maxKey:     entries[len(entries)-1],
			entryCount: len(entries),
		})
		totalEntries += len(entries)
	}

	// Ties on max key (two leaves whose largest key is identical should
	// not be possible under normal operation, but a crash mid-split
	// could in principle leave a transient duplicate) are broken by
	// keeping the earlier-seen leaf first, so sort.Slice's stability
	// requirement is satisfied by SliceStable rather than Slice.
	sort.SliceStable(live, func(i, j int) bool {
		return bytes.Compare(live[i].maxKey, live[j].maxKey) < 0
	})

	arena := index.NewArena()
	buildIndex(arena, live)

	logger.Info("recovery complete, leaves=%d empty=%d entries=%d", totalLeaves, len(empty.Refs), totalEntries)

	collector.TrackLeafStats(uint64(totalLeaves), uint64(len(empty.Refs)), uint64(len(empty.Refs)))
	collector.TrackPoolSize(uint64(p.Size()))
	collector.FinishRecovery(start, uint64(totalLeaves), uint64(totalEntries), 0)

	return &Result{
		Arena:        arena,
		Preallocated: empty,
		TotalLeaves:  totalLeaves,
		EmptyLeaves:  len(empty.Refs),
		Entries:      totalEntries,
	}, nil
}

// buildIndex folds a list of live leaves, already ordered by ascending
// max key, into arena by repeatedly inserting each leaf where the
// previous one left off and letting the tree's own split-insertion
// logic (mirrored here, since pkg/tree operates on an already-built
// arena) grow the inner-node spine incrementally.
func buildIndex(arena *index.Arena, live []leafInfo) {
	if len(live) == 0 {
		return
	}

	firstID := arena.NewLeaf(live[0].ref, live[0].minKey, live[0].maxKey)
	arena.SetRoot(firstID)

	prevID := firstID
	for i := 1; i < len(live); i++ {
		l := live[i]
		newID := arena.NewLeaf(l.ref, l.minKey, l.maxKey)
		sepKey := arena.Get(prevID).MaxKey
		insertSiblingIntoParent(arena, prevID, newID, sepKey)
		prevID = newID
	}
}

// insertSiblingIntoParent is InnerUpdateAfterSplit specialized to
// recovery's fold: leftChild already has its final position in the
// (possibly still-empty) spine, and rightChild is always a brand new
// node inserted immediately after it.
func insertSiblingIntoParent(arena *index.Arena, leftChild, rightChild index.NodeID, sepKey []byte) {
	parentID := arena.Get(leftChild).Parent
	if parentID == index.NilNode {
		newRoot := arena.NewInner([][]byte{cloneKey(sepKey)}, []index.NodeID{leftChild, rightChild})
		arena.SetRoot(newRoot)
		return
	}

	parent := arena.Get(parentID)
	pos := -1
	for i, c := range parent.Children {
		if c == leftChild {
			pos = i
			break
		}
	}

	keys := make([][]byte, 0, len(parent.Keys)+1)
	keys = append(keys, parent.Keys[:pos]...)
	keys = append(keys, cloneKey(sepKey))
	keys = append(keys, parent.Keys[pos:]...)

	children := make([]index.NodeID, 0, len(parent.Children)+1)
	children = append(children, parent.Children[:pos+1]...)
	children = append(children, rightChild)
	children = append(children, parent.Children[pos+1:]...)

	arena.Get(rightChild).Parent = parentID
	parent.Keys, parent.Children = keys, children

	if len(parent.Keys) <= index.I {
		return
	}

	splitOverflowingInner(arena, parentID)
}

func splitOverflowingInner(arena *index.Arena, nodeID index.NodeID) {
	node := arena.Get(nodeID)
	grandparentID := node.Parent

	mid := (index.I + 1) / 2
	leftKeys := node.Keys[:mid]
	promoted := node.Keys[mid]
	rightKeys := node.Keys[mid+1:]

	leftChildren := node.Children[:mid+1]
	rightChildren := node.Children[mid+1:]

	node.Keys = leftKeys
	node.Children = leftChildren

	rightID := arena.NewInner(rightKeys, rightChildren)
	arena.Get(rightID).Parent = grandparentID

	insertSiblingIntoParent(arena, nodeID, rightID, promoted)
}

func scanLeafKeys(p *pool.Pool, ref pool.Ref) [][]byte {
	var keys [][]byte
	for i := 0; i < leaf.L; i++ {
		s := leaf.ReadSlot(p, ref, i)
		if s.Empty() {
			continue
		}
		keys = append(keys, cloneKey(leaf.Key(p, s)))
	}
	return keys
}

func cloneKey(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
