// Package tree implements TreeEngine: the hybrid persistent/volatile
// B+-tree that sits on top of pkg/pool, pkg/leaf, and pkg/index. Every
// mutating operation is durable the moment it returns (it runs inside
// one pool.Txn); every lookup is served by the volatile index so it
// never pays for a persistent-memory round trip it doesn't need.
package tree

import (
	"sync"
	"time"

	"github.com/nvmtree/nvmtree/pkg/common/log"
	"github.com/nvmtree/nvmtree/pkg/index"
	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/pool"
	"github.com/nvmtree/nvmtree/pkg/stats"
	"github.com/nvmtree/nvmtree/pkg/status"
)

// Engine is the tree-level operation surface: it owns the volatile
// index and drives the persistent pool underneath it. Engine is safe
// for concurrent use; mutations take the write side of mu, lookups and
// range scans take the read side, and pool.Transaction supplies the
// crash-consistency guarantee underneath that.
type Engine struct {
	pool   *pool.Pool
	arena  *index.Arena
	logger log.Logger
	stats  stats.Collector

	mu       sync.RWMutex
	prealloc []pool.Ref
}

// New wraps an already-open, already-recovered pool and its rebuilt
// volatile arena into an Engine. The caller (the engine facade, using
// the arena pkg/recovery rebuilt) is responsible for producing both.
func New(p *pool.Pool, arena *index.Arena, logger log.Logger, collector stats.Collector) *Engine {
	if logger == nil {
		logger = log.NewStandardLogger()
	}
	if collector == nil {
		collector = stats.NewAtomicCollector()
	}
	return &Engine{pool: p, arena: arena, logger: logger.WithField("component", "tree"), stats: collector}
}

// SeedPreallocated hands the engine a pool of already-allocated, empty
// persistent leaves (recovery's PreallocatedLeafPool) to draw on before
// bump-allocating a fresh one. It replaces whatever pool was seeded
// before, which is exactly right after a defrag pass: defrag changes
// which leaves are empty, so the prealloc set recovery just rebuilt is
// the only one still valid.
func (e *Engine) SeedPreallocated(refs []pool.Ref) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prealloc = refs
}

// acquireLeaf hands back a persistent leaf ready to receive slots: one
// popped from the preallocated pool if it is non-empty, since that
// leaf already sits in the chain and needs no chain mutation, or
// otherwise a freshly bump-allocated leaf prepended to the chain head,
// mirroring pmemkv's Put/LeafSplitFull allocation pattern.
func (e *Engine) acquireLeaf(txn *pool.Txn) (pool.Ref, error) {
	if n := len(e.prealloc); n > 0 {
		ref := e.prealloc[n-1]
		e.prealloc = e.prealloc[:n-1]
		return ref, nil
	}

	ref, err := leaf.New(txn)
	if err != nil {
		return 0, err
	}
	head, err := e.pool.Root()
	if err != nil {
		return 0, err
	}
	if err := leaf.SetNext(txn, ref, head); err != nil {
		return 0, err
	}
	if err := txn.SetHeadLeaf(ref); err != nil {
		return 0, err
	}
	return ref, nil
}

// Reindex atomically replaces the volatile index with arena. Callers
// that relocate entries between persistent leaves outside of Put/Remove
// (defrag's cross-leaf relocation, most notably) invalidate every
// cached routing decision in the old index and must rebuild it via
// pkg/recovery before calling this.
func (e *Engine) Reindex(arena *index.Arena) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arena = arena
}

// Get returns the value stored for key, or status.NotFound if no such
// key exists.
func (e *Engine) Get(key []byte) ([]byte, error) {
	start := time.Now()
	defer func() { e.stats.TrackOperationWithLatency(stats.OpGet, uint64(time.Since(start).Nanoseconds())) }()

	e.mu.RLock()
	defer e.mu.RUnlock()

	leafID := e.arena.DescendTo(key)
	if leafID == index.NilNode {
		return nil, status.New(status.NotFound, "key not found")
	}

	node := e.arena.Get(leafID)
	hash := leaf.HashOf(key)
	idx, found := findInLeaf(e.pool, node.LeafRef, hash, key)
	if !found {
		return nil, status.New(status.NotFound, "key not found")
	}

	s := leaf.ReadSlot(e.pool, node.LeafRef, idx)
	return cloneBytes(leaf.Value(e.pool, s)), nil
}

// Exists reports whether key is present.
func (e *Engine) Exists(key []byte) bool {
	e.stats.TrackOperation(stats.OpExists)

	e.mu.RLock()
	defer e.mu.RUnlock()

	leafID := e.arena.DescendTo(key)
	if leafID == index.NilNode {
		return false
	}
	node := e.arena.Get(leafID)
	_, found := findInLeaf(e.pool, node.LeafRef, leaf.HashOf(key), key)
	return found
}

// Put inserts or overwrites the value stored for key.
func (e *Engine) Put(key, value []byte) error {
	start := time.Now()
	defer func() { e.stats.TrackOperationWithLatency(stats.OpPut, uint64(time.Since(start).Nanoseconds())) }()
	e.stats.TrackBytes(true, uint64(len(key)+len(value)))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.arena.Root() == index.NilNode {
		return e.putFirstLeaf(key, value)
	}

	leafID := e.arena.DescendTo(key)
	node := e.arena.Get(leafID)
	hash := leaf.HashOf(key)

	if idx, found := findInLeaf(e.pool, node.LeafRef, hash, key); found {
		return e.pool.Transaction(func(txn *pool.Txn) error {
			return leaf.SetSlot(txn, e.pool, node.LeafRef, idx, hash, key, value)
		})
	}

	if idx, ok := findEmptySlot(e.pool, node.LeafRef); ok {
		if err := e.pool.Transaction(func(txn *pool.Txn) error {
			return leaf.SetSlot(txn, e.pool, node.LeafRef, idx, hash, key, value)
		}); err != nil {
			return err
		}
		e.refreshLeafBounds(leafID)
		return nil
	}

	return e.splitAndInsert(leafID, hash, key, value)
}

// putFirstLeaf handles the very first Put into an empty tree: there is
// no volatile index yet, so one leaf is created and becomes both the
// persistent chain head and the volatile root.
func (e *Engine) putFirstLeaf(key, value []byte) error {
	var ref pool.Ref
	hash := leaf.HashOf(key)
	err := e.pool.Transaction(func(txn *pool.Txn) error {
		r, err := e.acquireLeaf(txn)
		if err != nil {
			return err
		}
		ref = r
		return leaf.SetSlot(txn, e.pool, ref, 0, hash, key, value)
	})
	if err != nil {
		return err
	}

	leafID := e.arena.NewLeaf(ref, cloneBytes(key), cloneBytes(key))
	e.arena.SetRoot(leafID)
	return nil
}

// Remove deletes key. A missing key is not an error: Remove is
// idempotent, matching stree's LeafSearch-then-return-OK-if-absent
// behavior.
func (e *Engine) Remove(key []byte) error {
	start := time.Now()
	defer func() { e.stats.TrackOperationWithLatency(stats.OpDelete, uint64(time.Since(start).Nanoseconds())) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	leafID := e.arena.DescendTo(key)
	if leafID == index.NilNode {
		return nil
	}
	node := e.arena.Get(leafID)
	idx, found := findInLeaf(e.pool, node.LeafRef, leaf.HashOf(key), key)
	if !found {
		return nil
	}

	if err := e.pool.Transaction(func(txn *pool.Txn) error {
		return leaf.ClearSlot(txn, e.pool, node.LeafRef, idx)
	}); err != nil {
		return err
	}

	e.refreshLeafBounds(leafID)
	return nil
}

// refreshLeafBounds rescans a volatile leaf node's backing persistent
// leaf and updates its cached min/max keys. Called after any mutation
// that does not already know the new bounds outright.
func (e *Engine) refreshLeafBounds(leafID index.NodeID) {
	node := e.arena.Get(leafID)
	min, max, ok := leafMinMax(e.pool, node.LeafRef)
	if !ok {
		node.MinKey, node.MaxKey = nil, nil
		return
	}
	node.MinKey, node.MaxKey = min, max
}
