package tree

import (
	"bytes"
	"sort"

	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/stats"
)

// Visit is the callback ordered range scans feed each (key, value)
// pair to, in ascending key order. Returning false stops the scan
// early.
type Visit func(key, value []byte) bool

// allSorted walks the persistent leaf chain from head to tail,
// collecting every entry, then sorts the whole set by key. The chain's
// physical order is just an allocation list (new leaves are always
// prepended to the head, never spliced in key order), so only a
// global sort after collecting everything yields an ascending
// sequence.
func (e *Engine) allSorted() []entry {
	e.stats.TrackOperation(stats.OpScan)

	var out []entry
	ref, err := e.pool.Root()
	if err != nil {
		return nil
	}
	for !ref.IsNil() {
		out = append(out, scanLeaf(e.pool, ref)...)
		ref = leaf.Next(e.pool, ref)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return out
}

// All visits every entry in ascending key order.
func (e *Engine) All(visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if !visit(en.key, en.value) {
			return
		}
	}
}

// Above visits every entry with key strictly greater than bound.
func (e *Engine) Above(bound []byte, visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) > 0 {
			if !visit(en.key, en.value) {
				return
			}
		}
	}
}

// EqualAbove visits every entry with key greater than or equal to bound.
func (e *Engine) EqualAbove(bound []byte, visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) >= 0 {
			if !visit(en.key, en.value) {
				return
			}
		}
	}
}

// Below visits every entry with key strictly less than bound.
func (e *Engine) Below(bound []byte, visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) < 0 {
			if !visit(en.key, en.value) {
				return
			}
		}
	}
}

// EqualBelow visits every entry with key less than or equal to bound.
func (e *Engine) EqualBelow(bound []byte, visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) <= 0 {
			if !visit(en.key, en.value) {
				return
			}
		}
	}
}

// Between visits every entry with lo < key < hi.
func (e *Engine) Between(lo, hi []byte, visit Visit) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, lo) > 0 && bytes.Compare(en.key, hi) < 0 {
			if !visit(en.key, en.value) {
				return
			}
		}
	}
}

// CountAll returns the total number of entries in the tree.
func (e *Engine) CountAll() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.allSorted()))
}

// CountAbove returns the number of entries with key strictly greater
// than bound.
func (e *Engine) CountAbove(bound []byte) uint64 {
	return e.countWhere(func(k []byte) bool { return bytes.Compare(k, bound) > 0 })
}

// CountEqualAbove returns the number of entries with key greater than
// or equal to bound.
func (e *Engine) CountEqualAbove(bound []byte) uint64 {
	return e.countWhere(func(k []byte) bool { return bytes.Compare(k, bound) >= 0 })
}

// CountBelow returns the number of entries with key strictly less than
// bound.
func (e *Engine) CountBelow(bound []byte) uint64 {
	return e.countWhere(func(k []byte) bool { return bytes.Compare(k, bound) < 0 })
}

// CountEqualBelow returns the number of entries with key less than or
// equal to bound.
func (e *Engine) CountEqualBelow(bound []byte) uint64 {
	return e.countWhere(func(k []byte) bool { return bytes.Compare(k, bound) <= 0 })
}

// CountBetween returns the number of entries with lo < key < hi.
func (e *Engine) CountBetween(lo, hi []byte) uint64 {
	return e.countWhere(func(k []byte) bool {
		return bytes.Compare(k, lo) > 0 && bytes.Compare(k, hi) < 0
	})
}

func (e *Engine) countWhere(pred func(key []byte) bool) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var n uint64
	for _, en := range e.allSorted() {
		if pred(en.key) {
			n++
		}
	}
	return n
}

// GetBegin returns the smallest key in the tree, or ok=false if empty.
func (e *Engine) GetBegin() (key, value []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := e.allSorted()
	if len(all) == 0 {
		return nil, nil, false
	}
	return all[0].key, all[0].value, true
}

// LowerBound returns the first entry with key >= bound.
func (e *Engine) LowerBound(bound []byte) (key, value []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) >= 0 {
			return en.key, en.value, true
		}
	}
	return nil, nil, false
}

// UpperBound returns the first entry with key > bound.
func (e *Engine) UpperBound(bound []byte) (key, value []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, en := range e.allSorted() {
		if bytes.Compare(en.key, bound) > 0 {
			return en.key, en.value, true
		}
	}
	return nil, nil, false
}

// GetNext returns the entry immediately following key in ascending
// order, whether or not key itself is present: it is equivalent to
// UpperBound(key), the successor of key's position.
func (e *Engine) GetNext(key []byte) (nextKey, value []byte, ok bool) {
	return e.UpperBound(key)
}

// GetPrev returns the entry immediately preceding key in ascending
// order, whether or not key itself is present: it is the predecessor
// of key's position, i.e. the last entry strictly less than key.
func (e *Engine) GetPrev(key []byte) (prevKey, value []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := e.allSorted()
	for i := len(all) - 1; i >= 0; i-- {
		if bytes.Compare(all[i].key, key) < 0 {
			return all[i].key, all[i].value, true
		}
	}
	return nil, nil, false
}
