package tree

import (
	"bytes"
	"sort"

	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/pool"
)

// entry is a decoded (key, value) pair together with the slot index it
// currently occupies in its persistent leaf, and the hash used to find
// it quickly on the next lookup.
type entry struct {
	hash  byte
	key   []byte
	value []byte
	index int // slot index within the leaf; -1 once detached from one
}

// scanLeaf decodes every occupied slot of the persistent leaf at ref,
// in slot order (NOT key order).
func scanLeaf(p *pool.Pool, ref pool.Ref) []entry {
	entries := make([]entry, 0, leaf.L)
	for i := 0; i < leaf.L; i++ {
		s := leaf.ReadSlot(p, ref, i)
		if s.Empty() {
			continue
		}
		entries = append(entries, entry{
			hash:  s.Hash,
			key:   cloneBytes(leaf.Key(p, s)),
			value: cloneBytes(leaf.Value(p, s)),
			index: i,
		})
	}
	return entries
}

// scanLeafSorted decodes every occupied slot and returns them ordered
// by key, ascending.
func scanLeafSorted(p *pool.Pool, ref pool.Ref) []entry {
	entries := scanLeaf(p, ref)
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
	return entries
}

// findInLeaf scans the persistent leaf at ref for key, using the
// Pearson hash to skip slots that cannot possibly match.
func findInLeaf(p *pool.Pool, ref pool.Ref, hash byte, key []byte) (slotIndex int, found bool) {
	for i := 0; i < leaf.L; i++ {
		s := leaf.ReadSlot(p, ref, i)
		if s.Empty() || s.Hash != hash {
			continue
		}
		if bytes.Equal(leaf.Key(p, s), key) {
			return i, true
		}
	}
	return 0, false
}

// findEmptySlot returns the index of the first empty slot in the leaf
// at ref, if any.
func findEmptySlot(p *pool.Pool, ref pool.Ref) (slotIndex int, ok bool) {
	for i := 0; i < leaf.L; i++ {
		if leaf.ReadSlot(p, ref, i).Empty() {
			return i, true
		}
	}
	return 0, false
}

// leafMinMax rescans every slot of the persistent leaf at ref and
// returns the smallest and largest key currently stored there. ok is
// false iff the leaf holds no entries.
func leafMinMax(p *pool.Pool, ref pool.Ref) (min, max []byte, ok bool) {
	entries := scanLeafSorted(p, ref)
	if len(entries) == 0 {
		return nil, nil, false
	}
	return entries[0].key, entries[len(entries)-1].key, true
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
