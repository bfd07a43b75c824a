// Package defrag implements the engine's defragmentation pass: it
// gathers every live entry from a window of the persistent leaf chain,
// sorts them by key, and repacks them back across that same set of
// leaves in dense, ascending, non-overlapping runs. Leaves left with no
// entries afterward become reclaimable by pkg/recovery's
// PreallocatedLeafPool on the next Open.
package defrag

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/nvmtree/nvmtree/pkg/common/log"
	"github.com/nvmtree/nvmtree/pkg/leaf"
	"github.com/nvmtree/nvmtree/pkg/pool"
)

// relocEntry is one live key-value pair pulled out of a window leaf
// while its home is being decided.
type relocEntry struct {
	hash  byte
	key   []byte
	value []byte
}

// Run repacks the window [startPercent, startPercent+amountPercent) of
// the persistent leaf chain (by leaf position, not byte offset). Every
// live entry across the window is collected, sorted by key, and written
// back into the same window leaves in consecutive chunks of at most
// leaf.L entries each. Because the window's overall key span is
// unchanged and its leaves end up holding disjoint, ascending runs,
// pkg/recovery's rebuild after defrag produces separators that route
// every key to the leaf that actually holds it — cross-leaf relocation
// can no longer leave two leaves with overlapping key ranges.
func Run(p *pool.Pool, startPercent, amountPercent int, logger log.Logger) error {
	if logger == nil {
		logger = log.NewStandardLogger()
	}
	logger = logger.WithField("component", "defrag")

	refs, err := chainRefs(p)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	startIdx := len(refs) * startPercent / 100
	endIdx := startIdx + len(refs)*amountPercent/100
	if endIdx > len(refs) {
		endIdx = len(refs)
	}
	window := refs[startIdx:endIdx]
	if len(window) == 0 {
		return nil
	}

	entries := collectEntries(p, window)
	if len(entries) == 0 {
		logger.Debug("no live entries in window, nothing to do")
		return nil
	}
	if len(entries) > len(window)*leaf.L {
		return fmt.Errorf("defrag: window of %d leaves cannot hold %d entries", len(window), len(entries))
	}

	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	err = p.Transaction(func(txn *pool.Txn) error {
		for _, ref := range window {
			for i := 0; i < leaf.L; i++ {
				if err := leaf.ClearSlot(txn, p, ref, i); err != nil {
					return err
				}
			}
		}
		for i, en := range entries {
			ref := window[i/leaf.L]
			slot := i % leaf.L
			if err := leaf.SetSlot(txn, p, ref, slot, en.hash, en.key, en.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("defrag pass complete, window=%d entries=%d", len(window), len(entries))
	return nil
}

func chainRefs(p *pool.Pool) ([]pool.Ref, error) {
	root, err := p.Root()
	if err != nil {
		return nil, err
	}
	var refs []pool.Ref
	for ref := root; !ref.IsNil(); ref = leaf.Next(p, ref) {
		refs = append(refs, ref)
	}
	return refs, nil
}

// collectEntries reads every live slot out of window's leaves. The
// returned key/value slices are cloned: window's leaves are cleared and
// rewritten before Run returns, which would otherwise invalidate the
// borrowed views pkg/leaf hands back.
func collectEntries(p *pool.Pool, window []pool.Ref) []relocEntry {
	var out []relocEntry
	for _, ref := range window {
		for i := 0; i < leaf.L; i++ {
			s := leaf.ReadSlot(p, ref, i)
			if s.Empty() {
				continue
			}
			out = append(out, relocEntry{
				hash:  s.Hash,
				key:   cloneBytes(leaf.Key(p, s)),
				value: cloneBytes(leaf.Value(p, s)),
			})
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
