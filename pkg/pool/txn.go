package pool

import (
	"errors"
	"fmt"
)

// ErrTransactionAborted names an aborted pool transaction. Transaction
// does not return it: when the supplied closure returns a non-nil
// error, Transaction rolls back and returns that same error unchanged.
var ErrTransactionAborted = errors.New("pool: transaction aborted")

// Txn is the scoped acquisition threaded through every mutation path:
// every allocation, free, and byte-level write made through a Txn is
// either all visible after Transaction returns nil, or none of it is.
type Txn struct {
	pool  *Pool
	undo  []undoEntry
	aborted bool
}

// Transaction runs fn with exclusive write access to the pool. If fn
// returns a non-nil error, every mutation fn made is rolled back before
// Transaction returns; if fn panics, the pool still rolls back (the
// panic is not swallowed: it propagates after rollback completes).
func (p *Pool) Transaction(fn func(*Txn) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.txlog.reset(); err != nil {
		return fmt.Errorf("pool: reset transaction log: %w", err)
	}
	if err := p.txlog.writeBegin(); err != nil {
		return fmt.Errorf("pool: begin transaction: %w", err)
	}

	txn := &Txn{pool: p}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				txn.rollback()
				panic(r)
			}
		}()
		runErr = fn(txn)
	}()

	if runErr != nil {
		txn.rollback()
		return runErr
	}

	if err := p.txlog.writeCommit(); err != nil {
		return fmt.Errorf("pool: commit transaction: %w", err)
	}
	if err := p.msync(); err != nil {
		return fmt.Errorf("pool: msync after commit: %w", err)
	}
	if err := p.txlog.reset(); err != nil {
		return fmt.Errorf("pool: reset transaction log after commit: %w", err)
	}

	return nil
}

// rollback restores every byte this Txn overwrote, in reverse order of
// writes, using the in-memory undo stack (no need to re-read the log:
// the process never crashed, it just asked to abort).
func (t *Txn) rollback() {
	if t.aborted {
		return
	}
	t.aborted = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		e := t.undo[i]
		copy(t.pool.data[e.offset:e.offset+int64(len(e.old))], e.old)
	}
	_ = t.pool.msync()
	_ = t.pool.txlog.reset()
}

// write durably logs the bytes currently at offset, then overwrites
// them with newBytes. It is the single point every persistent mutation
// in this package funnels through.
func (t *Txn) write(offset int64, newBytes []byte) error {
	old := make([]byte, len(newBytes))
	copy(old, t.pool.data[offset:offset+int64(len(newBytes))])

	if err := t.pool.txlog.writeUndo(offset, old); err != nil {
		return fmt.Errorf("pool: logging undo record: %w", err)
	}
	t.undo = append(t.undo, undoEntry{offset: offset, old: old})

	copy(t.pool.data[offset:offset+int64(len(newBytes))], newBytes)
	return nil
}

// Allocate reserves size bytes for exclusive use by the caller, either
// by reusing a freed buffer of exactly that size or by extending the
// pool's bump allocator. The returned Ref's contents are undefined
// until the caller writes to them.
func (t *Txn) Allocate(size int) (Ref, error) {
	if size <= 0 {
		return 0, fmt.Errorf("pool: invalid allocation size %d", size)
	}

	if ref, ok, err := t.popFreelist(uint32(size)); err != nil {
		return 0, err
	} else if ok {
		return ref, nil
	}

	h, err := t.pool.header()
	if err != nil {
		return 0, err
	}

	ref := Ref(h.BumpOffset)
	newBump := h.BumpOffset + uint64(size)

	if err := t.pool.growTo(int64(newBump)); err != nil {
		return 0, err
	}

	if err := t.writeHeader(func(hdr *Header) { hdr.BumpOffset = newBump }); err != nil {
		return 0, err
	}

	return ref, nil
}

// Free returns a previously allocated buffer of size bytes to the
// pool's freelist for reuse by a future Allocate of the same size. If
// the freelist is full the space leaks and is never reused;
// correctness is unaffected, only space reuse is.
func (t *Txn) Free(ref Ref, size int) error {
	if ref.IsNil() || size <= 0 {
		return nil
	}

	h, err := t.pool.header()
	if err != nil {
		return err
	}

	if int(h.FreelistCount) >= FreelistCapacity {
		return nil // leak: freelist exhausted, space is not reclaimed
	}

	slot := int(h.FreelistCount)
	entry := freelistEntry{Offset: ref, Size: uint32(size)}
	if err := t.write(freelistSlotOffset(slot), encodeFreelistEntry(entry)); err != nil {
		return err
	}

	return t.writeHeader(func(hdr *Header) { hdr.FreelistCount++ })
}

// popFreelist removes and returns one freelist entry whose size exactly
// matches want, if any exists.
func (t *Txn) popFreelist(want uint32) (Ref, bool, error) {
	h, err := t.pool.header()
	if err != nil {
		return 0, false, err
	}

	for i := 0; i < int(h.FreelistCount); i++ {
		buf := t.pool.ReadAt(Ref(freelistSlotOffset(i)), freelistEntrySize)
		entry := decodeFreelistEntry(buf)
		if entry.Size != want {
			continue
		}

		last := int(h.FreelistCount) - 1
		if i != last {
			lastBuf := t.pool.ReadAt(Ref(freelistSlotOffset(last)), freelistEntrySize)
			lastEntry := decodeFreelistEntry(lastBuf)
			if err := t.write(freelistSlotOffset(i), encodeFreelistEntry(lastEntry)); err != nil {
				return 0, false, err
			}
		}

		if err := t.writeHeader(func(hdr *Header) { hdr.FreelistCount-- }); err != nil {
			return 0, false, err
		}

		return entry.Offset, true, nil
	}

	return 0, false, nil
}

// writeHeader applies mutate to a decoded copy of the header and
// durably commits the result.
func (t *Txn) writeHeader(mutate func(*Header)) error {
	h, err := t.pool.header()
	if err != nil {
		return err
	}
	mutate(h)
	return t.write(0, encodeHeader(h))
}

// SetHeadLeaf updates the PersistentRoot's head pointer to ref.
func (t *Txn) SetHeadLeaf(ref Ref) error {
	return t.writeHeader(func(h *Header) { h.HeadLeafOffset = uint64(ref) })
}

// WriteAt writes raw bytes at offset, undo-logged like every other
// mutation through this Txn. It is the primitive leaf.Slot builds on.
func (t *Txn) WriteAt(ref Ref, data []byte) error {
	off := int64(ref)
	if off+int64(len(data)) > t.pool.size {
		if err := t.pool.growTo(off + int64(len(data))); err != nil {
			return err
		}
	}
	return t.write(off, data)
}

// ReadAt exposes a borrowed read view through the Txn for symmetry with
// WriteAt; see Pool.ReadAt for the retention caveat.
func (t *Txn) ReadAt(ref Ref, length int) []byte {
	return t.pool.ReadAt(ref, length)
}
