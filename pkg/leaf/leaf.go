// Package leaf implements the persistent leaf layout: a fixed-capacity
// node holding up to L slots of (hash, key, value) plus a forward link
// to the next persistent leaf. All persistent leaves form a singly
// linked list anchored at the pool's PersistentRoot.
package leaf

import (
	"encoding/binary"
	"fmt"

	"github.com/nvmtree/nvmtree/pkg/pearson"
	"github.com/nvmtree/nvmtree/pkg/pool"
)

// L is the compile-time slot capacity of one persistent leaf.
const L = 48

const (
	slotSize = 1 + 4 + 4 + 8 // hash + key_size + value_size + buffer ref
	// Size is the total encoded size of one PersistentLeaf: L slots
	// plus an 8-byte forward pointer to the next leaf.
	Size = L*slotSize + 8
)

// Slot is the decoded form of one persistent slot. Hash == 0 iff the
// slot is logically empty.
type Slot struct {
	Hash      byte
	KeySize   uint32
	ValueSize uint32
	BufRef    pool.Ref
}

// Empty reports whether the slot holds no key-value pair.
func (s Slot) Empty() bool {
	return s.Hash == 0
}

func slotOffset(leafRef pool.Ref, index int) int64 {
	return int64(leafRef) + int64(index*slotSize)
}

func encodeSlot(s Slot) []byte {
	buf := make([]byte, slotSize)
	buf[0] = s.Hash
	binary.LittleEndian.PutUint32(buf[1:5], s.KeySize)
	binary.LittleEndian.PutUint32(buf[5:9], s.ValueSize)
	binary.LittleEndian.PutUint64(buf[9:17], uint64(s.BufRef))
	return buf
}

func decodeSlot(buf []byte) Slot {
	return Slot{
		Hash:      buf[0],
		KeySize:   binary.LittleEndian.Uint32(buf[1:5]),
		ValueSize: binary.LittleEndian.Uint32(buf[5:9]),
		BufRef:    pool.Ref(binary.LittleEndian.Uint64(buf[9:17])),
	}
}

// ReadSlot decodes slot index of the leaf at leafRef.
func ReadSlot(p *pool.Pool, leafRef pool.Ref, index int) Slot {
	buf := p.ReadAt(pool.Ref(slotOffset(leafRef, index)), slotSize)
	return decodeSlot(buf)
}

// Next returns the forward link to the next persistent leaf, or the
// null Ref if this is the last leaf in the chain.
func Next(p *pool.Pool, leafRef pool.Ref) pool.Ref {
	buf := p.ReadAt(leafRef+pool.Ref(L*slotSize), 8)
	return pool.Ref(binary.LittleEndian.Uint64(buf))
}

// SetNext splices leafRef's forward link to next.
func SetNext(txn *pool.Txn, leafRef pool.Ref, next pool.Ref) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(next))
	return txn.WriteAt(leafRef+pool.Ref(L*slotSize), buf)
}

// New allocates a fresh, fully empty persistent leaf and returns its
// reference. The caller is responsible for splicing it into the chain
// (SetNext) and, if it is the new head, updating the pool's root.
func New(txn *pool.Txn) (pool.Ref, error) {
	ref, err := txn.Allocate(Size)
	if err != nil {
		return 0, fmt.Errorf("leaf: allocate: %w", err)
	}

	zero := make([]byte, Size)
	if err := txn.WriteAt(ref, zero); err != nil {
		return 0, fmt.Errorf("leaf: zero new leaf: %w", err)
	}

	return ref, nil
}

// SetSlot implements Slot.set from spec.md §4.3: frees any existing
// buffer inside the enclosing transaction, allocates a new buffer sized
// exactly key+value+2, and writes hash/sizes/bytes.
func SetSlot(txn *pool.Txn, p *pool.Pool, leafRef pool.Ref, index int, hash byte, key, value []byte) error {
	existing := ReadSlot(p, leafRef, index)
	if !existing.BufRef.IsNil() {
		if err := txn.Free(existing.BufRef, int(existing.KeySize+existing.ValueSize+2)); err != nil {
			return err
		}
	}

	bufSize := len(key) + len(value) + 2
	bufRef, err := txn.Allocate(bufSize)
	if err != nil {
		return err
	}

	buf := make([]byte, bufSize)
	copy(buf, key)
	// buf[len(key)] left as the unused separator byte (zero).
	copy(buf[len(key)+1:], value)
	// trailing byte left as the unused pad (zero).
	if err := txn.WriteAt(bufRef, buf); err != nil {
		return err
	}

	slot := Slot{Hash: hash, KeySize: uint32(len(key)), ValueSize: uint32(len(value)), BufRef: bufRef}
	return txn.WriteAt(pool.Ref(slotOffset(leafRef, index)), encodeSlot(slot))
}

// ClearSlot implements Slot.clear from spec.md §4.3: frees the buffer
// if present and zeroes hash/sizes/buffer reference.
func ClearSlot(txn *pool.Txn, p *pool.Pool, leafRef pool.Ref, index int) error {
	existing := ReadSlot(p, leafRef, index)
	if existing.Empty() {
		return nil
	}
	if !existing.BufRef.IsNil() {
		if err := txn.Free(existing.BufRef, int(existing.KeySize+existing.ValueSize+2)); err != nil {
			return err
		}
	}
	return txn.WriteAt(pool.Ref(slotOffset(leafRef, index)), encodeSlot(Slot{}))
}

// Key returns a borrowed view of the key bytes for a non-empty slot.
func Key(p *pool.Pool, s Slot) []byte {
	if s.Empty() {
		return nil
	}
	buf := p.ReadAt(s.BufRef, int(s.KeySize))
	return buf
}

// Value returns a borrowed view of the value bytes for a non-empty
// slot.
func Value(p *pool.Pool, s Slot) []byte {
	if s.Empty() {
		return nil
	}
	off := s.BufRef + pool.Ref(s.KeySize) + 1
	buf := p.ReadAt(off, int(s.ValueSize))
	return buf
}

// HashOf is a convenience wrapper around the keyed Pearson hash used to
// accelerate slot lookup; kept here so callers never need to import
// pkg/pearson directly just to hash a key before calling into a leaf.
func HashOf(key []byte) byte {
	return pearson.Hash(key)
}
