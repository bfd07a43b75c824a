package pool

import "encoding/binary"

const (
	// freelistEntrySize is the encoded size of one freelistEntry.
	freelistEntrySize = 16
	// FreelistCapacity bounds the number of freed buffers the pool can
	// track for reuse without a fresh allocation. Once full, Free leaks
	// the buffer's space; nothing in the pool reclaims it afterwards.
	FreelistCapacity = 2048

	freelistTableSize = freelistEntrySize * FreelistCapacity
	// dataStart is the offset of the first byte available to the bump
	// allocator: everything before it is header and freelist table.
	dataStart = HeaderSize + freelistTableSize
)

type freelistEntry struct {
	Offset Ref
	Size   uint32
}

func encodeFreelistEntry(e freelistEntry) []byte {
	buf := make([]byte, freelistEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Offset))
	binary.LittleEndian.PutUint32(buf[8:12], e.Size)
	return buf
}

func decodeFreelistEntry(buf []byte) freelistEntry {
	return freelistEntry{
		Offset: Ref(binary.LittleEndian.Uint64(buf[0:8])),
		Size:   binary.LittleEndian.Uint32(buf[8:12]),
	}
}

func freelistSlotOffset(index int) int64 {
	return int64(HeaderSize + index*freelistEntrySize)
}
