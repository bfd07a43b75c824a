package pool

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Header is the fixed-size, checksummed prefix of the pool file. It
// carries the single PersistentRoot head pointer (spec.md's "head
// pointer to the first PersistentLeaf") plus the bookkeeping the bump
// allocator needs. Layout and checksum placement mirror
// pkg/sstable/footer's magic+fields+trailing-xxhash-checksum framing.
type Header struct {
	Magic          uint64
	Version        uint32
	HeadLeafOffset uint64
	BumpOffset     uint64
	FreelistCount  uint32
	Checksum       uint64
}

const (
	// PoolMagic identifies a file as an nvmtree pool.
	PoolMagic = uint64(0x4e564d5450524c31)
	// CurrentPoolVersion is the on-disk format version this build writes.
	CurrentPoolVersion = uint32(1)

	// HeaderSize is the fixed byte size of the encoded header, padded
	// for future growth without shifting the freelist table.
	HeaderSize = 64

	headerChecksummedSize = 8 + 4 + 8 + 8 + 4 // Magic..FreelistCount
)

// encodeHeader serializes h into a HeaderSize-byte buffer, computing the
// checksum over every preceding field.
func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint64(buf[12:20], h.HeadLeafOffset)
	binary.LittleEndian.PutUint64(buf[20:28], h.BumpOffset)
	binary.LittleEndian.PutUint32(buf[28:32], h.FreelistCount)

	h.Checksum = xxhash.Sum64(buf[:headerChecksummedSize])
	binary.LittleEndian.PutUint64(buf[32:40], h.Checksum)
	return buf
}

// decodeHeader parses a Header from its encoded form and verifies the
// magic number and checksum.
func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("pool: header too small: %d bytes", len(buf))
	}

	h := &Header{
		Magic:          binary.LittleEndian.Uint64(buf[0:8]),
		Version:        binary.LittleEndian.Uint32(buf[8:12]),
		HeadLeafOffset: binary.LittleEndian.Uint64(buf[12:20]),
		BumpOffset:     binary.LittleEndian.Uint64(buf[20:28]),
		FreelistCount:  binary.LittleEndian.Uint32(buf[28:32]),
		Checksum:       binary.LittleEndian.Uint64(buf[32:40]),
	}

	if h.Magic != PoolMagic {
		return nil, fmt.Errorf("pool: bad magic %x, want %x", h.Magic, PoolMagic)
	}

	want := xxhash.Sum64(buf[:headerChecksummedSize])
	if h.Checksum != want {
		return nil, fmt.Errorf("pool: header checksum mismatch: file has %x, computed %x", h.Checksum, want)
	}

	return h, nil
}
