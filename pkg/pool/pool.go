// Package pool implements PersistentPool: the durability primitive that
// owns the backing file mapped into the process address space and
// exposes scoped allocation, deallocation, and transactional mutation
// of persistent objects rooted at a single PersistentRoot head pointer.
package pool

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nvmtree/nvmtree/pkg/common/log"
)

// growthChunk is how much a pool grows by when the bump allocator runs
// out of mapped space, amortizing the munmap/truncate/mmap cycle.
const growthChunk = 4 * 1024 * 1024 // 4MB

// Pool is the durability primitive for one database file: a
// memory-mapped region plus a single-writer guard and an undo log for
// crash-consistent transactions.
type Pool struct {
	path   string
	file   *os.File
	data   []byte // mmap'd view of the whole file, including header
	size   int64  // current mmap'd/file size
	txlog  *txLog
	logger log.Logger

	mu sync.Mutex // serializes Transaction and Close; ReadAt and Root do not take it
}

// Open opens or creates the pool file at path. size is the target size
// in bytes, used only on creation. forceCreate always (re)creates the
// pool, discarding any existing file.
func Open(path string, size int64, forceCreate bool) (*Pool, error) {
	return OpenWithLogger(path, size, forceCreate, log.NewStandardLogger())
}

// OpenWithLogger is Open with an explicit logger, so callers (tests,
// the engine facade) can route pool diagnostics through their own
// log.Logger instead of the package default.
func OpenWithLogger(path string, size int64, forceCreate bool, logger log.Logger) (*Pool, error) {
	if logger == nil {
		logger = log.NewStandardLogger()
	}

	if forceCreate {
		_ = os.Remove(path)
		_ = os.Remove(path + ".txlog")
	}

	if size < dataStart {
		size = dataStart
	}

	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pool: open %s: %w", path, err)
	}

	p := &Pool{path: path, file: file, logger: logger.WithField("component", "pool")}

	if !existed {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("pool: truncate new file: %w", err)
		}
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("pool: stat: %w", err)
	}

	if err := p.mmap(stat.Size()); err != nil {
		file.Close()
		return nil, err
	}

	if !existed {
		h := &Header{
			Magic:          PoolMagic,
			Version:        CurrentPoolVersion,
			HeadLeafOffset: 0,
			BumpOffset:     dataStart,
			FreelistCount:  0,
		}
		copy(p.data[:HeaderSize], encodeHeader(h))
		if err := p.msync(); err != nil {
			p.unmap()
			file.Close()
			return nil, err
		}
	} else {
		if _, err := decodeHeader(p.data[:HeaderSize]); err != nil {
			p.unmap()
			file.Close()
			return nil, err
		}
	}

	txlog, err := openTxLog(path + ".txlog")
	if err != nil {
		p.unmap()
		file.Close()
		return nil, err
	}
	p.txlog = txlog

	if err := p.recoverPendingTransaction(); err != nil {
		txlog.close()
		p.unmap()
		file.Close()
		return nil, err
	}

	p.logger.WithField("path", path).Info("pool opened, size=%d", p.size)
	return p, nil
}

// recoverPendingTransaction rolls back any transaction that was left
// half-applied by a crash: every undo record written but never followed
// by a commit record gets replayed in reverse, restoring the
// pre-transaction bytes.
func (p *Pool) recoverPendingTransaction() error {
	undo, committed, err := readTxLogRecords(p.path + ".txlog")
	if err != nil {
		return fmt.Errorf("pool: reading transaction log: %w", err)
	}

	if !committed && len(undo) > 0 {
		p.logger.Warn("rolling back incomplete transaction, records=%d", len(undo))
		for i := len(undo) - 1; i >= 0; i-- {
			e := undo[i]
			copy(p.data[e.offset:e.offset+int64(len(e.old))], e.old)
		}
		if err := p.msync(); err != nil {
			return err
		}
	}

	return p.txlog.reset()
}

func (p *Pool) mmap(size int64) error {
	data, err := unix.Mmap(int(p.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pool: mmap: %w", err)
	}
	p.data = data
	p.size = size
	return nil
}

func (p *Pool) unmap() error {
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

func (p *Pool) msync() error {
	return unix.Msync(p.data, unix.MS_SYNC)
}

// growTo ensures the mapped region covers at least newSize bytes,
// remapping in growthChunk-sized steps.
func (p *Pool) growTo(newSize int64) error {
	if newSize <= p.size {
		return nil
	}
	target := p.size
	for target < newSize {
		target += growthChunk
	}
	if err := p.file.Truncate(target); err != nil {
		return fmt.Errorf("pool: grow file: %w", err)
	}
	if err := p.unmap(); err != nil {
		return fmt.Errorf("pool: unmap before growth: %w", err)
	}
	return p.mmap(target)
}

// header reads the current header. Callers must hold p.mu or be certain
// no writer is concurrently active.
func (p *Pool) header() (*Header, error) {
	return decodeHeader(p.data[:HeaderSize])
}

// Root returns the current head of the persistent leaf chain, or the
// null Ref if the pool is empty.
func (p *Pool) Root() (Ref, error) {
	h, err := p.header()
	if err != nil {
		return 0, err
	}
	return Ref(h.HeadLeafOffset), nil
}

// ReadAt returns a borrowed view into the pool's mapped memory. Per
// spec.md §4.7, callers must not retain the returned slice past the
// scope in which they obtained it: the pool may remap its backing
// memory (growTo) on any subsequent write, invalidating prior slices.
func (p *Pool) ReadAt(ref Ref, length int) []byte {
	off := int64(ref)
	return p.data[off : off+int64(length)]
}

// Path returns the filesystem path backing the pool.
func (p *Pool) Path() string {
	return p.path
}

// Size returns the current size in bytes of the mapped pool file.
func (p *Pool) Size() int64 {
	return p.size
}

// Close unmaps and closes the pool file. Per spec.md §2, persistent
// state is left untouched; only the in-process mapping is torn down.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.txlog.close(); err != nil {
		return err
	}
	if err := p.msync(); err != nil {
		return err
	}
	if err := p.unmap(); err != nil {
		return err
	}
	return p.file.Close()
}
