// Package enginefacade is nvmtree's public operation surface: the
// boundary where internal errors are translated into the closed
// status.Code set and where Open wires together pkg/config, pkg/pool,
// pkg/recovery, and pkg/tree into one running engine.
package enginefacade

import (
	"github.com/nvmtree/nvmtree/pkg/common/log"
	"github.com/nvmtree/nvmtree/pkg/config"
	"github.com/nvmtree/nvmtree/pkg/defrag"
	"github.com/nvmtree/nvmtree/pkg/pool"
	"github.com/nvmtree/nvmtree/pkg/recovery"
	"github.com/nvmtree/nvmtree/pkg/stats"
	"github.com/nvmtree/nvmtree/pkg/status"
	"github.com/nvmtree/nvmtree/pkg/tree"
)

// engineName is the identifier returned by Name.
const engineName = "nvmtree"

// Engine is the opened, recovered, ready-to-use database handle.
type Engine struct {
	cfg    *config.Config
	pool   *pool.Pool
	tree   *tree.Engine
	logger log.Logger
	stats  stats.Collector
}

// Open validates cfg, opens (or creates) the backing pool, recovers
// the volatile index from the persistent leaf chain, and returns a
// ready-to-use Engine.
func Open(cfg *config.Config) (*Engine, error) {
	return OpenWithLogger(cfg, log.NewStandardLogger())
}

// OpenWithLogger is Open with an explicit logger, threaded through to
// the pool, recovery, and tree layers so every component's log lines
// share one sink.
func OpenWithLogger(cfg *config.Config, logger log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, status.New(status.ConfigParsingError, err.Error())
	}
	if logger == nil {
		logger = log.NewStandardLogger()
	}

	collector := stats.NewAtomicCollector()

	p, err := pool.OpenWithLogger(cfg.Path, cfg.Size, cfg.ForceCreate, logger)
	if err != nil {
		return nil, toStatusError(err)
	}

	result, err := recovery.Run(p, logger, collector)
	if err != nil {
		p.Close()
		return nil, toStatusError(err)
	}

	treeEngine := tree.New(p, result.Arena, logger, collector)
	treeEngine.SeedPreallocated(result.Preallocated.Refs)

	return &Engine{
		cfg:    cfg,
		pool:   p,
		tree:   treeEngine,
		logger: logger.WithField("component", "engine"),
		stats:  collector,
	}, nil
}

// Name returns the engine's identifier, "nvmtree".
func (e *Engine) Name() string {
	return engineName
}

// Close releases the backing pool. Persistent state is left intact.
func (e *Engine) Close() error {
	return toStatusError(e.pool.Close())
}

// Get returns the value for key, or a NotFound status error.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, status.New(status.InvalidArgument, "key must not be empty")
	}
	v, err := e.tree.Get(key)
	return v, toStatusError(err)
}

// Exists reports whether key is present.
func (e *Engine) Exists(key []byte) bool {
	return e.tree.Exists(key)
}

// Put inserts or overwrites key's value.
func (e *Engine) Put(key, value []byte) error {
	if len(key) == 0 {
		return status.New(status.InvalidArgument, "key must not be empty")
	}
	return toStatusError(e.tree.Put(key, value))
}

// Remove deletes key. A missing key is not an error: Remove is
// idempotent.
func (e *Engine) Remove(key []byte) error {
	if len(key) == 0 {
		return status.New(status.InvalidArgument, "key must not be empty")
	}
	return toStatusError(e.tree.Remove(key))
}

// CountAll, CountAbove, CountEqualAbove, CountBelow, CountEqualBelow,
// and CountBetween mirror pkg/tree's range predicates but return a
// count instead of visiting entries, per stree's independent count_*
// operations.
func (e *Engine) CountAll() uint64                   { return e.tree.CountAll() }
func (e *Engine) CountAbove(bound []byte) uint64      { return e.tree.CountAbove(bound) }
func (e *Engine) CountEqualAbove(bound []byte) uint64 { return e.tree.CountEqualAbove(bound) }
func (e *Engine) CountBelow(bound []byte) uint64      { return e.tree.CountBelow(bound) }
func (e *Engine) CountEqualBelow(bound []byte) uint64 { return e.tree.CountEqualBelow(bound) }
func (e *Engine) CountBetween(lo, hi []byte) uint64   { return e.tree.CountBetween(lo, hi) }

// All, Above, EqualAbove, Below, EqualBelow, and Between visit entries
// in ascending key order within the named range.
func (e *Engine) All(visit tree.Visit)                      { e.tree.All(visit) }
func (e *Engine) Above(bound []byte, visit tree.Visit)      { e.tree.Above(bound, visit) }
func (e *Engine) EqualAbove(bound []byte, visit tree.Visit) { e.tree.EqualAbove(bound, visit) }
func (e *Engine) Below(bound []byte, visit tree.Visit)      { e.tree.Below(bound, visit) }
func (e *Engine) EqualBelow(bound []byte, visit tree.Visit) { e.tree.EqualBelow(bound, visit) }
func (e *Engine) Between(lo, hi []byte, visit tree.Visit)   { e.tree.Between(lo, hi, visit) }

// GetBegin, LowerBound, UpperBound, GetNext, and GetPrev implement
// ordered point navigation.
func (e *Engine) GetBegin() (key, value []byte, ok bool)         { return e.tree.GetBegin() }
func (e *Engine) LowerBound(bound []byte) ([]byte, []byte, bool) { return e.tree.LowerBound(bound) }
func (e *Engine) UpperBound(bound []byte) ([]byte, []byte, bool) { return e.tree.UpperBound(bound) }
func (e *Engine) GetNext(key []byte) ([]byte, []byte, bool)      { return e.tree.GetNext(key) }
func (e *Engine) GetPrev(key []byte) ([]byte, []byte, bool)      { return e.tree.GetPrev(key) }

// Defrag compacts the leaf chain between startPercent and
// startPercent+amountPercent of its length: every live entry in that
// window is sorted by key and repacked densely into the window's own
// leaves, and leaves left empty join the preallocated pool.
// Cross-leaf relocation invalidates every routing decision cached in
// the volatile index (a key's persistent home can move to a leaf the
// index never pointed at), so Defrag always follows a successful pass
// with a full pkg/recovery rebuild before returning.
func (e *Engine) Defrag(startPercent, amountPercent int) error {
	if startPercent < 0 || startPercent > 100 || amountPercent < 0 || startPercent+amountPercent > 100 {
		return status.New(status.InvalidArgument, "defrag window must fall within [0,100]")
	}
	e.stats.TrackDefrag()

	if err := defrag.Run(e.pool, startPercent, amountPercent, e.logger); err != nil {
		return toStatusError(err)
	}

	result, err := recovery.Run(e.pool, e.logger, e.stats)
	if err != nil {
		return toStatusError(err)
	}
	e.tree.Reindex(result.Arena)
	e.tree.SeedPreallocated(result.Preallocated.Refs)
	return nil
}

// Stats exposes the engine's running counters and gauges.
func (e *Engine) Stats() stats.Provider {
	return e.stats
}

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*status.Error); ok {
		return err
	}
	return status.New(status.UnknownError, err.Error())
}
