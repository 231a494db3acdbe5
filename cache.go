package coresim

// cacheLine is one entry of a per-hart lock table (spec §4.E, Design
// Notes §9: "flat array of sets*ways structs; avoid per-set vectors").
type cacheLine struct {
	locked bool
	paddr  uint64
}

// LockTable is one hart's D-cache/scratchpad lock table.
type LockTable struct {
	sets, ways int
	lines      []cacheLine
}

// NewLockTable allocates a sets*ways lock table, all entries unlocked.
func NewLockTable(sets, ways int) *LockTable {
	return &LockTable{sets: sets, ways: ways, lines: make([]cacheLine, sets*ways)}
}

func (lt *LockTable) idx(set, way int) int { return set*lt.ways + way }

func (lt *LockTable) inRange(set, way int) bool {
	return set >= 0 && set < lt.sets && way >= 0 && way < lt.ways
}

// IsLocked reports whether (set, way) is locked; out-of-range is
// always unlocked.
func (lt *LockTable) IsLocked(set, way int) bool {
	if !lt.inRange(set, way) {
		return false
	}
	return lt.lines[lt.idx(set, way)].locked
}

// LockedCount returns how many ways are locked within one set.
func (lt *LockTable) LockedCount(set int) int {
	if set < 0 || set >= lt.sets {
		return 0
	}
	n := 0
	for w := 0; w < lt.ways; w++ {
		if lt.lines[lt.idx(set, w)].locked {
			n++
		}
	}
	return n
}

// findByPAddr reports the (set, way) already holding paddr locked in
// the given set, if any (spec §4.E LockSW precondition (b)).
func (lt *LockTable) findByPAddr(set int, paddr uint64) (way int, ok bool) {
	if set < 0 || set >= lt.sets {
		return 0, false
	}
	for w := 0; w < lt.ways; w++ {
		l := lt.lines[lt.idx(set, w)]
		if l.locked && l.paddr == paddr {
			return w, true
		}
	}
	return 0, false
}

func (lt *LockTable) lock(set, way int, paddr uint64) {
	if lt.inRange(set, way) {
		lt.lines[lt.idx(set, way)] = cacheLine{locked: true, paddr: paddr}
	}
}

// Unlock clears a lock bit; out-of-range is silently ignored (spec
// §4.E "UnlockSW").
func (lt *LockTable) Unlock(set, way int) {
	if lt.inRange(set, way) {
		lt.lines[lt.idx(set, way)] = cacheLine{}
	}
}

// ClearAll drops every lock (spec §4.E "changing all clears all
// locks").
func (lt *LockTable) ClearAll() {
	for i := range lt.lines {
		lt.lines[i] = cacheLine{}
	}
}

// ClearAllButLastTwoSets implements "changing scp clears all but the
// last two sets" (spec §4.E).
func (lt *LockTable) ClearAllButLastTwoSets() {
	keepFrom := lt.sets - 2
	for s := 0; s < lt.sets; s++ {
		if s >= keepFrom {
			continue
		}
		for w := 0; w < lt.ways; w++ {
			lt.lines[lt.idx(s, w)] = cacheLine{}
		}
	}
}

// Cacheop enumerates the software cacheop kinds of spec §4.E.
type Cacheop int

const (
	CacheopEvictSW Cacheop = iota
	CacheopFlushSW
	CacheopEvictVA
	CacheopFlushVA
	CacheopPrefetchVA
	CacheopLockSW
	CacheopUnlockSW
	CacheopLockVA
	CacheopUnlockVA
)

// CacheopRequest decodes the 64-bit cacheop immediate plus stride
// register named in spec §4.E: {tm, dest_level, ..., set, way, count,
// id}.
type CacheopRequest struct {
	Op                Cacheop
	TensorMaskEnabled bool
	TensorMask        uint16 // bit i selects whether iteration i participates, when TensorMaskEnabled
	DestLevel         int    // 0 = L1, >1 = L2/scratchpad-capable
	Set, Way          int
	VAddr             uint64
	Stride            uint64
	Count             int // iteration count is Count+1, range [1,16]
}

// CacheManager owns one LockTable and one control byte per hart
// (spec §4.E: "per thread, a lock table of sets x ways entries").
type CacheManager struct {
	topo           Topology
	tables         []*LockTable
	ctrl           []uint8
	scratchpadBase uint64
	scratchpadSize uint64
}

// Control-byte bit assignment (spec names "all" and "scp" without
// fixing bit positions; we reserve 0 and 1).
const (
	cacheCtrlAll = 1 << 0
	cacheCtrlSCP = 1 << 1
)

// NewCacheManager allocates nHarts lock tables sized by topo.
func NewCacheManager(topo Topology, nHarts int) *CacheManager {
	cm := &CacheManager{topo: topo, scratchpadBase: 0x1000_0000, scratchpadSize: 0x0010_0000}
	cm.tables = make([]*LockTable, nHarts)
	cm.ctrl = make([]uint8, nHarts)
	for i := range cm.tables {
		cm.tables[i] = NewLockTable(topo.ScratchpadSets, topo.ScratchpadWays)
	}
	return cm
}

// WithScratchpadRegion overrides the default scratchpad physical
// address range (wired from Config by the CLI driver / test harness).
func (cm *CacheManager) WithScratchpadRegion(base, size uint64) *CacheManager {
	cm.scratchpadBase, cm.scratchpadSize = base, size
	return cm
}

// Reset clears every hart's lock table and control byte (cold reset).
func (cm *CacheManager) Reset() {
	for _, t := range cm.tables {
		t.ClearAll()
	}
	for i := range cm.ctrl {
		cm.ctrl[i] = 0
	}
}

func (cm *CacheManager) tableFor(h *Hart) *LockTable {
	i := flatHartIndex(cm.topo, h.ID)
	if i < 0 || i >= len(cm.tables) {
		return nil
	}
	return cm.tables[i]
}

func (cm *CacheManager) inScratchpad(paddr uint64) bool {
	return paddr >= cm.scratchpadBase && paddr < cm.scratchpadBase+cm.scratchpadSize
}

// flatHartIndex maps a HartID to a dense [0, totalHarts) index used to
// key per-hart arrays (lock tables, etc).
func flatHartIndex(topo Topology, id HartID) int {
	perShire := topo.NeighborhoodsPerShire * topo.HartsPerNeighborhood()
	return int(id.Shire)*perShire + int(id.Neighborhood)*topo.HartsPerNeighborhood() + HartIndexInNeighborhood(id.Minion, id.Thread)
}

// FlushPrefetches implements the CoopModeFlag write side effect (spec
// §3 "CoopModeFlag (side-effect: flush prefetches)"): this model has
// no prefetch queue of its own to drain, so it does nothing and logs
// nothing.
func (cm *CacheManager) FlushPrefetches(shireIdx int) {}

// SetControlByte applies a new per-core control byte, triggering the
// all/scp invalidation side effects of spec §4.E.
func (cm *CacheManager) SetControlByte(h *Hart, val uint8) {
	i := flatHartIndex(cm.topo, h.ID)
	if i < 0 || i >= len(cm.ctrl) {
		return
	}
	old := cm.ctrl[i]
	cm.ctrl[i] = val
	lt := cm.tables[i]
	if old&cacheCtrlAll != val&cacheCtrlAll {
		lt.ClearAll()
	}
	if old&cacheCtrlSCP != val&cacheCtrlSCP {
		lt.ClearAllButLastTwoSets()
		if val&cacheCtrlSCP != 0 {
			// enabling SCP also clears the L1 scratchpad: modeled as a
			// full clear of this hart's table, since L1 state isn't
			// otherwise tracked separately from the lock table here.
			lt.ClearAll()
		}
	}
}

// wrapIncrement advances (set, way) by one iteration: the set index
// moves first, and when it wraps past the last set the way advances,
// itself wrapping to 0 after the last way.
func wrapIncrement(set, way, nSets, nWays int) (int, int) {
	set++
	if set >= nSets {
		set = 0
		way++
		if way >= nWays {
			way = 0
		}
	}
	return set, way
}

// DoCacheop executes one cacheop request against h's lock table,
// applying the exact per-op rules of spec §4.E. tr is the Translator
// used by the *VA variants.
func (cm *CacheManager) DoCacheop(h *Hart, req CacheopRequest, tr Translator) {
	lt := cm.tableFor(h)
	if lt == nil {
		return
	}
	iterations := req.Count + 1
	if iterations < 1 {
		iterations = 1
	}
	if iterations > 16 {
		iterations = 16
	}

	switch req.Op {
	case CacheopEvictSW, CacheopFlushSW:
		set, way := req.Set, req.Way
		for i := 0; i < iterations; i++ {
			if req.TensorMaskEnabled && req.TensorMask&(1<<uint(i)) == 0 {
				set, way = wrapIncrement(set, way, lt.sets, lt.ways)
				continue
			}
			if req.DestLevel > 1 && lt.IsLocked(set, way) {
				l := lt.lines[lt.idx(set, way)]
				if cm.inScratchpad(l.paddr) {
					h.SetTensorErrorBit(TensorErrLockConflict)
				}
			}
			set, way = wrapIncrement(set, way, lt.sets, lt.ways)
		}
	case CacheopEvictVA, CacheopFlushVA:
		vaddr := req.VAddr
		for i := 0; i < iterations; i++ {
			if req.TensorMaskEnabled && req.TensorMask&(1<<uint(i)) == 0 {
				vaddr += req.Stride
				continue
			}
			paddr, err := tr.Translate(h.ID, vaddr, 1, AccessCacheop, true)
			if err != nil {
				h.SetTensorErrorBit(TensorErrTranslation)
				return // abort remaining iterations
			}
			if req.DestLevel > 1 && cm.inScratchpad(paddr) {
				h.SetTensorErrorBit(TensorErrLockConflict)
			}
			vaddr += req.Stride
		}
	case CacheopPrefetchVA:
		vaddr := req.VAddr
		for i := 0; i < iterations; i++ {
			if req.TensorMaskEnabled && req.TensorMask&(1<<uint(i)) == 0 {
				vaddr += req.Stride
				continue
			}
			if _, err := tr.Translate(h.ID, vaddr, 1, AccessCacheop, true); err != nil {
				h.SetTensorErrorBit(TensorErrTranslation)
				return
			}
			vaddr += req.Stride
		}
	case CacheopLockSW:
		set, way := req.Set, req.Way
		paddr := req.VAddr
		if _, err := tr.Translate(h.ID, paddr, 1, AccessCacheop, true); err != nil {
			h.SetTensorErrorBit(TensorErrTranslation)
			return
		}
		if conflictWay, ok := lt.findByPAddr(set, paddr); ok && conflictWay != way {
			h.SetTensorErrorBit(TensorErrLockConflict)
			return
		}
		if lt.IsLocked(set, way) && lt.lines[lt.idx(set, way)].paddr != paddr {
			h.SetTensorErrorBit(TensorErrLockConflict)
			return
		}
		if lt.LockedCount(set) >= lt.ways-1 && !lt.IsLocked(set, way) {
			h.SetTensorErrorBit(TensorErrLockConflict)
			return
		}
		lt.lock(set, way, paddr)
	case CacheopUnlockSW:
		lt.Unlock(req.Set, req.Way)
	case CacheopLockVA:
		paddr, err := tr.Translate(h.ID, req.VAddr, 1, AccessCacheop, true)
		if err != nil {
			h.SetTensorErrorBit(TensorErrTranslation)
			return
		}
		_ = paddr // hint-only: zero-fill has no observable state here
	case CacheopUnlockVA:
		if _, err := tr.Translate(h.ID, req.VAddr, 1, AccessCacheop, true); err != nil {
			h.SetTensorErrorBit(TensorErrTranslation)
		}
	}
}
