package coresim

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// System owns every hart, ESR bank, memory region, the PLIC, the
// Debug Module, and the system controller (Design Notes §9: "No
// cyclic ownership. The system owns harts..."). Harts and peripherals
// only ever reach back into System through the narrow interfaces this
// file and debug.go/plic.go expose — never by holding a strong
// reference to each other.
type System struct {
	Topo   Topology
	Cfg    Config
	Mem    *AddressSpace
	ESR    *ESRStore
	PLIC   *PLIC
	DM     *DebugModule
	SysCtl *SysController
	Cache  *CacheManager
	log    *logger

	executor   Executor
	translator Translator

	// hartGrid[shire][neighborhood][intraIdx] gives O(1) lookup from
	// ESR/DM coordinates to a *Hart.
	hartGrid [][][]*Hart

	active      []*Hart
	awaking     []*Hart
	sleeping    []*Hart
	nonexistent []*Hart

	cycle     uint64
	maxCycles uint64
	done      bool
	doneErr   error

	breakpoints map[uint64]bool

	// externalResetPending is set by RequestExternalReset, which may be
	// called from outside the dispatcher thread (e.g. the host
	// wrapper's signal handler); Step drains it synchronously at cycle
	// top, matching the single-owner mutation discipline every other
	// piece of System state relies on (spec §5 "Shared resources").
	externalResetPending atomic.Bool

	// gdbAttached/gdbHook model the consumed GDB-stub interaction
	// point (spec §4.F step 2, §9 "Breakpoints live in the emulator
	// wrapper, not in the hart"): the core only ever asks "should I
	// stop for the stub", never implements the wire protocol.
	gdbAttached bool
	gdbHook     func(h *Hart, reason string)
}

// SystemOption configures a System at construction.
type SystemOption func(*System)

// WithExecutor installs the consumed instruction executor.
func WithExecutor(e Executor) SystemOption { return func(s *System) { s.executor = e } }

// WithTranslator installs the consumed MMU translation surface.
func WithTranslator(t Translator) SystemOption { return func(s *System) { s.translator = t } }

// WithGDBHook installs the breakpoint/step notification sink (spec
// §9: GDB wiring lives outside the core).
func WithGDBHook(hook func(h *Hart, reason string)) SystemOption {
	return func(s *System) {
		s.gdbAttached = true
		s.gdbHook = hook
	}
}

// NewSystem builds a chip of the given configuration. The executor and
// translator are the two consumed black-box interfaces (spec §1,
// §4.H); a System with neither installed can still be driven for pure
// ESR/PLIC/DM/cacheop unit testing (FetchExecute/Translate are never
// called unless a hart actually runs).
func NewSystem(cfg Config, sugar *zap.SugaredLogger, opts ...SystemOption) *System {
	topo := cfg.Topology()
	s := &System{
		Topo:        topo,
		Cfg:         cfg,
		Mem:         NewAddressSpace(),
		breakpoints: map[uint64]bool{},
		maxCycles:   cfg.MaxCycles,
	}
	s.log = newLogger(sugar, cfg.PromotionSet())
	s.ESR = NewESRStore(topo, s)
	s.PLIC = NewPLIC(topo.PLICSources, topo.PLICTargets, defaultPLICTargets(topo))
	s.SysCtl = NewSysController(s)
	s.Cache = NewCacheManager(topo, len(allHarts(topo)))
	s.DM = NewDebugModule(s)

	s.Cache.WithScratchpadRegion(cfg.ScratchpadBase, cfg.ScratchpadSize)
	s.Mem.Map("esr", esrRegionBase, esrRegionSize, NewESRRegion(s.ESR))
	s.Mem.Map("plic", plicRegionBase, plicRegionSize, NewPLICRegion(s.PLIC, topo.PLICSources, topo.PLICTargets))
	s.Mem.Map("dm", dmRegionBase, dmRegionSize, NewDMRegion(s.DM))
	s.Mem.Map("sysctrl", sysctrlRegionBase, sysctrlRegionSize, NewSysControllerRegion(s.SysCtl))

	s.buildHartGrid()
	for _, opt := range opts {
		opt(s)
	}
	s.ColdReset()
	return s
}

// Default physical base addresses for the chip's control regions
// (spec §6 fixes only the ESR offset layout, not the region base
// constant itself; these are this model's implementation choice, kept
// well clear of the bootrom/MRAM addresses spec §8's scenarios use).
const (
	esrRegionBase     = 0x40_0000_0000
	esrRegionSize     = 1 << 37
	plicRegionBase    = 0x0c00_0000
	plicRegionSize    = 0x0040_0000
	dmRegionBase      = 0x0e00_0000
	dmRegionSize      = 0x1000
	sysctrlRegionBase = 0x0d00_0000
	sysctrlRegionSize = 0x1000
)

func allHarts(topo Topology) []HartID {
	var out []HartID
	for sh := 0; sh < topo.Shires; sh++ {
		for n := 0; n < topo.NeighborhoodsPerShire; n++ {
			for m := 0; m < topo.MinionsPerNeighborhood; m++ {
				for t := 0; t < 2; t++ {
					out = append(out, HartID{Shire: uint8(sh), Neighborhood: uint8(n), Minion: uint8(m), Thread: uint8(t)})
				}
			}
		}
	}
	return out
}

func (s *System) buildHartGrid() {
	s.hartGrid = make([][][]*Hart, s.Topo.Shires)
	for sh := 0; sh < s.Topo.Shires; sh++ {
		s.hartGrid[sh] = make([][]*Hart, s.Topo.NeighborhoodsPerShire)
		for n := 0; n < s.Topo.NeighborhoodsPerShire; n++ {
			harts := make([]*Hart, s.Topo.HartsPerNeighborhood())
			for m := 0; m < s.Topo.MinionsPerNeighborhood; m++ {
				for t := 0; t < 2; t++ {
					idx := HartIndexInNeighborhood(uint8(m), uint8(t))
					h := &Hart{
						ID:  HartID{Shire: uint8(sh), Neighborhood: uint8(n), Minion: uint8(m), Thread: uint8(t)},
						sys: s,
					}
					harts[idx] = h
					s.nonexistent = append(s.nonexistent, h)
				}
			}
			s.hartGrid[sh][n] = harts
		}
	}
}

// HartAt returns the hart at the given coordinates, or nil if out of
// range.
func (s *System) HartAt(shire, neighborhood, intraIdx int) *Hart {
	if shire < 0 || shire >= len(s.hartGrid) {
		return nil
	}
	if neighborhood < 0 || neighborhood >= len(s.hartGrid[shire]) {
		return nil
	}
	if intraIdx < 0 || intraIdx >= len(s.hartGrid[shire][neighborhood]) {
		return nil
	}
	return s.hartGrid[shire][neighborhood][intraIdx]
}

// HartsInNeighborhood returns every hart belonging to one neighborhood,
// ordered by intra-neighborhood index, for hastatus/AND-OR-tree folds.
func (s *System) HartsInNeighborhood(shire, neighborhood int) []*Hart {
	if shire < 0 || shire >= len(s.hartGrid) || neighborhood < 0 || neighborhood >= len(s.hartGrid[shire]) {
		return nil
	}
	return s.hartGrid[shire][neighborhood]
}

// AllHarts returns every hart in the chip, shire-major, for
// diagnostics and tests.
func (s *System) AllHarts() []*Hart {
	var out []*Hart
	for sh := range s.hartGrid {
		for n := range s.hartGrid[sh] {
			out = append(out, s.hartGrid[sh][n]...)
		}
	}
	return out
}

// removeHart deletes h from list, preserving order, returning the new
// slice.
func removeHart(list []*Hart, h *Hart) []*Hart {
	for i, x := range list {
		if x == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func listContains(list []*Hart, h *Hart) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

// moveTo moves h from whichever list currently holds it into dst,
// maintaining the "exactly one list" invariant (spec §8 property 1).
func (s *System) moveTo(h *Hart, dst *[]*Hart) {
	s.active = removeHart(s.active, h)
	s.awaking = removeHart(s.awaking, h)
	s.sleeping = removeHart(s.sleeping, h)
	s.nonexistent = removeHart(s.nonexistent, h)
	*dst = append(*dst, h)
}

// Cycle returns the current cycle counter.
func (s *System) Cycle() uint64 { return s.cycle }

// SetDone requests that RunUntilDone stop after the current cycle.
func (s *System) SetDone(err error) {
	s.done = true
	s.doneErr = err
}

// RequestBreakpoint arms a PC breakpoint; matched after fetch, per
// spec §4.F step 5 and §9 ("a hart merely checks 'is my PC in the
// breakpoint set' after fetch").
func (s *System) RequestBreakpoint(pc uint64) { s.breakpoints[pc] = true }

func (s *System) ClearBreakpoint(pc uint64) { delete(s.breakpoints, pc) }

// ColdReset re-initializes ESRs to documented reset values and places
// every hart in its disabled-or-running state at its shire's boot
// address (spec §4.F "Cold reset").
func (s *System) ColdReset() {
	for sh := 0; sh < s.Topo.Shires; sh++ {
		s.ESR.coldResetShire(sh, uint8(sh))
	}
	s.SysCtl.coldReset(ResetCausePOR)
	s.Cache.Reset()

	s.active = nil
	s.awaking = nil
	s.sleeping = nil
	s.nonexistent = nil
	for _, h := range s.AllHarts() {
		bootPC := s.Cfg.BootPC[int(h.ID.Shire)]
		h.coldReset(bootPC)
		if h.state == StateNonexistent {
			s.nonexistent = append(s.nonexistent, h)
		} else {
			s.active = append(s.active, h)
		}
	}
	s.cycle = 0
	s.done = false
	s.doneErr = nil
	s.log.Debugf("cold reset complete")
}

// ColdResetAfterWatchdog performs a cold reset and records the cause
// for the next boot (supplemented feature, SPEC_FULL §3).
func (s *System) ColdResetAfterWatchdog() {
	s.ColdReset()
	s.SysCtl.resetCause = ResetCauseWatchdog
}

// WarmReset begins/ends a warm reset across every shire (spec §4.D
// "ndmreset"): disable masks are preserved, wait/halt flags cleared.
func (s *System) WarmReset() {
	for _, h := range s.AllHarts() {
		h.warmReset()
	}
}

// ExternalReset performs a cold reset with cause EXTERNAL (SPEC_FULL
// §3's fourth reset_cause value): unlike SOFT, which a hart triggers by
// writing sysctrl's soft_reset register, EXTERNAL models a reset line
// driven from outside the chip entirely, with no on-chip register that
// can raise it. Call RequestExternalReset from another goroutine
// instead of this directly; it's only safe on the dispatcher thread.
func (s *System) ExternalReset() {
	s.ColdReset()
	s.SysCtl.resetCause = ResetCauseExternal
}

// RequestExternalReset marks an external reset pending; Step applies it
// at the next cycle boundary. Safe to call from any goroutine (e.g. a
// host wrapper's OS-signal handler), unlike ExternalReset itself.
func (s *System) RequestExternalReset() {
	s.externalResetPending.Store(true)
}

// RunUntilDone drives the scheduler until done, max-cycle budget, or
// starvation (spec §4.F "Cycle termination"), returning the terminal
// condition.
func (s *System) RunUntilDone() error {
	for {
		if s.done {
			return s.doneErr
		}
		if s.maxCycles != 0 && s.cycle >= s.maxCycles {
			return fmt.Errorf("coresim: max-cycles reached (%d)", s.maxCycles)
		}
		if s.externalResetPending.Load() {
			// An external reset (e.g. SIGHUP) must be applied even if
			// every hart is sleeping; otherwise it would be silently
			// dropped by the starvation check below instead of reaching
			// Step, which is the only place it's drained.
			s.Step()
			continue
		}
		if len(s.active) == 0 && len(s.awaking) == 0 {
			if len(s.sleeping) == 0 {
				return nil // no work left anywhere: clean exit
			}
			return fmt.Errorf("coresim: %d hart(s) left sleeping with no active work", len(s.sleeping))
		}
		s.Step()
	}
}

// Step runs exactly one emulated cycle: merge awaking into active,
// tick the watchdog, then dispatch every active hart in order (spec
// §4.F, §5).
func (s *System) Step() {
	if s.externalResetPending.Swap(false) {
		s.ExternalReset()
		return
	}
	if len(s.awaking) > 0 {
		s.active = append(s.active, s.awaking...)
		s.awaking = nil
	}

	s.SysCtl.Watchdog.Tick()

	for _, h := range append([]*Hart(nil), s.active...) {
		s.stepHart(h)
	}

	s.reapToSleeping()
	s.cycle++
}

// reapToSleeping moves harts to sleeping only when every in-progress
// long-latency op has a registered wait-reason (spec §4.F
// "Suspension"): i.e. the hart is StateWaiting and has no asyncTail
// left to poll, so it cannot make progress without an external event.
func (s *System) reapToSleeping() {
	for _, h := range append([]*Hart(nil), s.active...) {
		if h.state == StateWaiting && h.asyncTail == nil {
			s.moveTo(h, &s.sleeping)
		}
	}
}

// Wake moves a sleeping hart back to the awaking list so it rejoins
// dispatch at the top of the next cycle (spec §4.F "awaking harts are
// merged into active").
func (s *System) Wake(h *Hart) {
	if listContains(s.sleeping, h) {
		s.moveTo(h, &s.awaking)
	}
}

// stepHart implements the per-hart step of spec §4.F.
func (s *System) stepHart(h *Hart) {
	// 1. async tail always runs, even halted/blocked.
	if h.asyncTail != nil {
		done, clears := h.asyncTail(h)
		if done {
			h.asyncTail = nil
			h.clearWait(clears)
			s.Wake(h)
		}
	}

	// 2. GDB stub arm-before-proceeding check. No trigger match is
	// evaluated here: with a stub attached this block does nothing, and
	// the hook is only called when a hart stops on a breakpoint or a
	// single step.
	if s.gdbAttached && s.gdbHook != nil {
	}

	// 3. blocked harts do nothing else this cycle.
	if h.state == StateBlocked {
		return
	}

	// 4. halted: only progbuf fetch/execute/advance happens.
	if h.state == StateHalted {
		s.stepProgbuf(h)
		return
	}

	if h.state != StateRunning {
		return
	}

	// 5. check interrupts, then fetch/execute/retire/advance.
	s.checkHartInterrupt(h)
	if h.state != StateRunning {
		return
	}

	if s.breakpoints[h.PC] {
		if s.gdbAttached {
			h.enterHalt(DebugCauseEbreak)
			for _, oh := range s.AllHarts() {
				if oh.state == StateRunning {
					oh.enterHalt(DebugCauseEbreak)
				}
			}
			if s.gdbHook != nil {
				s.gdbHook(h, "breakpoint")
			}
			return
		}
	}

	if s.executor == nil {
		return
	}
	outcome := s.executor.FetchExecute(h)
	s.applyOutcome(h, outcome)

	if h.singleStep != nil && h.state == StateRunning {
		if h.PC < h.singleStep.lo || h.PC >= h.singleStep.hi {
			h.enterHalt(DebugCauseStep)
			if s.gdbHook != nil {
				s.gdbHook(h, "step")
			}
		}
	}
}

// applyOutcome implements the trap/restart/fatal handling of spec
// §4.F "Traps".
func (s *System) applyOutcome(h *Hart, o Outcome) {
	switch o.Kind {
	case OutcomeRetired:
		// PC already advanced by the executor.
	case OutcomeDebugEntry:
		h.enterHalt(o.DebugCause)
	case OutcomeTrap:
		if o.TrapPC == o.SourcePC {
			panic(&FatalError{Reason: "trap-target equals source PC (trap recursion)", Hart: h.ID})
		}
		h.PC = o.TrapPC
	case OutcomeInstructionRestart:
		h.PC = o.SourcePC
	case OutcomeMemoryErrorFetch, OutcomeMemoryErrorExecute:
		h.PC = o.SourcePC + 4
		s.PLIC.raiseBusError(h.ID)
	case OutcomeFatal:
		panic(&FatalError{Reason: fmt.Sprintf("unhandled exception: %v", o.FatalErr), Hart: h.ID})
	default:
		panic(&FatalError{Reason: "unknown outcome kind", Hart: h.ID})
	}
}

// checkHartInterrupt is a thin seam the executor's interrupt-pending
// check can hook; the core's own obligation is only to ensure a
// waiting hart doesn't fetch (step 5's "If not waiting, fetch...").
func (s *System) checkHartInterrupt(h *Hart) {
	if h.state == StateWaiting {
		return
	}
}

// stepProgbuf implements spec §4.D/§4.F: while halted, if the hart is
// in a progbuf sub-state, fetch/execute/advance from the program
// buffer; traps inside the program buffer go to ProgbufException
// rather than a normal trap.
func (s *System) stepProgbuf(h *Hart) {
	if h.progbuf != ProgbufFetching {
		return
	}
	if s.executor == nil {
		return
	}
	outcome := s.executor.FetchExecute(h)
	switch outcome.Kind {
	case OutcomeRetired:
		h.progbuf = ProgbufExecuted
	case OutcomeTrap, OutcomeMemoryErrorFetch, OutcomeMemoryErrorExecute:
		h.progbuf = ProgbufException
	case OutcomeFatal:
		h.progbuf = ProgbufError
	}
}

// RaiseInterrupt is a convenience the executor's interrupt front-end
// can call; it simply forwards into PLIC source state, matching the
// consumed-interface boundary of spec §4.F step 5.
func (s *System) RaiseInterrupt(source int, pending bool) {
	s.PLIC.SetPending(source, pending)
}
