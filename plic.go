package coresim

import (
	"fmt"
	"sort"
)

// Target is one PLIC interrupt target (spec §4.C): typically a hart's
// external-interrupt line, but the Notify callback is deliberately
// generic so tests can attach a plain counter instead of a real hart.
type Target struct {
	NameID    string
	AddressID int
	Notify    func(raise bool)
}

type plicSource struct {
	priority uint32
	pending  bool
	inFlight bool
	owner    int // target index currently holding this source claimed, valid only if inFlight
}

type plicTarget struct {
	enable    []bool // per-source enable bit
	threshold uint32
	claimedID int // 0 = none
	eip       bool
	target    Target
}

// PLIC is the platform-level interrupt controller (spec §4.C): each
// target's eip line is recomputed whenever source/target state
// changes, never left stale between mutations.
type PLIC struct {
	sources []plicSource
	targets []plicTarget
}

// defaultPLICTargets names each target deterministically ("plic target
// N") when the caller doesn't care about custom notify wiring; callers
// that do pass their own targets to NewPLIC or install them later with
// AttachTarget.
func defaultPLICTargets(topo Topology) []Target {
	out := make([]Target, topo.PLICTargets)
	for i := range out {
		out[i] = Target{NameID: fmt.Sprintf("plic target %d", i), AddressID: i}
	}
	return out
}

// NewPLIC allocates a PLIC with nSources sources and the given targets
// (len(targets) == number of PLIC targets).
func NewPLIC(nSources int, nTargets int, targets []Target) *PLIC {
	p := &PLIC{
		sources: make([]plicSource, nSources),
		targets: make([]plicTarget, nTargets),
	}
	for i := range p.targets {
		p.targets[i].enable = make([]bool, nSources)
		if i < len(targets) {
			p.targets[i].target = targets[i]
		}
	}
	return p
}

// AttachTarget installs the Notify callback and identity for one
// target slot after construction (used once the owning hart/DM object
// exists, breaking the construction-order cycle with System).
func (p *PLIC) AttachTarget(idx int, t Target) {
	if idx < 0 || idx >= len(p.targets) {
		return
	}
	p.targets[idx].target = t
}

func (p *PLIC) clampSource(id int) bool  { return id >= 0 && id < len(p.sources) }
func (p *PLIC) clampTarget(idx int) bool { return idx >= 0 && idx < len(p.targets) }

// SetPriority sets a source's priority (0 disables it entirely).
func (p *PLIC) SetPriority(id int, priority uint32) {
	if !p.clampSource(id) {
		return
	}
	p.sources[id].priority = priority
	p.recomputeAll()
}

// SetPending raises or lowers a source's pending bit (the level-
// triggered interrupt-line state), recomputing every target's eip.
func (p *PLIC) SetPending(id int, pending bool) {
	if !p.clampSource(id) {
		return
	}
	p.sources[id].pending = pending
	p.recomputeAll()
}

// raiseBusError is a convenience used by the scheduler on a fetch/
// execute memory fault (spec §4.F): source 0 is reserved as the bus-
// error line by convention of this model.
func (p *PLIC) raiseBusError(_ HartID) {
	if len(p.sources) > 0 {
		p.SetPending(0, true)
	}
}

// SetEnable sets whether targetIdx receives source id.
func (p *PLIC) SetEnable(targetIdx, id int, enabled bool) {
	if !p.clampTarget(targetIdx) || !p.clampSource(id) {
		return
	}
	p.targets[targetIdx].enable[id] = enabled
	p.recompute(targetIdx)
}

// SetThreshold sets targetIdx's priority threshold: only sources with
// priority strictly greater than threshold can interrupt it.
func (p *PLIC) SetThreshold(targetIdx int, threshold uint32) {
	if !p.clampTarget(targetIdx) {
		return
	}
	p.targets[targetIdx].threshold = threshold
	p.recompute(targetIdx)
}

// Claim returns the highest-priority claimable source id for targetIdx
// (0 if none), marking it in-flight and owned by this target. Ties
// break by lowest source id (spec §4.C).
func (p *PLIC) Claim(targetIdx int) uint32 {
	if !p.clampTarget(targetIdx) {
		return 0
	}
	t := &p.targets[targetIdx]
	id := p.bestFor(targetIdx)
	if id < 0 {
		return 0
	}
	p.sources[id].pending = false
	p.sources[id].inFlight = true
	p.sources[id].owner = targetIdx
	t.claimedID = id
	p.recompute(targetIdx)
	return uint32(id)
}

// Complete retires a previously claimed source, clearing in-flight so
// it can be claimed again once re-pended.
func (p *PLIC) Complete(targetIdx int, id uint32) {
	if !p.clampTarget(targetIdx) || !p.clampSource(int(id)) {
		return
	}
	src := &p.sources[id]
	if src.inFlight && src.owner == targetIdx {
		src.inFlight = false
		src.owner = 0
	}
	t := &p.targets[targetIdx]
	if t.claimedID == int(id) {
		t.claimedID = 0
	}
	p.recompute(targetIdx)
}

// bestFor returns the id of the best claimable source for targetIdx,
// or -1 if none qualifies: pending, enabled for this target, not
// already in flight, and priority > threshold. Ties break by lowest id
// (sources are walked in ascending order and the first strictly
// greater priority wins, so equal priorities keep the earlier id).
func (p *PLIC) bestFor(targetIdx int) int {
	t := &p.targets[targetIdx]
	best := -1
	var bestPriority uint32
	ids := make([]int, 0, len(p.sources))
	for i := range p.sources {
		ids = append(ids, i)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := &p.sources[id]
		if !s.pending || s.inFlight || !t.enable[id] {
			continue
		}
		if s.priority <= t.threshold {
			continue
		}
		if best == -1 || s.priority > bestPriority {
			best = id
			bestPriority = s.priority
		}
	}
	return best
}

// recompute updates one target's eip line and fires Notify on change
// (spec §4.C: "recomputed on every mutation, never polled lazily").
func (p *PLIC) recompute(targetIdx int) {
	t := &p.targets[targetIdx]
	newEip := p.bestFor(targetIdx) >= 0
	if newEip != t.eip {
		t.eip = newEip
		if t.target.Notify != nil {
			t.target.Notify(newEip)
		}
	}
}

func (p *PLIC) recomputeAll() {
	for i := range p.targets {
		p.recompute(i)
	}
}

// MaxID returns the id of the best claimable source for targetIdx
// without claiming it, for the max_id status register.
func (p *PLIC) MaxID(targetIdx int) uint32 {
	if !p.clampTarget(targetIdx) {
		return 0
	}
	id := p.bestFor(targetIdx)
	if id < 0 {
		return 0
	}
	return uint32(id)
}

// Pending returns the full source pending bitmap (up to 64 sources),
// for the read-only pending-bitmap register.
func (p *PLIC) Pending() uint64 {
	var v uint64
	for i, s := range p.sources {
		if i >= 64 {
			break
		}
		if s.pending {
			v |= 1 << uint(i)
		}
	}
	return v
}
