// Package coresim implements the execution engine of a manycore
// RISC-V accelerator emulator: hart lifecycle and scheduling, the ESR
// register fabric, the debug module and AND/OR status tree, the
// D-cache/scratchpad cacheop manager, the PLIC interrupt controller,
// and the small-variant system controller with its watchdog.
//
// Instruction decode/execute semantics are out of scope: the core consumes
// an Executor black box and only reacts to the hart-state transitions it
// reports (see mmu.go and hart.go).
package coresim

import "fmt"

// HartID decomposes the chip's flat hart numbering into its four
// addressing coordinates: shire, neighborhood (within the shire),
// minion (within the neighborhood), and thread (0 or 1, within the
// minion). ESR addressing, PLIC target ids, and DM hart selection all
// key off these coordinates.
type HartID struct {
	Shire        uint8
	Neighborhood uint8
	Minion       uint8
	Thread       uint8
}

// String renders a hart id in shire.neighborhood.minion.thread form.
func (h HartID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", h.Shire, h.Neighborhood, h.Minion, h.Thread)
}

// Agent identifies who is performing a memory/ESR access, for fault
// attribution and logging. Implemented by *Hart and by named non-hart
// bus masters (DMA, the debug module, the CLI driver's pokes).
type Agent interface {
	AgentID() string
	// IsHart reports whether this agent is a hart, and if so its id.
	// Non-hart agents (busAgent) return ok=false.
	IsHart() (id HartID, ok bool)
}

// busAgent is a named non-hart bus master.
type busAgent string

func (b busAgent) AgentID() string                { return string(b) }
func (b busAgent) IsHart() (HartID, bool)         { return HartID{}, false }

// Well-known non-hart agents.
const (
	AgentDebugModule = busAgent("dm")
	AgentCLI         = busAgent("cli")
	AgentDMA         = busAgent("dma")
)

// Topology captures the chip shape needed to decode ESR addresses and
// size the PLIC/DM/scratchpad structures. It is derived from Config.
type Topology struct {
	Shires              int
	NeighborhoodsPerShire int
	MinionsPerNeighborhood int
	CacheBanksPerShire  int // fixed at 4 by spec §4.B, kept configurable for tests
	PLICSources         int
	PLICTargets         int
	ScratchpadSets      int
	ScratchpadWays      int
}

// DefaultTopology matches the shapes named throughout spec.md (four
// cache banks per shire, 8 minions per neighborhood, 2 threads per
// minion implied by HartID.Thread being 0/1).
func DefaultTopology() Topology {
	return Topology{
		Shires:                 4,
		NeighborhoodsPerShire:  4,
		MinionsPerNeighborhood: 8,
		CacheBanksPerShire:     4,
		PLICSources:            64,
		PLICTargets:            8,
		ScratchpadSets:         64,
		ScratchpadWays:         4,
	}
}

// HartsPerNeighborhood is fixed by the two-HART-per-minion invariant.
func (t Topology) HartsPerNeighborhood() int {
	return t.MinionsPerNeighborhood * 2
}

// HartIndexInNeighborhood maps a minion/thread pair to the flat index
// used by hastatus0/1 bit lanes (§3).
func HartIndexInNeighborhood(minion, thread uint8) int {
	return int(minion)*2 + int(thread)
}
