package coresim

// AccessType distinguishes the kind of access a translation is being
// requested for, per spec §4.H — PMA checks and page-table permission
// bits differ by access type.
type AccessType int

const (
	AccessLoad AccessType = iota
	AccessStore
	AccessFetch
	AccessCacheop // software cacheop translation (§4.E); PMA rules differ from ordinary loads
)

// PageFault and AccessFault are the two translation failure modes a
// Translator may report, matching spec §4.H and §7.
type PageFault struct {
	VAddr uint64
	Type  AccessType
}

func (e *PageFault) Error() string { return "page fault" }

type AccessFault struct {
	VAddr uint64
	Type  AccessType
}

func (e *AccessFault) Error() string { return "access fault" }

// Translator is the consumed MMU surface: given a hart, a virtual
// address, a byte count, and the access type, return the physical
// address or an error (*PageFault / *AccessFault). This interface is
// satisfied by the instruction executor's MMU, which lives outside
// this core (spec §1, §4.H) — the core only calls through it.
//
// cacheop distinguishes ordinary accesses from software cacheops: PMA
// checks against the L2 scratchpad region (§4.E) are only applied when
// cacheop is true.
type Translator interface {
	Translate(hart HartID, vaddr uint64, nbytes int, at AccessType, cacheop bool) (paddr uint64, err error)
}

// Executor is the consumed black-box instruction decode/execute
// surface (spec §1). The core drives fetch/execute/retire through it
// and only observes the resulting hart-state transition via the
// returned Outcome.
type Executor interface {
	// FetchExecute fetches and executes one instruction for the given
	// hart's current PC, returning the transition the scheduler must
	// apply. Implementations are responsible for all ISA semantics;
	// the core does not interpret instruction bits.
	FetchExecute(hart *Hart) Outcome
}

// Outcome is the total set of transitions an instruction retirement
// can produce, per spec §4.F.
type OutcomeKind int

const (
	OutcomeRetired            OutcomeKind = iota // normal retirement, PC advanced by executor
	OutcomeDebugEntry                             // enter debug mode with a declared cause
	OutcomeTrap                                    // jump to trap vector
	OutcomeInstructionRestart                      // re-issue same PC next cycle
	OutcomeMemoryErrorFetch                        // bus error on fetch: advance PC, raise bus-error interrupt
	OutcomeMemoryErrorExecute                      // bus error mid-execute: same handling as fetch
	OutcomeFatal                                   // anything else: fatal
)

type Outcome struct {
	Kind      OutcomeKind
	TrapPC    uint64 // valid when Kind == OutcomeTrap: the vector target
	SourcePC  uint64 // PC the trapping instruction was fetched from
	DebugCause DebugCause
	FatalErr  error
}
