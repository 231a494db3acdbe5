package coresim

// HartState is the coarse execution state of a hart, per spec §3.
type HartState int

const (
	StateNonexistent HartState = iota
	StateHalted
	StateRunning
	StateWaiting
	StateBlocked
	StateUnavailable
)

func (s HartState) String() string {
	switch s {
	case StateNonexistent:
		return "nonexistent"
	case StateHalted:
		return "halted"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateBlocked:
		return "blocked"
	case StateUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// WaitReason is a bit in a hart's wait-reason set (spec §3). A hart
// becomes waiting when an instruction publishes a non-empty set of
// these.
type WaitReason uint32

const (
	WaitTensorLoad WaitReason = 1 << iota
	WaitPrefetch
	WaitCacheop
	WaitTensorFMA
	WaitTensorStore
	WaitReduce
	WaitTensorQuant
	WaitInterrupt
	WaitMessage
	WaitCredit0
	WaitCredit1
	WaitTensorLoadTenB
)

// Privilege is the hart's current privilege level.
type Privilege int

const (
	PrivU Privilege = iota
	PrivS
	PrivM
)

// ProgbufState is the debug-program-buffer execution sub-state (spec
// §3, §4.D).
type ProgbufState int

const (
	ProgbufIdle ProgbufState = iota
	ProgbufFetching
	ProgbufExecuted
	ProgbufError
	ProgbufException
)

// DebugCause records why a hart entered debug mode.
type DebugCause int

const (
	DebugCauseNone DebugCause = iota
	DebugCauseHaltReq
	DebugCauseEbreak
	DebugCauseStep
	DebugCauseHaveReset
)

// haltFlags holds the two per-hart latches the neighborhood's
// hastatus0/1 registers expose alongside halted and running (spec §3).
// Halted and running are read from State; resumeack and havereset are
// kept here because they persist across state transitions until
// explicitly cleared by a DM write.
type haltFlags struct {
	resumeack bool
	havereset bool
}

// Hart is one emulated RISC-V hardware thread. It is a tagged record
// over {State, wait-reason set, halted-latch bits, progbuf sub-state}
// per Design Notes §9, with a method surface implementing the total
// transition function spec §3 requires.
type Hart struct {
	ID HartID

	state      HartState
	waitReason WaitReason
	flags      haltFlags
	progbuf    ProgbufState
	debugCause DebugCause

	PC   uint64
	Priv Privilege

	// selected is maintained by the Debug Module from the owning
	// neighborhood's hactrl selection mask; the hart itself never
	// writes it.
	selected bool

	// blockedBy names the hart (on the same physical core) whose
	// exclusive region forced this hart into StateBlocked, for
	// diagnostics only.
	blockedBy *HartID

	// disabled reflects the shire's thread0_disable/thread1_disable
	// mask (§3): a disabled hart never leaves StateNonexistent.
	disabled bool

	// sys is a non-owning back-pointer for logging/identity only
	// (Design Notes §9: "Harts hold a weak reference... for logging
	// only"). It must never be used to mutate other harts directly.
	sys *System

	// tensorError is CSR_TENSOR_ERROR (§4.E/§7): cacheop/tensor
	// failures accumulate bits here instead of trapping.
	tensorError uint32

	// asyncTail, when non-nil, is a long-latency operation's
	// per-cycle poll function (Design Notes §9: "model as per-hart
	// state machines polled once per cycle in the async tail").
	// It returns true when the operation has completed and should be
	// cleared, clearing the corresponding WaitReason bits.
	asyncTail func(h *Hart) (done bool, clears WaitReason)

	// progbufInstrs holds the two pending 32-bit instruction words
	// written via NXPROGBUF0/1 / AXPROGBUF0/1 (§4.D).
	progbufInstrs [2]uint32
	progbufCommitted bool

	// singleStep, when non-nil, bounds the PC range the scheduler
	// treats as "inside the step" for spec §4.F's single-step logic.
	singleStep *stepRange
}

type stepRange struct {
	lo, hi uint64
}

// AgentID implements Agent.
func (h *Hart) AgentID() string { return "hart:" + h.ID.String() }

// IsHart implements Agent.
func (h *Hart) IsHart() (HartID, bool) { return h.ID, true }

// State returns the hart's coarse execution state.
func (h *Hart) State() HartState { return h.state }

// WaitReasons returns the current wait-reason bitset.
func (h *Hart) WaitReasons() WaitReason { return h.waitReason }

// TensorError returns the current CSR_TENSOR_ERROR value.
func (h *Hart) TensorError() uint32 { return h.tensorError }

// SetTensorErrorBit sets a bit in CSR_TENSOR_ERROR, as cacheop/tensor
// failures do (§4.E/§7); these never trap.
func (h *Hart) SetTensorErrorBit(bit TensorErrorBit) { h.tensorError |= uint32(bit) }

// ClearTensorError implements the CSR write path for CSR_TENSOR_ERROR.
func (h *Hart) ClearTensorError() { h.tensorError = 0 }

// Selected reports whether the DM's current selection mask includes
// this hart (spec §4.D).
func (h *Hart) Selected() bool { return h.selected }

// publishWait transitions a running hart to StateWaiting when an
// instruction publishes a non-empty wait-reason set (spec §4.F
// "Suspension").
func (h *Hart) publishWait(reasons WaitReason) {
	if reasons == 0 {
		return
	}
	h.waitReason |= reasons
	if h.state == StateRunning {
		h.state = StateWaiting
	}
}

// clearWait removes the given reasons from the wait set; if the set
// becomes empty the hart returns to StateRunning (unless it has since
// been halted by the DM).
func (h *Hart) clearWait(reasons WaitReason) {
	h.waitReason &^= reasons
	if h.waitReason == 0 && h.state == StateWaiting {
		h.state = StateRunning
	}
}

// block transitions the hart to StateBlocked because another hart on
// the same physical core entered an exclusive region (spec §4.F).
func (h *Hart) block(by HartID) {
	h.state = StateBlocked
	h.blockedBy = &by
}

// unblock releases a blocked hart back to StateRunning.
func (h *Hart) unblock() {
	if h.state == StateBlocked {
		h.state = StateRunning
	}
	h.blockedBy = nil
}

// enterHalt transitions the hart to StateHalted with the given cause
// (spec §3, §4.D). It is the single entry point for DM halts, haltreq
// force-halts, and breakpoint-triggered halts.
func (h *Hart) enterHalt(cause DebugCause) {
	h.state = StateHalted
	h.debugCause = cause
	h.waitReason = 0
	if cause == DebugCauseHaveReset {
		h.flags.havereset = true
	}
}

// resume transitions a halted, selected hart back to running and sets
// resumeack (spec §4.D "DM resume").
func (h *Hart) resume() {
	if h.state != StateHalted {
		return
	}
	h.state = StateRunning
	h.flags.resumeack = true
	h.progbuf = ProgbufIdle
}

// clearResumeAck implements "resumereq 1->0: clear resumeack in each
// affected hart" (spec §4.D).
func (h *Hart) clearResumeAck() { h.flags.resumeack = false }

// ackHaveReset clears the havereset latch (spec §4.D "ackhavereset").
func (h *Hart) ackHaveReset() { h.flags.havereset = false }

// coldReset re-initializes a hart to its post-cold-reset state: PC set
// to the shire boot address, privilege M, all latches and wait state
// cleared (spec §3 "Lifecycles").
func (h *Hart) coldReset(bootPC uint64) {
	h.state = StateRunning
	if h.disabled {
		h.state = StateNonexistent
	}
	h.waitReason = 0
	h.flags = haltFlags{}
	h.progbuf = ProgbufIdle
	h.progbufCommitted = false
	h.progbufInstrs = [2]uint32{}
	h.debugCause = DebugCauseNone
	h.tensorError = 0
	h.blockedBy = nil
	h.singleStep = nil
	h.PC = bootPC
	h.Priv = PrivM
}

// warmReset preserves the disable mask but clears wait/halt flags and
// tensor error state, per spec §3 "Lifecycles". PC and privilege are
// left as-is unless the hart was disabled, in which case it goes
// nonexistent.
func (h *Hart) warmReset() {
	if h.disabled {
		h.state = StateNonexistent
		return
	}
	h.state = StateRunning
	h.waitReason = 0
	h.flags = haltFlags{}
	h.progbuf = ProgbufIdle
	h.progbufCommitted = false
	h.debugCause = DebugCauseNone
	h.blockedBy = nil
	h.tensorError = 0
}

// setDisabled applies a thread{0,1}_disable mask bit (spec §3
// "Disable-mask writes recompute the active set of harts").
func (h *Hart) setDisabled(disabled bool) {
	h.disabled = disabled
	if disabled {
		h.state = StateNonexistent
	} else if h.state == StateNonexistent {
		h.state = StateRunning
	}
}
