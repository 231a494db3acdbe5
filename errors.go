package coresim

import "fmt"

// FaultKind enumerates the memory/ESR/PLIC/system-controller fault
// taxonomy of spec §7.
type FaultKind int

const (
	FaultUnmapped FaultKind = iota
	FaultBadSize
	FaultMisaligned
	FaultReadOnly
	FaultUnknownRegister
	FaultLocalShireFromNonHart
)

func (k FaultKind) String() string {
	switch k {
	case FaultUnmapped:
		return "unmapped address"
	case FaultBadSize:
		return "unsupported access size"
	case FaultMisaligned:
		return "misaligned access"
	case FaultReadOnly:
		return "write to read-only register"
	case FaultUnknownRegister:
		return "unknown register"
	case FaultLocalShireFromNonHart:
		return "local-shire access from non-hart agent"
	default:
		return "unknown fault"
	}
}

// MemoryFault is raised by the memory fabric or any region when an
// access cannot be serviced. It carries enough context for the
// instruction executor to convert it into a load/store/instruction
// access fault, and for logging to attribute it to an agent.
type MemoryFault struct {
	Kind    FaultKind
	Agent   Agent
	Address uint64
	NBytes  int
}

func (e *MemoryFault) Error() string {
	agentID := "unknown"
	if e.Agent != nil {
		agentID = e.Agent.AgentID()
	}
	return fmt.Sprintf("memory fault: %s at addr=0x%x n=%d agent=%s",
		e.Kind, e.Address, e.NBytes, agentID)
}

// NewMemoryFault is the common constructor used by regions.
func NewMemoryFault(kind FaultKind, agent Agent, addr uint64, n int) *MemoryFault {
	return &MemoryFault{Kind: kind, Agent: agent, Address: addr, NBytes: n}
}

// TensorErrorBit enumerates the bits of CSR_TENSOR_ERROR set by
// cacheop/tensor failures (§4.E, §7). These never trap; they
// accumulate in the hart's tensor-error CSR and stop the iteration.
type TensorErrorBit uint32

const (
	TensorErrTranslation  TensorErrorBit = 1 << 7 // MMU/translation failure
	TensorErrLockConflict TensorErrorBit = 1 << 5 // lock conflict / set full
	TensorErrInvalidArg   TensorErrorBit = 1 << 9 // e.g. out-of-range minion id
)

// FatalError wraps an unhandled condition that must abort the
// simulation: trap-target-equals-source recursion, or an exception that
// isn't Debug_entry/Trap/instruction_restart/memory_error.
type FatalError struct {
	Reason string
	Hart   HartID
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s (hart %s)", e.Reason, e.Hart)
}
