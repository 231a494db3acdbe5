package coresim

// PLICRegion adapts a *PLIC to the Region interface using the
// register layout of spec §4.C/§6: a priority word per source, a
// read-only pending bitmap, a per-target enable bitmap, and a per-
// target threshold/claim-complete pair. All accesses are 4 bytes.
type PLICRegion struct {
	plic       *PLIC
	nSources   int
	nTargets   int
}

const (
	plicPriorityBase = 0x000000
	plicPendingBase  = 0x001000
	plicEnableBase   = 0x002000
	plicEnableStride = 0x080
	plicContextBase  = 0x200000
	plicContextStride = 0x1000
	plicThresholdOff = 0x0
	plicClaimOff     = 0x4
)

// NewPLICRegion wraps plic for mapping into an AddressSpace.
func NewPLICRegion(plic *PLIC, nSources, nTargets int) *PLICRegion {
	return &PLICRegion{plic: plic, nSources: nSources, nTargets: nTargets}
}

func (r *PLICRegion) checkAccess(offset uint64, n int) error {
	if n != 4 {
		return NewMemoryFault(FaultBadSize, nil, offset, n)
	}
	if offset%4 != 0 {
		return NewMemoryFault(FaultMisaligned, nil, offset, n)
	}
	return nil
}

func (r *PLICRegion) Read(agent Agent, offset uint64, n int, out []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	var v uint32
	switch {
	case offset >= plicPriorityBase && offset < plicPendingBase:
		id := int(offset-plicPriorityBase) / 4
		if id < len(r.plic.sources) {
			v = r.plic.sources[id].priority
		}
	case offset >= plicPendingBase && offset < plicEnableBase:
		word := int(offset-plicPendingBase) / 4
		pend := r.plic.Pending()
		v = uint32(pend >> uint(word*32))
	case offset >= plicEnableBase && offset < plicContextBase:
		rel := offset - plicEnableBase
		target := int(rel / plicEnableStride)
		word := int(rel%plicEnableStride) / 4
		v = r.enableWord(target, word)
	case offset >= plicContextBase:
		rel := offset - plicContextBase
		target := int(rel / plicContextStride)
		sub := rel % plicContextStride
		switch sub {
		case plicThresholdOff:
			if r.plic.clampTarget(target) {
				v = r.plic.targets[target].threshold
			}
		case plicClaimOff:
			v = r.plic.Claim(target)
		default:
			return NewMemoryFault(FaultUnknownRegister, agent, offset, n)
		}
	default:
		return NewMemoryFault(FaultUnmapped, agent, offset, n)
	}
	writeUintLE(out, 4, uint64(v))
	return nil
}

func (r *PLICRegion) enableWord(target, word int) uint32 {
	if !r.plic.clampTarget(target) {
		return 0
	}
	var v uint32
	for i := 0; i < 32; i++ {
		id := word*32 + i
		if id >= len(r.plic.sources) {
			break
		}
		if r.plic.targets[target].enable[id] {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (r *PLICRegion) Write(agent Agent, offset uint64, n int, in []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	val := uint32(readUintLE(in, 4))
	switch {
	case offset >= plicPriorityBase && offset < plicPendingBase:
		id := int(offset-plicPriorityBase) / 4
		r.plic.SetPriority(id, val)
	case offset >= plicPendingBase && offset < plicEnableBase:
		return NewMemoryFault(FaultReadOnly, agent, offset, n)
	case offset >= plicEnableBase && offset < plicContextBase:
		rel := offset - plicEnableBase
		target := int(rel / plicEnableStride)
		word := int(rel%plicEnableStride) / 4
		for i := 0; i < 32; i++ {
			id := word*32 + i
			if id >= len(r.plic.sources) {
				break
			}
			r.plic.SetEnable(target, id, val&(1<<uint(i)) != 0)
		}
	case offset >= plicContextBase:
		rel := offset - plicContextBase
		target := int(rel / plicContextStride)
		sub := rel % plicContextStride
		switch sub {
		case plicThresholdOff:
			r.plic.SetThreshold(target, val)
		case plicClaimOff:
			r.plic.Complete(target, val)
		default:
			return NewMemoryFault(FaultUnknownRegister, agent, offset, n)
		}
	default:
		return NewMemoryFault(FaultUnmapped, agent, offset, n)
	}
	return nil
}

func (r *PLICRegion) Init(agent Agent, offset uint64, n int, in []byte) error {
	return r.Write(agent, offset, n, in)
}

func (r *PLICRegion) DumpData(w DumpWriter, offset uint64, n int) error {
	buf := make([]byte, n)
	if err := r.Read(AgentCLI, offset, n, buf); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
