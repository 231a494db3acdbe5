package coresim

// dmctrl bit positions (spec §6): a single 32-bit control register.
// hartsel is assembled from two disjoint fields, matching the spec's
// exact bit positions.
const (
	dmctrlDmActive        = 1 << 0
	dmctrlNdmReset        = 1 << 1
	dmctrlClrResetHaltReq = 1 << 2
	dmctrlSetResetHaltReq = 1 << 3
	dmctrlHasel           = 1 << 26
	dmctrlAckHaveReset    = 1 << 28
	dmctrlHartReset       = 1 << 29
	dmctrlResumeReq       = 1 << 30
	dmctrlHaltReq         = 1 << 31

	dmctrlHartselLoShift = 0
	dmctrlHartselLoBits  = 10
	dmctrlHartselHiShift = 16
	dmctrlHartselHiBits  = 4
)

// DebugModule is the chip-wide JTAG-like control tile (spec §4.D): one
// dmctrl register, a hart-selection mechanism (single hartsel, or the
// hasel-gated set maintained per-neighborhood by hactrl writes), and
// the program-buffer commit path already implemented on hartBank/Hart.
type DebugModule struct {
	sys    *System
	dmctrl uint32
}

// NewDebugModule constructs a DM bound to sys.
func NewDebugModule(sys *System) *DebugModule { return &DebugModule{sys: sys} }

func (dm *DebugModule) hartsel() int {
	lo := extractBits(uint64(dm.dmctrl), dmctrlHartselLoShift, dmctrlHartselLoBits)
	hi := extractBits(uint64(dm.dmctrl), dmctrlHartselHiShift, dmctrlHartselHiBits)
	return int(hi<<dmctrlHartselLoBits | lo)
}

// targetHarts returns the harts a one-shot DM request applies to: the
// hasel-selected set (hactrl selection across every neighborhood) when
// dmctrl.hasel is set, otherwise the single hart named by hartsel.
func (dm *DebugModule) targetHarts() []*Hart {
	if dm.dmctrl&dmctrlHasel != 0 {
		var out []*Hart
		for _, h := range dm.sys.AllHarts() {
			if h.selected {
				out = append(out, h)
			}
		}
		return out
	}
	id, ok := hartIDFromFlatIndex(dm.sys.Topo, dm.hartsel())
	if !ok {
		return nil
	}
	h := dm.sys.HartAt(int(id.Shire), int(id.Neighborhood), HartIndexInNeighborhood(id.Minion, id.Thread))
	if h == nil {
		return nil
	}
	return []*Hart{h}
}

// hartIDFromFlatIndex is the inverse of flatHartIndex, used to decode
// dmctrl's hartsel field.
func hartIDFromFlatIndex(topo Topology, idx int) (HartID, bool) {
	hpn := topo.HartsPerNeighborhood()
	perShire := topo.NeighborhoodsPerShire * hpn
	if idx < 0 || idx >= topo.Shires*perShire {
		return HartID{}, false
	}
	shire := idx / perShire
	rem := idx % perShire
	neigh := rem / hpn
	intra := rem % hpn
	return HartID{
		Shire:        uint8(shire),
		Neighborhood: uint8(neigh),
		Minion:       uint8(intra / 2),
		Thread:       uint8(intra % 2),
	}, true
}

// WriteDMCtrl applies a new dmctrl value. Per spec §9's open question,
// the source "warns and then executes [simultaneous request bits] in
// a fixed priority order"; this implementation resolves ties by
// processing bits from most to least significant (haltreq first, then
// resumereq, hartreset, ackhavereset, hasel, the resethalt pair,
// ndmreset, dmactive), which is the order the register's own bit
// numbering suggests and the one this model commits to. A write that
// sets more than one of resumereq, hartreset, ackhavereset,
// setresethaltreq and clrresethaltreq first logs a `debug` warning.
func (dm *DebugModule) WriteDMCtrl(val uint32) {
	prevActive := dm.dmctrl&dmctrlDmActive != 0
	newActive := val&dmctrlDmActive != 0

	if prevActive && !newActive {
		// spec §4.D: "dmactive 1->0: reset the debug module and clear
		// all neighborhood debug state."
		dm.dmctrl = 0
		dm.sys.ESR.resetNeighborhoodDebugState()
		return
	}
	if !newActive {
		// spec §4.D: "dmactive 0: ignore further requests."
		dm.dmctrl = val
		return
	}

	prevResumeReq := dm.dmctrl&dmctrlResumeReq != 0
	prevHaltReq := dm.dmctrl&dmctrlHaltReq != 0
	dm.dmctrl = val

	reqBits := 0
	for _, b := range []uint32{dmctrlResumeReq, dmctrlHartReset, dmctrlAckHaveReset, dmctrlSetResetHaltReq, dmctrlClrResetHaltReq} {
		if val&b != 0 {
			reqBits++
		}
	}
	if reqBits > 1 && dm.sys.log != nil {
		dm.sys.log.Warn(WarnDebug, HartID{}, "dmctrl write 0x%08x sets %d request bits at once; processing in fixed order", val, reqBits)
	}

	if val&dmctrlHaltReq != 0 && !prevHaltReq {
		for _, h := range dm.targetHarts() {
			if h.state == StateRunning {
				h.enterHalt(DebugCauseHaltReq)
			}
		}
	}
	if val&dmctrlResumeReq != 0 && !prevResumeReq {
		for _, h := range dm.targetHarts() {
			h.resume()
		}
	} else if val&dmctrlResumeReq == 0 && prevResumeReq {
		for _, h := range dm.targetHarts() {
			h.clearResumeAck()
		}
	}
	if val&dmctrlHartReset != 0 {
		for _, h := range dm.targetHarts() {
			h.coldReset(dm.sys.Cfg.BootPC[int(h.ID.Shire)])
			h.enterHalt(DebugCauseHaveReset)
		}
	}
	if val&dmctrlAckHaveReset != 0 {
		for _, h := range dm.targetHarts() {
			h.ackHaveReset()
		}
	}
	if val&dmctrlSetResetHaltReq != 0 {
		dm.setResetHalt(true)
	}
	if val&dmctrlClrResetHaltReq != 0 {
		dm.setResetHalt(false)
	}
	if val&dmctrlNdmReset != 0 {
		dm.sys.WarmReset()
	}
}

// setResetHalt applies setresethaltreq/clrresethaltreq to the
// currently targeted harts' owning neighborhood resethalt mask (see
// esr_registers.go's neighborhoodBank doc comment for why this isn't
// stored as a literal hactrl bit).
func (dm *DebugModule) setResetHalt(set bool) {
	for _, h := range dm.targetHarts() {
		nb, err := dm.sys.ESR.neighborhoodAt(dm.sys.ESR.shireOf(h.ID.Shire), h.ID.Neighborhood)
		if err != nil {
			continue
		}
		bit := uint16(1) << uint(HartIndexInNeighborhood(h.ID.Minion, h.ID.Thread))
		if set {
			nb.resethaltMask |= bit
		} else {
			nb.resethaltMask &^= bit
		}
	}
}

// ReadDMCtrl returns the current dmctrl value.
func (dm *DebugModule) ReadDMCtrl() uint32 { return dm.dmctrl }

// DMRegion maps dmctrl as a single 4-byte register at offset 0.
type DMRegion struct{ dm *DebugModule }

// NewDMRegion wraps dm for mapping into an AddressSpace.
func NewDMRegion(dm *DebugModule) *DMRegion { return &DMRegion{dm: dm} }

func (r *DMRegion) Read(agent Agent, offset uint64, n int, out []byte) error {
	if offset != 0 || n != 4 {
		return NewMemoryFault(FaultUnknownRegister, agent, offset, n)
	}
	writeUintLE(out, 4, uint64(r.dm.ReadDMCtrl()))
	return nil
}

func (r *DMRegion) Write(agent Agent, offset uint64, n int, in []byte) error {
	if offset != 0 || n != 4 {
		return NewMemoryFault(FaultUnknownRegister, agent, offset, n)
	}
	r.dm.WriteDMCtrl(uint32(readUintLE(in, 4)))
	return nil
}

func (r *DMRegion) Init(agent Agent, offset uint64, n int, in []byte) error {
	return r.Write(agent, offset, n, in)
}

func (r *DMRegion) DumpData(w DumpWriter, offset uint64, n int) error {
	buf := make([]byte, n)
	if err := r.Read(AgentCLI, offset, n, buf); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
