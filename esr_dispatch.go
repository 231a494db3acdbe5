package coresim

// ESRRegion adapts an *ESRStore to the Region interface (spec §4.A/§6):
// every ESR access must be exactly 8 bytes and 8-byte aligned.
type ESRRegion struct {
	store *ESRStore
}

// NewESRRegion wraps store for mapping into an AddressSpace.
func NewESRRegion(store *ESRStore) *ESRRegion { return &ESRRegion{store: store} }

func (r *ESRRegion) checkAccess(offset uint64, n int) error {
	if n != 8 {
		return NewMemoryFault(FaultBadSize, nil, offset, n)
	}
	if offset%8 != 0 {
		return NewMemoryFault(FaultMisaligned, nil, offset, n)
	}
	return nil
}

func (r *ESRRegion) Read(agent Agent, offset uint64, n int, out []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	v, err := r.store.read(agent, offset)
	if err != nil {
		return err
	}
	writeUintLE(out, n, v)
	return nil
}

func (r *ESRRegion) Write(agent Agent, offset uint64, n int, in []byte) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	return r.store.write(agent, offset, readUintLE(in, n))
}

func (r *ESRRegion) Init(agent Agent, offset uint64, n int, in []byte) error {
	return r.Write(agent, offset, n, in)
}

func (r *ESRRegion) DumpData(w DumpWriter, offset uint64, n int) error {
	if err := r.checkAccess(offset, n); err != nil {
		return err
	}
	v, err := r.store.read(AgentCLI, offset)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	writeUintLE(buf, 8, v)
	_, err = w.Write(buf)
	return err
}

// read is the top-level ESR read dispatch (spec §6 region selector).
func (es *ESRStore) read(agent Agent, offset uint64) (uint64, error) {
	a, err := decodeESRAddress(offset)
	if err != nil {
		return 0, err
	}
	shireID, err := es.resolveShireID(agent, a.shireID)
	if err != nil {
		return 0, err
	}
	sh := es.shireOf(shireID)
	if sh == nil {
		return 0, NewMemoryFault(FaultUnmapped, agent, offset, 8)
	}

	switch a.regionSel {
	case ESRRegionHart:
		hb, err := es.hartBankAt(sh, int(shireID), int(a.neighOrMS), int(a.bankOrHart))
		if err != nil {
			return 0, err
		}
		return hb.read(a.regIdx)
	case ESRRegionNeighborhood:
		nb, err := es.neighborhoodAt(sh, a.neighOrMS)
		if err != nil {
			return 0, err
		}
		return nb.read(a.regIdx, es.sys, int(shireID), int(a.neighOrMS))
	case ESRRegionShireCache:
		cb, err := es.cacheBankAt(sh, a.bankOrHart)
		if err != nil {
			return 0, err
		}
		return cb.read(a.regIdx)
	case ESRRegionShireOther:
		return sh.other.read(a.regIdx)
	case ESRRegionMemShire:
		mb, err := es.memShireAt(sh, a.neighOrMS)
		if err != nil {
			return 0, err
		}
		return mb.read(a.regIdx)
	case ESRRegionBroadcast:
		if a.regIdx != bcastRegData {
			return 0, nil
		}
		return sh.broadcastData, nil
	default:
		return 0, NewMemoryFault(FaultUnknownRegister, agent, offset, 8)
	}
}

// write is the top-level ESR write dispatch, applying the side effects
// register semantics demand (disable-mask recompute, hactrl selection
// update, progbuf commit, message-port delivery, broadcast fan-out).
func (es *ESRStore) write(agent Agent, offset uint64, val uint64) error {
	a, err := decodeESRAddress(offset)
	if err != nil {
		return err
	}
	shireID, err := es.resolveShireID(agent, a.shireID)
	if err != nil {
		return err
	}
	sh := es.shireOf(shireID)
	if sh == nil {
		return NewMemoryFault(FaultUnmapped, agent, offset, 8)
	}

	switch a.regionSel {
	case ESRRegionHart:
		hb, err := es.hartBankAt(sh, int(shireID), int(a.neighOrMS), int(a.bankOrHart))
		if err != nil {
			return err
		}
		commit, err := hb.write(a.regIdx, val)
		if err != nil {
			return err
		}
		h := es.sys.HartAt(int(shireID), int(a.neighOrMS), int(a.bankOrHart))
		if a.regIdx == hbMessagePort && h != nil {
			h.clearWait(WaitMessage)
		}
		if a.regIdx == hbCacheCtrl && h != nil && es.sys != nil {
			es.sys.Cache.SetControlByte(h, hb.cacheCtrl)
		}
		if commit && h != nil {
			h.progbufInstrs = hb.axprogbuf
			h.progbufCommitted = true
			h.progbuf = ProgbufFetching
		}
		return nil
	case ESRRegionNeighborhood:
		if a.neighOrMS == esrAllNeighborhoods {
			for i := range sh.neighborhoods {
				nb := &sh.neighborhoods[i]
				before := nb.selectionMask()
				if werr := nb.write(a.regIdx, val); werr != nil {
					es.warnBroadcastTarget(shireID, uint8(i), werr)
					continue
				}
				if a.regIdx == nbHACtrl && es.sys != nil {
					es.applySelectionMask(int(shireID), i, before, nb.selectionMask())
				}
			}
			return nil
		}
		nb, err := es.neighborhoodAt(sh, a.neighOrMS)
		if err != nil {
			return err
		}
		before := nb.selectionMask()
		if err := nb.write(a.regIdx, val); err != nil {
			return err
		}
		if a.regIdx == nbHACtrl && es.sys != nil {
			es.applySelectionMask(int(shireID), int(a.neighOrMS), before, nb.selectionMask())
		}
		return nil
	case ESRRegionShireCache:
		if a.bankOrHart == esrAllBanks {
			for i := range sh.cacheBanks {
				if werr := sh.cacheBanks[i].write(a.regIdx, val); werr != nil {
					es.warnBroadcastTarget(shireID, uint8(i), werr)
				}
			}
			return nil
		}
		cb, err := es.cacheBankAt(sh, a.bankOrHart)
		if err != nil {
			return err
		}
		return cb.write(a.regIdx, val)
	case ESRRegionShireOther:
		disableChanged, err := sh.other.write(a.regIdx, val)
		if err != nil {
			return err
		}
		if disableChanged && es.sys != nil {
			es.sys.recomputeDisabledHarts(int(shireID))
		}
		if a.regIdx == soCoopModeFlag && es.sys != nil {
			es.sys.Cache.FlushPrefetches(int(shireID))
		}
		return nil
	case ESRRegionMemShire:
		mb, err := es.memShireAt(sh, a.neighOrMS)
		if err != nil {
			return err
		}
		return mb.write(a.regIdx, val)
	case ESRRegionBroadcast:
		return es.doBroadcast(agent, int(shireID), a.regIdx, val)
	default:
		return NewMemoryFault(FaultUnknownRegister, agent, offset, 8)
	}
}

// warnBroadcastTarget logs a per-target failure during a fan-out
// write without aborting the remaining targets (spec §4.B "broadcast
// writes isolate per-target errors").
func (es *ESRStore) warnBroadcastTarget(shireID, target uint8, err error) {
	if es.sys == nil || es.sys.log == nil {
		return
	}
	es.sys.log.Warn(WarnESRs, HartID{Shire: shireID}, "broadcast target %d: %v", target, err)
}

func (es *ESRStore) neighborhoodAt(sh *shireESRs, idx uint8) (*neighborhoodBank, error) {
	if int(idx) >= len(sh.neighborhoods) {
		return nil, NewMemoryFault(FaultUnmapped, nil, uint64(idx), 8)
	}
	return &sh.neighborhoods[idx], nil
}

func (es *ESRStore) cacheBankAt(sh *shireESRs, idx uint8) (*shireCacheBank, error) {
	if idx == esrAllBanks {
		return nil, NewMemoryFault(FaultBadSize, nil, uint64(idx), 8) // broadcast sentinel not valid for direct R/W
	}
	if int(idx) >= len(sh.cacheBanks) {
		return nil, NewMemoryFault(FaultUnmapped, nil, uint64(idx), 8)
	}
	return &sh.cacheBanks[idx], nil
}

func (es *ESRStore) memShireAt(sh *shireESRs, idx uint8) (*memShireBank, error) {
	if int(idx) >= len(sh.memShire) {
		return nil, NewMemoryFault(FaultUnmapped, nil, uint64(idx), 8)
	}
	return &sh.memShire[idx], nil
}

func (es *ESRStore) hartBankAt(sh *shireESRs, shireIdx, neighIdx, intraIdx int) (*hartBank, error) {
	i := es.topo.hartBankIndex(neighIdx, intraIdx)
	if i < 0 || i >= len(sh.hartBanks) {
		return nil, NewMemoryFault(FaultUnmapped, nil, uint64(i), 8)
	}
	return &sh.hartBanks[i], nil
}

// applySelectionMask pushes a neighborhood's new hactrl selection mask
// onto the harts it names, and clears it from harts it no longer names
// (spec §4.D: "selected is maintained by the Debug Module").
func (es *ESRStore) applySelectionMask(shireIdx, neighIdx int, before, after uint16) {
	if before == after {
		return
	}
	harts := es.sys.HartsInNeighborhood(shireIdx, neighIdx)
	for i, h := range harts {
		if h == nil {
			continue
		}
		h.selected = after&(1<<uint(i)) != 0
	}
}

// resetNeighborhoodDebugState clears every neighborhood's hactrl
// selection mask and resethalt mask chip-wide, and drops every hart's
// selected latch to match (spec §4.D: "dmactive 1->0: reset the debug
// module and clear all neighborhood debug state"). It does not touch
// any other neighborhood register — only the debug-session state the
// DM itself drives.
func (es *ESRStore) resetNeighborhoodDebugState() {
	for si := range es.shires {
		sh := &es.shires[si]
		for ni := range sh.neighborhoods {
			sh.neighborhoods[ni].selMaskLow = 0
			sh.neighborhoods[ni].selMaskHigh = 0
			sh.neighborhoods[ni].resethaltMask = 0
		}
	}
	for _, h := range es.sys.AllHarts() {
		h.selected = false
	}
}

// recomputeDisabledHarts implements "disable-mask writes recompute the
// active set of harts" (spec §3) for one shire.
func (s *System) recomputeDisabledHarts(shireIdx int) {
	sh := &s.ESR.shires[shireIdx]
	for n := 0; n < s.Topo.NeighborhoodsPerShire; n++ {
		harts := s.HartsInNeighborhood(shireIdx, n)
		for i, h := range harts {
			if h == nil {
				continue
			}
			minion := uint8(i / 2)
			thread := uint8(i % 2)
			var disabled bool
			if thread == 0 {
				disabled = sh.other.thread0Disable&(1<<minion) != 0
			} else {
				disabled = sh.other.thread1Disable&(1<<minion) != 0
			}
			wasNonexistent := h.state == StateNonexistent
			h.setDisabled(disabled)
			if wasNonexistent && h.state != StateNonexistent {
				s.moveTo(h, &s.active)
			} else if !wasNonexistent && h.state == StateNonexistent {
				s.moveTo(h, &s.nonexistent)
			}
		}
	}
}
