package coresim

// ESR address decoding, per spec §6:
//
//	[63:37] region base constant   (stripped by AddressSpace before Region.Read/Write sees the offset)
//	[36:32] shire id (5 bits; all-ones = local shire, rewritten to the issuing hart's shire)
//	[31:22] region selector
//	[21:17] extended sub-region (reserved; spec names it "cache / rbox / shire-other" without
//	        further definition — kept as a must-be-zero field, matching how the spec itself
//	        leaves "rbox" undefined elsewhere)
//	[16:12] neighborhood selector (or memory-shire sub-bank selector)
//	[11: 8] bank selector (shire-cache region) or hart selector (hart region)
//	[ 7: 3] register offset, 8-byte granularity
//
// One exception, documented as an implementation decision: the
// shire-other region has no per-bank/per-hart sub-selector, so it
// reuses bits [11:3] as a flat 9-bit register index (room for the 32
// fast-local-barrier counters plus the rest of that bank) rather than
// wasting 4 bits on an unused bank/hart field.
const (
	esrShireBits       = 5
	esrShireShift      = 32
	esrRegionSelShift  = 22
	esrRegionSelBits   = 10
	esrSubRegionShift  = 17
	esrSubRegionBits   = 5
	esrNeighShift      = 12
	esrNeighBits       = 5
	esrBankOrHartShift = 8
	esrBankOrHartBits  = 4
	esrRegIdxShift     = 3
	esrRegIdxBits      = 5
	esrRegIdxWideShift = 3
	esrRegIdxWideBits  = 9

	esrLocalShireSentinel = 0x1F
	esrAllNeighborhoods   = 0x1F
	esrAllBanks           = 0xF
)

// ESRRegionSel is the top-level ESR region selector (bits 31:22).
type ESRRegionSel int

const (
	ESRRegionHart ESRRegionSel = iota
	ESRRegionNeighborhood
	ESRRegionShireCache
	ESRRegionShireOther
	ESRRegionMemShire
	ESRRegionBroadcast
)

func extractBits(v uint64, shift, nbits uint) uint64 {
	mask := uint64(1)<<nbits - 1
	return (v >> shift) & mask
}

// esrAddr is a decoded ESR address.
type esrAddr struct {
	shireID    uint8
	regionSel  ESRRegionSel
	subRegion  uint8
	neighOrMS  uint8 // neighborhood index, or memory-shire sub-bank index
	bankOrHart uint8 // cache bank index, or intra-neighborhood hart index
	regIdx     uint16
	raw        uint64
}

func decodeESRAddress(offset uint64) (esrAddr, error) {
	regionSelRaw := extractBits(offset, esrRegionSelShift, esrRegionSelBits)
	var regionSel ESRRegionSel
	switch regionSelRaw {
	case 0:
		regionSel = ESRRegionHart
	case 1:
		regionSel = ESRRegionNeighborhood
	case 2:
		regionSel = ESRRegionShireCache
	case 3:
		regionSel = ESRRegionShireOther
	case 4:
		regionSel = ESRRegionMemShire
	case 5:
		regionSel = ESRRegionBroadcast
	default:
		return esrAddr{}, NewMemoryFault(FaultUnknownRegister, nil, offset, 8)
	}

	a := esrAddr{
		shireID:    uint8(extractBits(offset, esrShireShift, esrShireBits)),
		regionSel:  regionSel,
		subRegion:  uint8(extractBits(offset, esrSubRegionShift, esrSubRegionBits)),
		neighOrMS:  uint8(extractBits(offset, esrNeighShift, esrNeighBits)),
		bankOrHart: uint8(extractBits(offset, esrBankOrHartShift, esrBankOrHartBits)),
		raw:        offset,
	}
	if regionSel == ESRRegionShireOther {
		a.regIdx = uint16(extractBits(offset, esrRegIdxWideShift, esrRegIdxWideBits))
	} else {
		a.regIdx = uint16(extractBits(offset, esrRegIdxShift, esrRegIdxBits))
	}
	if a.subRegion != 0 {
		return esrAddr{}, NewMemoryFault(FaultUnknownRegister, nil, offset, 8)
	}
	return a, nil
}

// resetKind classifies when a register's documented reset value is
// reapplied (spec §4.B).
type resetKind int

const (
	resetNone resetKind = iota
	resetCold
	resetWarm
	resetDebug
)

// ESRStore owns every ESR bank in the chip: per-shire neighborhoods,
// per-shire cache banks, per-shire "other" config, per-memory-shire
// banks, per-hart banks, and the per-shire broadcast latch. It is a
// Region (via ESRRegion) and is also driven directly by the Debug
// Module and scheduler for hastatus/hactrl access.
type ESRStore struct {
	topo   Topology
	sys    *System // non-owning back-pointer, for IPI/message-port routing and logging
	shires []shireESRs
}

type shireESRs struct {
	neighborhoods []neighborhoodBank
	cacheBanks    []shireCacheBank
	other         shireOtherBank
	memShire      [2]memShireBank // 0=DDRC, 1=MS
	broadcastData uint64
	hartBanks     []hartBank // indexed by intra-shire flat hart index (neighborhood*hartsPerNeighborhood + intraIdx)
}

// NewESRStore allocates every bank for the given topology, all at
// their cold-reset values.
func NewESRStore(topo Topology, sys *System) *ESRStore {
	es := &ESRStore{topo: topo, sys: sys}
	es.shires = make([]shireESRs, topo.Shires)
	for s := range es.shires {
		sh := &es.shires[s]
		sh.neighborhoods = make([]neighborhoodBank, topo.NeighborhoodsPerShire)
		sh.cacheBanks = make([]shireCacheBank, topo.CacheBanksPerShire)
		sh.hartBanks = make([]hartBank, topo.NeighborhoodsPerShire*topo.HartsPerNeighborhood())
		es.coldResetShire(s, uint8(s))
	}
	return es
}

func (es *ESRStore) shireOf(id uint8) *shireESRs {
	if int(id) >= len(es.shires) {
		return nil
	}
	return &es.shires[id]
}

// resolveShireID applies the local-shire sentinel rewrite (§4.B): a
// sentinel shire id is rewritten using the issuing hart's shire, and
// non-hart agents issuing a local-shire access are rejected.
func (es *ESRStore) resolveShireID(agent Agent, shireID uint8) (uint8, error) {
	if shireID != esrLocalShireSentinel {
		return shireID, nil
	}
	hid, ok := agent.IsHart()
	if !ok {
		return 0, NewMemoryFault(FaultLocalShireFromNonHart, agent, 0, 8)
	}
	return hid.Shire, nil
}

// CacheBanksPerShire is fixed at 4 by spec §4.B/§4.C.
const CacheBanksPerShire = 4
