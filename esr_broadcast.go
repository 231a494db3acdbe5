package coresim

// Broadcast command word layout (spec §4.B "Broadcast writes", §6):
//
//	bits [39: 0] shire_mask  (one bit per shire; ascending bit order is the fan-out order)
//	bits [54:40] addr        (15-bit intra-shire sub-region address to replay at each target)
//	bits [59:55] sregion     (5-bit sub-region selector, opaque here: folded into the replayed offset)
//	bits [61:60] prot        (protection/ordering hint; recorded but not enforced by this model)
const (
	bcastShireMaskBits  = 40
	bcastShireMaskShift = 0
	bcastAddrShift      = 40
	bcastAddrBits       = 15
	bcastSRegionShift   = 55
	bcastSRegionBits    = 5
	bcastProtShift      = 60
	bcastProtBits       = 2
)

// Broadcast region register indices (spec §3, §4.B): a shire's
// broadcast_data latch is a register distinct from its three
// u/s/m-broadcast command registers. Writing broadcast_data only
// latches a payload; writing one of the command registers decodes
// {prot,sregion,addr,shire_mask} and replays the already-latched
// broadcast_data to every named target, leaving the latch itself
// unmodified.
const (
	bcastRegData = 0
	bcastRegU    = 1
	bcastRegS    = 2
	bcastRegM    = 3
)

// doBroadcast implements the ESRRegionBroadcast write path. regIdx
// selects which of the region's registers was written: bcastRegData
// only latches val into the issuing shire's broadcast_data, with no
// fan-out; bcastRegU/S/M decode val as a command word and replay the
// previously latched broadcast_data at the decoded sub-address against
// every shire named in shire_mask, in ascending shire-id order,
// isolating per-target errors (spec §4.B).
func (es *ESRStore) doBroadcast(agent Agent, issuingShire int, regIdx uint16, val uint64) error {
	sh := es.shireOf(uint8(issuingShire))

	if regIdx == bcastRegData {
		sh.broadcastData = val
		return nil
	}
	if regIdx != bcastRegU && regIdx != bcastRegS && regIdx != bcastRegM {
		return NewMemoryFault(FaultUnknownRegister, agent, val, 8)
	}

	cmd := val
	data := sh.broadcastData
	shireMask := extractBits(cmd, bcastShireMaskShift, bcastShireMaskBits)
	addr := extractBits(cmd, bcastAddrShift, bcastAddrBits)
	sregion := extractBits(cmd, bcastSRegionShift, bcastSRegionBits)

	// Reconstruct a neighborhood-region ESR offset from the 15-bit
	// intra-shire address: sub-region selects neighborhood-vs-other,
	// addr supplies the neighborhood index and register offset. This
	// model only replays neighborhood-region writes, the only
	// broadcast target the spec's example scenarios exercise; other
	// sub-regions are rejected as unknown rather than silently dropped.
	if sregion != 0 {
		return NewMemoryFault(FaultUnknownRegister, agent, cmd, 8)
	}
	neigh := uint8(extractBits(addr, 10, 5))
	targetRegIdx := uint16(extractBits(addr, 0, 10))

	for i := 0; i < 40; i++ {
		if shireMask&(uint64(1)<<uint(i)) == 0 {
			continue
		}
		target := es.shireOf(uint8(i))
		if target == nil {
			continue
		}
		if neigh == esrAllNeighborhoods {
			for n := range target.neighborhoods {
				if err := target.neighborhoods[n].write(targetRegIdx, data); err != nil {
					es.warnBroadcastTarget(uint8(i), uint8(n), err)
				}
			}
			continue
		}
		if int(neigh) >= len(target.neighborhoods) {
			es.warnBroadcastTarget(uint8(i), neigh, NewMemoryFault(FaultUnmapped, agent, addr, 8))
			continue
		}
		if err := target.neighborhoods[neigh].write(targetRegIdx, data); err != nil {
			es.warnBroadcastTarget(uint8(i), neigh, err)
		}
	}
	return nil
}
