package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeESRAddr(shireID uint8, regionSel ESRRegionSel, neighOrMS, bankOrHart uint8, regIdx uint16) uint64 {
	return uint64(shireID)<<esrShireShift |
		uint64(regionSel)<<esrRegionSelShift |
		uint64(neighOrMS)<<esrNeighShift |
		uint64(bankOrHart)<<esrBankOrHartShift |
		uint64(regIdx)<<esrRegIdxShift
}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Shires = 2
	cfg.NeighborhoodsPerShire = 2
	cfg.MinionsPerNeighborhood = 2
	cfg.BootPC = map[int]uint64{0: 0x1000, 1: 0x2000}
	return NewSystem(cfg, nil)
}

func TestDecodeESRAddressRoundTrip(t *testing.T) {
	addr := makeESRAddr(3, ESRRegionNeighborhood, 1, 0, nbHACtrl)
	a, err := decodeESRAddress(addr)
	require.NoError(t, err)
	require.Equal(t, uint8(3), a.shireID)
	require.Equal(t, ESRRegionNeighborhood, a.regionSel)
	require.Equal(t, uint8(1), a.neighOrMS)
	require.EqualValues(t, nbHACtrl, a.regIdx)
}

func TestDecodeESRAddressUnknownRegion(t *testing.T) {
	addr := uint64(7) << esrRegionSelShift
	_, err := decodeESRAddress(addr)
	require.Error(t, err)
}

func TestESRRegionRejectsBadSizeAndAlignment(t *testing.T) {
	sys := newTestSystem(t)
	r := NewESRRegion(sys.ESR)

	err := r.Read(AgentCLI, 0, 4, make([]byte, 4))
	require.Error(t, err)
	var mf *MemoryFault
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultBadSize, mf.Kind)

	err = r.Read(AgentCLI, 4, 8, make([]byte, 8))
	require.Error(t, err)
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultMisaligned, mf.Kind)
}

func TestHartBankCacheCtrlWiresToCacheManager(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	require.NotNil(t, h)

	lt := sys.Cache.tableFor(h)
	lt.lock(0, 0, 0x5000)
	require.True(t, lt.IsLocked(0, 0))

	addr := makeESRAddr(0, ESRRegionHart, 0, 0, hbCacheCtrl)
	require.NoError(t, sys.ESR.write(h, addr, cacheCtrlAll))

	require.False(t, lt.IsLocked(0, 0), "toggling the all-bit should clear every lock")

	v, err := sys.ESR.read(h, addr)
	require.NoError(t, err)
	require.EqualValues(t, cacheCtrlAll, v)
}

func TestHartBankMessagePortClearsWait(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	h.publishWait(WaitMessage)
	require.Equal(t, StateWaiting, h.State())

	addr := makeESRAddr(0, ESRRegionHart, 0, 0, hbMessagePort)
	require.NoError(t, sys.ESR.write(h, addr, 0xcafe))
	require.Equal(t, StateRunning, h.State())
}

func TestHartBankProgbufCommit(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	h.enterHalt(DebugCauseHaltReq)

	addr0 := makeESRAddr(0, ESRRegionHart, 0, 0, hbAXPROGBUF0)
	require.NoError(t, sys.ESR.write(h, addr0, 0x00000013)) // NOP-shaped word

	require.True(t, h.progbufCommitted)
	require.Equal(t, ProgbufFetching, h.progbuf)
	require.EqualValues(t, 0x00000013, h.progbufInstrs[0])
}

func TestNeighborhoodHACtrlUpdatesSelection(t *testing.T) {
	sys := newTestSystem(t)
	h0 := sys.HartAt(0, 0, 0)
	h1 := sys.HartAt(0, 0, 1)
	require.False(t, h0.Selected())

	addr := makeESRAddr(0, ESRRegionNeighborhood, 0, 0, nbHACtrl)
	require.NoError(t, sys.ESR.write(h0, addr, 0x1)) // select intra-index 0 only

	require.True(t, h0.Selected())
	require.False(t, h1.Selected())
}

func TestShireOtherThreadDisableRecomputesActiveSet(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0) // minion 0, thread 0
	require.Equal(t, StateRunning, h.State())
	require.True(t, listContains(sys.active, h))

	addr := makeESRAddr(0, ESRRegionShireOther, 0, 0, soThread0Disable)
	require.NoError(t, sys.ESR.write(h, addr, 0x1)) // disable minion 0's thread0

	require.Equal(t, StateNonexistent, h.State())
	require.True(t, listContains(sys.nonexistent, h))
	require.False(t, listContains(sys.active, h))
}

func TestBroadcastFanOutAscendingShireOrder(t *testing.T) {
	sys := newTestSystem(t)
	const neigh = 1
	addr := uint64(neigh)<<10 | uint64(nbMinionBootAddr)
	data := uint64(0xdead_beef)

	dataAddr := makeESRAddr(0, ESRRegionBroadcast, 0, 0, bcastRegData)
	require.NoError(t, sys.ESR.write(AgentCLI, dataAddr, data))

	// Retarget to shires 0 and 1 for this topology.
	cmd := uint64(0b11) | addr<<bcastAddrShift
	cmdAddr := makeESRAddr(0, ESRRegionBroadcast, 0, 0, bcastRegU)
	require.NoError(t, sys.ESR.write(AgentCLI, cmdAddr, cmd))

	require.Equal(t, data, sys.ESR.shires[0].neighborhoods[neigh].minionBootAddr)
	require.Equal(t, data, sys.ESR.shires[1].neighborhoods[neigh].minionBootAddr)
	require.Equal(t, data, sys.ESR.shires[0].broadcastData, "command write leaves the latch unmodified")
}

func TestBroadcastRejectsNonZeroSRegion(t *testing.T) {
	sys := newTestSystem(t)
	cmd := uint64(1) | uint64(1)<<bcastSRegionShift
	cmdAddr := makeESRAddr(0, ESRRegionBroadcast, 0, 0, bcastRegU)
	err := sys.ESR.write(AgentCLI, cmdAddr, cmd)
	require.Error(t, err)
}

func TestBroadcastDataLatchDoesNotFanOut(t *testing.T) {
	sys := newTestSystem(t)
	dataAddr := makeESRAddr(0, ESRRegionBroadcast, 0, 0, bcastRegData)
	require.NoError(t, sys.ESR.write(AgentCLI, dataAddr, 0x1234))

	v, err := sys.ESR.read(AgentCLI, dataAddr)
	require.NoError(t, err)
	require.EqualValues(t, 0x1234, v)
	require.Zero(t, sys.ESR.shires[1].broadcastData, "latching shire 0's data must not touch shire 1")
}

func TestLocalShireSentinelRequiresHartAgent(t *testing.T) {
	sys := newTestSystem(t)
	addr := makeESRAddr(esrLocalShireSentinel, ESRRegionShireOther, 0, 0, soShireConfig)
	_, err := sys.ESR.read(AgentCLI, addr)
	require.Error(t, err)
	var mf *MemoryFault
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultLocalShireFromNonHart, mf.Kind)

	h := sys.HartAt(1, 0, 0)
	v, err := sys.ESR.read(h, addr)
	require.NoError(t, err)
	require.EqualValues(t, 1, v) // resolved to h's own shire id
}

func TestColdResetClearsESRBanks(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	addr := makeESRAddr(0, ESRRegionNeighborhood, 0, 0, nbPMUCtrl)
	require.NoError(t, sys.ESR.write(h, addr, 0xdeadbeef))

	sys.ColdReset()

	v, err := sys.ESR.read(h, addr)
	require.NoError(t, err)
	require.Zero(t, v)
}
