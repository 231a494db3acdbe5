package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHaltReqHaltsTargetedHart(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	require.Equal(t, StateRunning, h.State())

	hartIdx := flatHartIndex(sys.Topo, h.ID)
	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlHaltReq | uint32(hartIdx))
	require.Equal(t, StateHalted, h.State())
	require.Equal(t, DebugCauseHaltReq, h.debugCause)
}

func TestResumeReqSetsResumeAckThenClearsOnDeassert(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	hartIdx := uint32(flatHartIndex(sys.Topo, h.ID))

	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlHaltReq | hartIdx)
	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlResumeReq | hartIdx)
	require.Equal(t, StateRunning, h.State())
	require.True(t, h.flags.resumeack)

	sys.DM.WriteDMCtrl(dmctrlDmActive | hartIdx) // resumereq deasserted
	require.False(t, h.flags.resumeack)
}

func TestHaselTargetsSelectedHarts(t *testing.T) {
	sys := newTestSystem(t)
	h0 := sys.HartAt(0, 0, 0)
	h1 := sys.HartAt(0, 0, 1)
	h0.selected = true
	h1.selected = false

	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlHasel | dmctrlHaltReq)
	require.Equal(t, StateHalted, h0.State())
	require.Equal(t, StateRunning, h1.State())
}

func TestDMRegionRoundTrip(t *testing.T) {
	sys := newTestSystem(t)
	r := NewDMRegion(sys.DM)
	in := make([]byte, 4)
	writeUintLE(in, 4, uint64(dmctrlDmActive))
	require.NoError(t, r.Write(AgentCLI, 0, 4, in))

	out := make([]byte, 4)
	require.NoError(t, r.Read(AgentCLI, 0, 4, out))
	require.EqualValues(t, dmctrlDmActive, readUintLE(out, 4))
}

func TestComputeL0EmptySelectionAssertsNothing(t *testing.T) {
	sys := newTestSystem(t)
	st := ComputeL0(sys, 0, 0)
	require.False(t, st.AnySelected)
	require.False(t, st.AllHalted)
	require.False(t, st.AnyHalted)
}

func TestComputeL0AllHaltedRequiresEverySelectedHart(t *testing.T) {
	sys := newTestSystem(t)
	h0 := sys.HartAt(0, 0, 0)
	h1 := sys.HartAt(0, 0, 1)
	h0.selected = true
	h1.selected = true
	h0.enterHalt(DebugCauseHaltReq)

	st := ComputeL0(sys, 0, 0)
	require.True(t, st.AnySelected)
	require.True(t, st.AnyHalted)
	require.False(t, st.AllHalted, "h1 is still running")

	h1.enterHalt(DebugCauseHaltReq)
	st = ComputeL0(sys, 0, 0)
	require.True(t, st.AllHalted)
}

func TestComputeL1AndL2FoldUpFromL0(t *testing.T) {
	sys := newTestSystem(t)
	for _, h := range sys.HartsInNeighborhood(0, 0) {
		h.selected = true
		h.enterHalt(DebugCauseHaltReq)
	}
	l1 := ComputeL1(sys, 0)
	require.True(t, l1.AnySelected)
	require.True(t, l1.AllHalted)

	l2 := ComputeL2(sys)
	require.True(t, l2.AnySelected)
	require.True(t, l2.AllHalted, "every selected hart is halted; shires with no selection are skipped")
}

func TestHartResetResetHaltMask(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	hartIdx := uint32(flatHartIndex(sys.Topo, h.ID))

	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlSetResetHaltReq | hartIdx)
	nb, err := sys.ESR.neighborhoodAt(sys.ESR.shireOf(h.ID.Shire), h.ID.Neighborhood)
	require.NoError(t, err)
	require.NotZero(t, nb.resethaltMask)

	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlClrResetHaltReq | hartIdx)
	require.Zero(t, nb.resethaltMask)
}

func TestDmActiveLowIgnoresRequests(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	hartIdx := uint32(flatHartIndex(sys.Topo, h.ID))

	sys.DM.WriteDMCtrl(dmctrlHaltReq | hartIdx) // dmactive never set
	require.Equal(t, StateRunning, h.State(), "requests are ignored while dmactive is low")
}

func TestDmActiveHighToLowResetsModuleAndClearsSelection(t *testing.T) {
	sys := newTestSystem(t)
	h := sys.HartAt(0, 0, 0)
	hartIdx := uint32(flatHartIndex(sys.Topo, h.ID))

	sys.DM.WriteDMCtrl(dmctrlDmActive | dmctrlSetResetHaltReq | hartIdx)
	nb, err := sys.ESR.neighborhoodAt(sys.ESR.shireOf(h.ID.Shire), h.ID.Neighborhood)
	require.NoError(t, err)
	require.NotZero(t, nb.resethaltMask)
	h.selected = true

	sys.DM.WriteDMCtrl(0) // dmactive 1->0

	require.Zero(t, sys.DM.ReadDMCtrl())
	require.Zero(t, nb.resethaltMask)
	require.False(t, h.selected)
}
