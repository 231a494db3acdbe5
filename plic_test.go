package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPLIC(nSources, nTargets int) (*PLIC, []bool) {
	notified := make([]bool, nTargets)
	targets := make([]Target, nTargets)
	for i := range targets {
		i := i
		targets[i] = Target{NameID: "t", AddressID: i, Notify: func(raise bool) { notified[i] = raise }}
	}
	return NewPLIC(nSources, nTargets, targets), notified
}

func TestPLICClaimCompleteLowestIDTiebreak(t *testing.T) {
	p, notified := newTestPLIC(4, 1)
	p.SetEnable(0, 1, true)
	p.SetEnable(0, 2, true)
	p.SetPriority(1, 5)
	p.SetPriority(2, 5)
	p.SetPending(1, true)
	p.SetPending(2, true)

	require.True(t, notified[0])
	require.EqualValues(t, 1, p.MaxID(0))

	id := p.Claim(0)
	require.EqualValues(t, 1, id)
	require.EqualValues(t, 2, p.MaxID(0), "claimed source drops out; next lowest id wins")

	p.Complete(0, id)
	require.EqualValues(t, 2, p.MaxID(0), "completing source 1 only clears in-flight; it stays non-pending until re-raised")

	p.SetPending(1, true)
	require.EqualValues(t, 1, p.MaxID(0), "re-pending after complete makes it claimable again")
}

func TestPLICThresholdGating(t *testing.T) {
	p, _ := newTestPLIC(2, 1)
	p.SetEnable(0, 1, true)
	p.SetPriority(1, 3)
	p.SetPending(1, true)
	p.SetThreshold(0, 3)
	require.EqualValues(t, 0, p.MaxID(0), "priority must be strictly greater than threshold, so no source qualifies")

	p.SetThreshold(0, 2)
	require.EqualValues(t, 1, p.Claim(0), "now claimable")
}

func TestPLICNotifyFiresOnlyOnChange(t *testing.T) {
	p, notified := newTestPLIC(1, 1)
	p.SetEnable(0, 0, true)
	p.SetPriority(0, 1)
	notified[0] = false

	p.SetPending(0, true)
	require.True(t, notified[0])
	notified[0] = false

	p.SetPending(0, true) // no change
	require.False(t, notified[0])
}

func TestPLICPendingBitmap(t *testing.T) {
	p, _ := newTestPLIC(4, 1)
	p.SetPending(1, true)
	p.SetPending(3, true)
	require.EqualValues(t, 0b1010, p.Pending())
}

func TestPLICRegionPendingIsReadOnly(t *testing.T) {
	p, _ := newTestPLIC(4, 1)
	r := NewPLICRegion(p, 4, 1)
	err := r.Write(AgentCLI, plicPendingBase, 4, []byte{1, 0, 0, 0})
	require.Error(t, err)
	var mf *MemoryFault
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultReadOnly, mf.Kind)
}

func TestPLICRegionClaimComplete(t *testing.T) {
	p, _ := newTestPLIC(4, 1)
	p.SetEnable(0, 2, true)
	p.SetPriority(2, 7)
	p.SetPending(2, true)

	r := NewPLICRegion(p, 4, 1)
	out := make([]byte, 4)
	require.NoError(t, r.Read(AgentCLI, plicContextBase+plicClaimOff, 4, out))
	require.EqualValues(t, 2, readUintLE(out, 4))

	require.NoError(t, r.Write(AgentCLI, plicContextBase+plicClaimOff, 4, out))
	require.EqualValues(t, 0, p.MaxID(0), "complete clears in-flight but the source stays non-pending")
	p.SetPending(2, true)
	require.EqualValues(t, 2, p.MaxID(0), "re-raising the source makes it claimable again")
}

func TestPLICRegionRejectsBadSize(t *testing.T) {
	p, _ := newTestPLIC(4, 1)
	r := NewPLICRegion(p, 4, 1)
	err := r.Read(AgentCLI, 0, 8, make([]byte, 8))
	require.Error(t, err)
}
