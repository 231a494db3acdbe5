package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	faultAt map[uint64]bool
}

func (f *fakeTranslator) Translate(hart HartID, vaddr uint64, nbytes int, at AccessType, cacheop bool) (uint64, error) {
	if f.faultAt[vaddr] {
		return 0, &PageFault{VAddr: vaddr, Type: at}
	}
	return vaddr, nil // identity map
}

func testTopology() Topology {
	return Topology{
		Shires: 1, NeighborhoodsPerShire: 1, MinionsPerNeighborhood: 1,
		CacheBanksPerShire: 4, PLICSources: 4, PLICTargets: 1,
		ScratchpadSets: 4, ScratchpadWays: 4,
	}
}

func TestLockTableBasics(t *testing.T) {
	lt := NewLockTable(4, 4)
	require.False(t, lt.IsLocked(0, 0))
	lt.lock(0, 0, 0x100)
	require.True(t, lt.IsLocked(0, 0))
	require.Equal(t, 1, lt.LockedCount(0))
	way, ok := lt.findByPAddr(0, 0x100)
	require.True(t, ok)
	require.Equal(t, 0, way)
	lt.Unlock(0, 0)
	require.False(t, lt.IsLocked(0, 0))
}

func TestLockTableClearAllButLastTwoSets(t *testing.T) {
	lt := NewLockTable(4, 1)
	for s := 0; s < 4; s++ {
		lt.lock(s, 0, uint64(s))
	}
	lt.ClearAllButLastTwoSets()
	require.False(t, lt.IsLocked(0, 0))
	require.False(t, lt.IsLocked(1, 0))
	require.True(t, lt.IsLocked(2, 0))
	require.True(t, lt.IsLocked(3, 0))
}

func TestDoCacheopLockSWRespectsWaysMinusOneInvariant(t *testing.T) {
	cm := NewCacheManager(testTopology(), 1)
	h := &Hart{ID: HartID{}}
	tr := &fakeTranslator{faultAt: map[uint64]bool{}}

	// ways=4, so at most ways-1=3 locks may coexist in a set.
	for i := 0; i < 3; i++ {
		cm.DoCacheop(h, CacheopRequest{Op: CacheopLockSW, Set: 0, Way: i, VAddr: uint64(0x1000 + i)}, tr)
	}
	require.Zero(t, h.TensorError())

	cm.DoCacheop(h, CacheopRequest{Op: CacheopLockSW, Set: 0, Way: 3, VAddr: 0x2000}, tr)
	require.NotZero(t, h.TensorError()&uint32(TensorErrLockConflict))
}

func TestDoCacheopLockSWTranslationFailureSetsBit(t *testing.T) {
	cm := NewCacheManager(testTopology(), 1)
	h := &Hart{ID: HartID{}}
	tr := &fakeTranslator{faultAt: map[uint64]bool{0x4000: true}}

	cm.DoCacheop(h, CacheopRequest{Op: CacheopLockSW, Set: 0, Way: 0, VAddr: 0x4000}, tr)
	require.Equal(t, uint32(TensorErrTranslation), h.TensorError())
}

func TestDoCacheopEvictVATensorMaskSkipsIterations(t *testing.T) {
	cm := NewCacheManager(testTopology(), 1).WithScratchpadRegion(0x5000, 0x1000)
	h := &Hart{ID: HartID{}}
	tr := &fakeTranslator{faultAt: map[uint64]bool{}}

	// Mask bit 0 off: the iteration that would touch 0x5000 (DestLevel>1,
	// in scratchpad) never runs, so no tensor error is recorded.
	cm.DoCacheop(h, CacheopRequest{
		Op: CacheopEvictVA, VAddr: 0x5000, Stride: 0x1000, Count: 0,
		TensorMaskEnabled: true, TensorMask: 0, DestLevel: 2,
	}, tr)
	require.Zero(t, h.TensorError())
}

func TestDoCacheopEvictVAIntoScratchpadAtDestLevel2(t *testing.T) {
	cm := NewCacheManager(testTopology(), 1).WithScratchpadRegion(0x5000, 0x1000)
	h := &Hart{ID: HartID{}}
	tr := &fakeTranslator{faultAt: map[uint64]bool{}}

	cm.DoCacheop(h, CacheopRequest{
		Op: CacheopEvictVA, VAddr: 0x5000, Stride: 0x1000, Count: 0, DestLevel: 2,
	}, tr)
	require.NotZero(t, h.TensorError()&uint32(TensorErrLockConflict))
}

func TestSetControlByteAllBitClearsLockTable(t *testing.T) {
	cm := NewCacheManager(testTopology(), 1)
	h := &Hart{ID: HartID{}}
	lt := cm.tableFor(h)
	lt.lock(0, 0, 0x100)

	cm.SetControlByte(h, cacheCtrlAll)
	require.False(t, lt.IsLocked(0, 0))
}

func TestCacheManagerResetClearsEveryTable(t *testing.T) {
	cm := NewCacheManager(testTopology(), 2)
	h0 := &Hart{ID: HartID{Minion: 0, Thread: 0}}
	h1 := &Hart{ID: HartID{Minion: 0, Thread: 1}}
	cm.tableFor(h0).lock(0, 0, 1)
	cm.tableFor(h1).lock(0, 0, 2)

	cm.Reset()

	require.False(t, cm.tableFor(h0).IsLocked(0, 0))
	require.False(t, cm.tableFor(h1).IsLocked(0, 0))
}
