package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressSpaceRoundTrip(t *testing.T) {
	as := NewAddressSpace()
	ram := NewRAM(4096)
	as.Map("ram", 0x1000, 4096, ram)

	in := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, as.Write(AgentCLI, 0x1000, 4, in))

	out := make([]byte, 4)
	require.NoError(t, as.Read(AgentCLI, 0x1000, 4, out))
	require.Equal(t, in, out)
}

func TestAddressSpaceUnmapped(t *testing.T) {
	as := NewAddressSpace()
	as.Map("ram", 0x1000, 4096, NewRAM(4096))

	err := as.Read(AgentCLI, 0, 4, make([]byte, 4))
	require.Error(t, err)
	var mf *MemoryFault
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultUnmapped, mf.Kind)
}

func TestAddressSpaceOverlapPanics(t *testing.T) {
	as := NewAddressSpace()
	as.Map("a", 0x1000, 0x1000, NewRAM(0x1000))
	require.Panics(t, func() {
		as.Map("b", 0x1800, 0x1000, NewRAM(0x1000))
	})
}

func TestReadOnlyRAMRejectsWrites(t *testing.T) {
	as := NewAddressSpace()
	as.Map("bootrom", 0, 0x100, NewReadOnlyRAM(0x100))

	err := as.Write(AgentCLI, 0, 4, []byte{1, 2, 3, 4})
	require.Error(t, err)
	var mf *MemoryFault
	require.ErrorAs(t, err, &mf)
	require.Equal(t, FaultReadOnly, mf.Kind)

	// Init bypasses the read-only check — used for preloading images.
	require.NoError(t, as.Init(AgentCLI, 0, 4, []byte{1, 2, 3, 4}))
	out := make([]byte, 4)
	require.NoError(t, as.Read(AgentCLI, 0, 4, out))
	require.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestMemoryFaultErrorWithNilAgent(t *testing.T) {
	err := NewMemoryFault(FaultUnmapped, nil, 0x40, 8)
	require.NotPanics(t, func() { _ = err.Error() })
}

func TestUintLERoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	writeUintLE(buf, 8, 0x0123456789abcdef)
	require.Equal(t, uint64(0x0123456789abcdef), readUintLE(buf, 8))
}
