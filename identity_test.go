package coresim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHartIDString(t *testing.T) {
	id := HartID{Shire: 1, Neighborhood: 2, Minion: 3, Thread: 1}
	require.Equal(t, "1.2.3.1", id.String())
}

func TestBusAgentIsNotAHart(t *testing.T) {
	_, ok := AgentCLI.IsHart()
	require.False(t, ok)
	require.Equal(t, "cli", AgentCLI.AgentID())
}

func TestTopologyHartsPerNeighborhood(t *testing.T) {
	topo := DefaultTopology()
	require.Equal(t, 16, topo.HartsPerNeighborhood())
}

func TestHartIndexInNeighborhood(t *testing.T) {
	require.Equal(t, 0, HartIndexInNeighborhood(0, 0))
	require.Equal(t, 1, HartIndexInNeighborhood(0, 1))
	require.Equal(t, 2, HartIndexInNeighborhood(1, 0))
	require.Equal(t, 15, HartIndexInNeighborhood(7, 1))
}
