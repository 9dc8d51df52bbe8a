package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/stretchr/testify/require"
)

func writeSpec(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadNetworkSpecifications(t *testing.T) {
	dir := t.TempDir()
	writeSpec(t, dir, "mainnet.hcl", `
networkIdentifier = "eip155:1"
allocateOnNetworkSubgraph = true
indexerOptions {
  allocationManagementMode = "auto"
  poiDisputableEpochs = 1
}
`)

	specs, err := LoadNetworkSpecifications(dir)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.Equal(t, "eip155:1", specs[0].NetworkIdentifier)
	require.True(t, specs[0].AllocateOnNetworkSubgraph)
	require.Equal(t, types.AllocationManagementAuto, specs[0].IndexerOptions.AllocationManagementMode)
	require.Equal(t, uint64(1), specs[0].IndexerOptions.PoiDisputableEpochs)
}

func TestValidateRejectsDuplicateNetworkIdentifier(t *testing.T) {
	specs := []types.NetworkSpecification{
		{NetworkIdentifier: "eip155:1"},
		{NetworkIdentifier: "eip155:1"},
	}
	err := Validate(specs)
	require.Error(t, err)
}

func TestValidateRejectsMissingNetworkIdentifier(t *testing.T) {
	err := Validate([]types.NetworkSpecification{{}})
	require.Error(t, err)
}

func TestValidateAcceptsDistinctNetworks(t *testing.T) {
	specs := []types.NetworkSpecification{
		{NetworkIdentifier: "eip155:1"},
		{NetworkIdentifier: "eip155:42161"},
	}
	require.NoError(t, Validate(specs))
}
