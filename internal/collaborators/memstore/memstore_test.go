package memstore

import (
	"context"
	"testing"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
)

func testDeployment(t *testing.T, b byte) types.SubgraphDeploymentID {
	t.Helper()
	var id types.SubgraphDeploymentID
	for i := range id {
		id[i] = b
	}
	return id
}

// testAllocationID generates a unique on-chain-looking allocation id for
// fixtures, the way the teacher's tests lean on helper/uuid (itself backed
// by go-uuid) rather than hand-picking ids that might collide.
func testAllocationID(t *testing.T) string {
	t.Helper()
	id, err := uuid.GenerateUUID()
	require.NoError(t, err)
	return "0x" + id
}

func TestNetworkEnsureGlobalIndexingRuleIsIdempotent(t *testing.T) {
	n := NewNetwork(types.NetworkSpecification{NetworkIdentifier: "eip155:1"})
	ctx := context.Background()

	require.NoError(t, n.EnsureGlobalIndexingRule(ctx))
	require.NoError(t, n.EnsureGlobalIndexingRule(ctx))

	rules, err := n.IndexingRules(ctx, false)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, types.IdentifierTypeGlobal, rules[0].IdentifierType)
}

func TestNetworkIndexingRulesMergesGlobal(t *testing.T) {
	n := NewNetwork(types.NetworkSpecification{NetworkIdentifier: "eip155:1"})
	ctx := context.Background()

	amount := uint64(5)
	require.NoError(t, n.PutIndexingRule(types.IndexingRule{
		Identifier:         types.GlobalIdentifier,
		IdentifierType:     types.IdentifierTypeGlobal,
		DecisionBasis:      types.DecisionBasisAlways,
		AllocationLifetime: &amount,
		ProtocolNetwork:    "eip155:1",
	}))
	dep := testDeployment(t, 0xaa)
	require.NoError(t, n.PutIndexingRule(types.IndexingRule{
		Identifier:      dep.String(),
		IdentifierType:  types.IdentifierTypeDeployment,
		DecisionBasis:   types.DecisionBasisRules,
		ProtocolNetwork: "eip155:1",
	}))

	rules, err := n.IndexingRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		if r.IdentifierType == types.IdentifierTypeDeployment {
			require.Equal(t, &amount, r.AllocationLifetime)
		}
	}
}

func TestNetworkStoreAndFetchPOIDisputes(t *testing.T) {
	n := NewNetwork(types.NetworkSpecification{NetworkIdentifier: "eip155:1"})
	ctx := context.Background()

	dispute := types.POIDispute{
		AllocationID:    "0x1",
		ProtocolNetwork: "eip155:1",
		ClosedEpoch:     10,
		Status:          types.DisputeStatusPotential,
	}
	stored, err := n.StorePOIDisputes(ctx, []types.POIDispute{dispute})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	found, err := n.FetchPOIDisputes(ctx, types.DisputeStatusPotential, 10, "eip155:1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "0x1", found[0].AllocationID)

	notFound, err := n.FetchPOIDisputes(ctx, types.DisputeStatusValid, 10, "eip155:1")
	require.NoError(t, err)
	require.Empty(t, notFound)
}

func TestNetworkAllocationLifecycleFixtures(t *testing.T) {
	n := NewNetwork(types.NetworkSpecification{NetworkIdentifier: "eip155:1"})
	ctx := context.Background()
	dep := testDeployment(t, 0xbb)
	allocationID := testAllocationID(t)

	n.PutAllocation(types.Allocation{ID: allocationID, SubgraphDeployment: dep, Status: types.AllocationStatusActive, CreatedAtEpoch: 1})

	active, err := n.Allocations(ctx, types.AllocationStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	decision := types.AllocationDecision{Deployment: dep, ToAllocate: false}
	require.NoError(t, n.CloseEligibleAllocations(ctx, decision, active, 5))

	closed, err := n.Allocations(ctx, types.AllocationStatusClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].ClosedAtEpoch)
	require.Equal(t, uint64(5), *closed[0].ClosedAtEpoch)
}

func TestGraphNodeEnsureAndRemove(t *testing.T) {
	g := NewGraphNode()
	ctx := context.Background()
	dep := testDeployment(t, 0xcc)

	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.Ensure(ctx, dep.GraphNodeName(), dep))

	deployments, err := g.SubgraphDeployments(ctx)
	require.NoError(t, err)
	require.Contains(t, deployments, dep)

	require.NoError(t, g.Remove(ctx, dep))
	deployments, err = g.SubgraphDeployments(ctx)
	require.NoError(t, err)
	require.NotContains(t, deployments, dep)
}

func TestGraphNodeProofOfIndexing(t *testing.T) {
	g := NewGraphNode()
	ctx := context.Background()
	dep := testDeployment(t, 0xdd)
	g.SetProofOfIndexing(dep, "indexer-1", []byte{1, 2, 3})

	poi, err := g.ProofOfIndexing(ctx, dep, collaborators.BlockPointer{Number: 1, Hash: "0xblock"}, "indexer-1")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, poi)
}
