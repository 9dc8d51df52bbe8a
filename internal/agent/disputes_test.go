package agent

import (
	"context"
	"testing"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/collaborators/memstore"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/stretchr/testify/require"
)

func epochPtr(e uint64) *uint64 { return &e }

func TestIdentifyPotentialDisputesClassifiesValidAndPotential(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)

	spec := types.NetworkSpecification{NetworkIdentifier: "eip155:1"}
	net := memstore.NewNetwork(spec)
	nc := NetworkContext{Spec: spec, Monitor: net, Network: net, Operator: net}

	dep := testDeploymentID(t, 0x20)
	net.SetBlock("0xblockhash", collaborators.BlockPointer{Number: 42, Hash: "0xblockhash"})
	graphNode.SetProofOfIndexing(dep, "indexer-1", []byte{0xAA})

	valid := types.Allocation{
		ID:                          "valid-alloc",
		Indexer:                     "indexer-1",
		SubgraphDeployment:          dep,
		POI:                         []byte{0xAA},
		ClosedAtEpoch:               epochPtr(7),
		ClosedAtEpochStartBlockHash: "0xblockhash",
		Status:                      types.AllocationStatusClosed,
	}
	potential := types.Allocation{
		ID:                          "potential-alloc",
		Indexer:                     "indexer-1",
		SubgraphDeployment:          dep,
		POI:                         []byte{0xBB},
		ClosedAtEpoch:               epochPtr(7),
		ClosedAtEpochStartBlockHash: "0xblockhash",
		Status:                      types.AllocationStatusClosed,
	}

	err := a.identifyPotentialDisputes(context.Background(), nc, []types.Allocation{valid, potential}, 7)
	require.NoError(t, err)

	validDisputes, err := net.FetchPOIDisputes(context.Background(), types.DisputeStatusValid, 7, "eip155:1")
	require.NoError(t, err)
	require.Len(t, validDisputes, 1)
	require.Equal(t, "valid-alloc", validDisputes[0].AllocationID)

	potentialDisputes, err := net.FetchPOIDisputes(context.Background(), types.DisputeStatusPotential, 7, "eip155:1")
	require.NoError(t, err)
	require.Len(t, potentialDisputes, 1)
	require.Equal(t, "potential-alloc", potentialDisputes[0].AllocationID)
}

func TestIdentifyPotentialDisputesSkipsAlreadyProcessed(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)

	spec := types.NetworkSpecification{NetworkIdentifier: "eip155:1"}
	net := memstore.NewNetwork(spec)
	nc := NetworkContext{Spec: spec, Monitor: net, Network: net, Operator: net}

	dep := testDeploymentID(t, 0x21)
	_, err := net.StorePOIDisputes(context.Background(), []types.POIDispute{
		{AllocationID: "already-done", ProtocolNetwork: "eip155:1", ClosedEpoch: 3, Status: types.DisputeStatusValid},
	})
	require.NoError(t, err)

	alloc := types.Allocation{
		ID:                          "already-done",
		SubgraphDeployment:          dep,
		ClosedAtEpoch:               epochPtr(3),
		ClosedAtEpochStartBlockHash: "0xsomehash",
		Status:                      types.AllocationStatusClosed,
	}

	err = a.identifyPotentialDisputes(context.Background(), nc, []types.Allocation{alloc}, 3)
	require.NoError(t, err)

	disputes, err := net.FetchPOIDisputes(context.Background(), types.DisputeStatusValid, 3, "eip155:1")
	require.NoError(t, err)
	require.Len(t, disputes, 1, "the already-processed allocation must not be re-classified or duplicated")
}

func TestIdentifyPotentialDisputesSkipsAllocationsMissingClosingBlockHash(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)

	spec := types.NetworkSpecification{NetworkIdentifier: "eip155:1"}
	net := memstore.NewNetwork(spec)
	nc := NetworkContext{Spec: spec, Monitor: net, Network: net, Operator: net}

	dep := testDeploymentID(t, 0x22)
	alloc := types.Allocation{
		ID:                 "no-block-hash",
		SubgraphDeployment: dep,
		ClosedAtEpoch:      epochPtr(4),
		Status:             types.AllocationStatusClosed,
	}

	err := a.identifyPotentialDisputes(context.Background(), nc, []types.Allocation{alloc}, 4)
	require.NoError(t, err)

	disputes, err := net.FetchPOIDisputes(context.Background(), types.DisputeStatusPotential, 4, "eip155:1")
	require.NoError(t, err)
	require.Empty(t, disputes)
}

func TestClassifyDisputeValidViaPreviousEpochReference(t *testing.T) {
	dep := testDeploymentID(t, 0x23)
	alloc := types.Allocation{ID: "prev-epoch-match", SubgraphDeployment: dep, POI: []byte{0xCC}}
	pool := types.RewardsPool{
		SubgraphDeployment:   dep,
		ReferencePOI:         []byte{0xDD},
		ReferencePreviousPOI: []byte{0xCC},
	}

	dispute := classifyDispute(alloc, pool, "eip155:1")
	require.Equal(t, types.DisputeStatusValid, dispute.Status)
}

func TestIdentifyPotentialDisputesFillsPreviousEpochReference(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)

	spec := types.NetworkSpecification{NetworkIdentifier: "eip155:1"}
	net := memstore.NewNetwork(spec)
	nc := NetworkContext{Spec: spec, Monitor: net, Network: net, Operator: net}

	dep := testDeploymentID(t, 0x24)
	net.SetBlock("0xclose", collaborators.BlockPointer{Number: 100, Hash: "0xclose"})
	net.SetBlock("0xprev", collaborators.BlockPointer{Number: 50, Hash: "0xprev"})

	// The closing-block reference POI differs from the allocation's POI,
	// but the previous-epoch reference POI matches: spec §4.6 step 5, S5.
	graphNode.SetProofOfIndexingAt(dep, "indexer-1", collaborators.BlockPointer{Number: 100, Hash: "0xclose"}, []byte{0xEE})
	graphNode.SetProofOfIndexingAt(dep, "indexer-1", collaborators.BlockPointer{Number: 50, Hash: "0xprev"}, []byte{0xCC})

	alloc := types.Allocation{
		ID:                          "prev-match",
		Indexer:                     "indexer-1",
		SubgraphDeployment:          dep,
		POI:                         []byte{0xCC},
		ClosedAtEpoch:               epochPtr(9),
		ClosedAtEpochStartBlockHash: "0xclose",
		PreviousEpochStartBlockHash: "0xprev",
		Status:                      types.AllocationStatusClosed,
	}

	err := a.identifyPotentialDisputes(context.Background(), nc, []types.Allocation{alloc}, 9)
	require.NoError(t, err)

	valid, err := net.FetchPOIDisputes(context.Background(), types.DisputeStatusValid, 9, "eip155:1")
	require.NoError(t, err)
	require.Len(t, valid, 1)
	require.Equal(t, "prev-match", valid[0].AllocationID)
}
