package agent

import (
	"context"
	"testing"

	"github.com/graphprotocol/indexer-agent/internal/collaborators/memstore"
	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func testDeploymentID(t *testing.T, b byte) types.SubgraphDeploymentID {
	t.Helper()
	var id types.SubgraphDeploymentID
	for i := range id {
		id[i] = b
	}
	return id
}

func newTestAgent(t *testing.T, graphNode *memstore.GraphNode) *Agent {
	t.Helper()
	return &Agent{
		logger:      hclog.NewNullLogger(),
		graphNode:   graphNode,
		metricsSink: metrics.Default(),
	}
}

func TestReconcileDeploymentsDeploysAndRemoves(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)
	ctx := context.Background()

	keep := testDeploymentID(t, 0x01)
	toRemove := testDeploymentID(t, 0x02)
	toDeploy := testDeploymentID(t, 0x03)

	require.NoError(t, graphNode.Ensure(ctx, keep.GraphNodeName(), keep))
	require.NoError(t, graphNode.Ensure(ctx, toRemove.GraphNodeName(), toRemove))

	active := []types.SubgraphDeploymentID{keep, toRemove}
	target := []types.SubgraphDeploymentID{keep, toDeploy}

	err := a.reconcileDeployments(ctx, active, target, nil, nil)
	require.NoError(t, err)

	deployed, err := graphNode.SubgraphDeployments(ctx)
	require.NoError(t, err)
	require.Contains(t, deployed, keep)
	require.Contains(t, deployed, toDeploy)
	require.NotContains(t, deployed, toRemove)
}

func TestReconcileDeploymentsKeepsEligibleAllocationDeployment(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)
	ctx := context.Background()

	eligible := testDeploymentID(t, 0x04)
	require.NoError(t, graphNode.Ensure(ctx, eligible.GraphNodeName(), eligible))

	active := []types.SubgraphDeploymentID{eligible}
	target := []types.SubgraphDeploymentID{} // no longer rule-targeted

	err := a.reconcileDeployments(ctx, active, target, []types.Allocation{
		{SubgraphDeployment: eligible, Status: types.AllocationStatusClosed},
	}, nil)
	require.NoError(t, err)

	deployed, err := graphNode.SubgraphDeployments(ctx)
	require.NoError(t, err)
	require.Contains(t, deployed, eligible, "a deployment with a still-claimable allocation must not be removed")
}

func TestReconcileDeploymentsAugmentsWithMetaSubgraph(t *testing.T) {
	graphNode := memstore.NewGraphNode()
	a := newTestAgent(t, graphNode)
	ctx := context.Background()

	meta := testDeploymentID(t, 0x05)

	err := a.reconcileDeployments(ctx, nil, nil, nil, []types.SubgraphDeploymentID{meta})
	require.NoError(t, err)

	deployed, err := graphNode.SubgraphDeployments(ctx)
	require.NoError(t, err)
	require.Contains(t, deployed, meta)
}
