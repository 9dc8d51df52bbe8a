package agent

import (
	"context"

	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/graphprotocol/indexer-agent/internal/workerpool"
	"github.com/hashicorp/go-multierror"
)

// reconcileDeployments diffs active vs. target deployments and applies the
// result through the bounded worker pool (spec §4.7). target is augmented
// here with each network's meta-subgraph deployment and the static offchain
// list, so callers need not include either in target.
func (a *Agent) reconcileDeployments(ctx context.Context, active, target []types.SubgraphDeploymentID, eligibleAllocations []types.Allocation, metaSubgraphDeployments []types.SubgraphDeploymentID) error {
	augmentedTarget := types.DedupDeployments(target, metaSubgraphDeployments, a.offchain)
	activeDedup := types.DedupDeployments(active)

	eligibleDeployments := make([]types.SubgraphDeploymentID, 0, len(eligibleAllocations))
	for _, alloc := range eligibleAllocations {
		eligibleDeployments = append(eligibleDeployments, alloc.SubgraphDeployment)
	}
	eligibleDeployments = types.DedupDeployments(eligibleDeployments)

	deploy := types.Diff(augmentedTarget, activeDedup)
	remove := types.Diff(activeDedup, types.DedupDeployments(augmentedTarget, eligibleDeployments))

	pool := workerpool.New(DeploymentWorkerConcurrency)
	for _, d := range deploy {
		d := d
		pool.Submit(ctx, func(ctx context.Context) error {
			return a.graphNode.Ensure(ctx, d.GraphNodeName(), d)
		})
	}
	for _, d := range remove {
		d := d
		pool.Submit(ctx, func(ctx context.Context) error {
			return a.graphNode.Remove(ctx, d)
		})
	}

	errs := pool.Wait()
	metrics.DeploymentsDeployed(a.metricsSink, "global", len(deploy))
	metrics.DeploymentsRemoved(a.metricsSink, "global", len(remove))

	if len(errs) == 0 {
		return nil
	}
	var merr *multierror.Error
	for _, err := range errs {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}
