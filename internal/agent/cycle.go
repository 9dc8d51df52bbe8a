package agent

import (
	"context"

	"github.com/graphprotocol/indexer-agent/internal/eventual"
	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/types"
)

// topLevelSnapshot is the joined input to the top-level reconciliation pipe
// (spec §4.5): currentEpochNumber, maxAllocationEpochs, activeDeployments,
// targetDeployments, activeAllocations, networkDeploymentAllocationDecisions,
// recentlyClosedAllocations, claimableAllocations, disputableAllocations.
type topLevelSnapshot = eventual.Nonary9[
	map[string]uint64,
	map[string]uint64,
	[]types.SubgraphDeploymentID,
	[]types.SubgraphDeploymentID,
	map[string][]types.Allocation,
	map[string][]types.AllocationDecision,
	map[string][]types.Allocation,
	map[string][]types.Allocation,
	map[string][]types.Allocation,
]

// runCycle is the terminal pipe consumer (spec §4.5, §4.9 step 5): it runs
// claim rebates, dispute identification, deployment reconciliation, and
// action reconciliation in strict order, coalesced and serialized by the
// underlying Eventual.Pipe.
func (a *Agent) runCycle(ctx context.Context, snap topLevelSnapshot) {
	currentEpochNumber := snap.A
	maxAllocationEpochs := snap.B
	activeDeployments := snap.C
	targetDeployments := snap.D
	activeAllocations := snap.E
	decisions := snap.F
	recentlyClosedAllocations := snap.G
	claimableAllocations := snap.H
	disputableAllocations := snap.I

	for id, nc := range a.networks.Items() {
		claimable := claimableAllocations[id]
		if len(claimable) == 0 {
			continue
		}
		if err := nc.Network.ClaimRebateRewards(ctx, claimable); err != nil {
			a.logger.Warn("failed to claim rebate rewards", "protocolNetwork", id, "error", err)
		}
	}

	for id, nc := range a.networks.Items() {
		disputable := disputableAllocations[id]
		if len(disputable) == 0 {
			continue
		}
		epoch := currentEpochNumber[id]
		disputableEpochsAgo := nc.Spec.IndexerOptions.PoiDisputableEpochs
		var disputableEpoch uint64
		if epoch > disputableEpochsAgo {
			disputableEpoch = epoch - disputableEpochsAgo
		}
		if err := a.identifyPotentialDisputes(ctx, nc, disputable, disputableEpoch); err != nil {
			a.logger.Warn("Failed POI dispute monitoring", "protocolNetwork", id, "error", err)
		}
	}

	eligibleAllocations := make([]types.Allocation, 0, len(recentlyClosedAllocations)+len(activeAllocations))
	for _, allocs := range recentlyClosedAllocations {
		eligibleAllocations = append(eligibleAllocations, allocs...)
	}
	for _, allocs := range activeAllocations {
		eligibleAllocations = append(eligibleAllocations, allocs...)
	}

	var metaSubgraphDeployments []types.SubgraphDeploymentID
	for _, nc := range a.networks.Items() {
		if d, ok := nc.Network.NetworkSubgraphDeployment(); ok {
			metaSubgraphDeployments = append(metaSubgraphDeployments, d)
		}
	}

	if err := a.reconcileDeployments(ctx, activeDeployments, targetDeployments, eligibleAllocations, metaSubgraphDeployments); err != nil {
		// IE005: abandon this step; skip action reconciliation this cycle.
		a.logger.Warn("reconcileDeployments failed; skipping action reconciliation this cycle", "error", err)
		return
	}

	if err := a.reconcileActions(ctx, decisions, activeAllocations, currentEpochNumber, maxAllocationEpochs); err != nil {
		// IE005: the next cycle proceeds normally regardless.
		a.logger.Warn("reconcileActions failed", "error", err)
	}

	metrics.ReconciliationCycles(a.metricsSink, 1)
}
