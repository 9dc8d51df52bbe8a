package agent

import (
	"context"
	"fmt"

	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-multierror"
)

// reconcileActions runs the per-network action reconciler (spec §4.8):
// mode filter, network-subgraph guard, then a per-deployment create/close/
// refresh decision for every remaining network.
func (a *Agent) reconcileActions(
	ctx context.Context,
	decisionsByNetwork map[string][]types.AllocationDecision,
	activeAllocationsByNetwork map[string][]types.Allocation,
	epochByNetwork map[string]uint64,
	maxAllocationEpochsByNetwork map[string]uint64,
) error {
	networks := a.networks.Items()

	filtered := make(map[string][]types.AllocationDecision, len(decisionsByNetwork))
	for id, decisions := range decisionsByNetwork {
		nc, ok := networks[id]
		if !ok {
			continue
		}
		if nc.Spec.IndexerOptions.AllocationManagementMode == types.AllocationManagementManual {
			a.logger.Warn("allocation management mode is manual; skipping action reconciliation", "protocolNetwork", id)
			continue
		}
		filtered[id] = decisions
	}
	if len(filtered) == 0 {
		return nil
	}

	for id, decisions := range filtered {
		nc := networks[id]
		metaDeployment, ok := nc.Network.NetworkSubgraphDeployment()
		if !ok || nc.Spec.AllocateOnNetworkSubgraph {
			continue
		}
		for i := range decisions {
			if decisions[i].Deployment == metaDeployment {
				decisions[i].ToAllocate = false
			}
		}
		filtered[id] = decisions
	}

	var merr *multierror.Error
	for id, decisions := range filtered {
		nc := networks[id]
		epoch := epochByNetwork[id]
		maxEpochs := maxAllocationEpochsByNetwork[id]
		active := activeAllocationsByNetwork[id]
		for _, d := range decisions {
			if err := a.applyActionDecision(ctx, nc, d, active, epoch, maxEpochs); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("network %q deployment %s: %w", id, d.Deployment, err))
			}
		}
	}
	return merr.ErrorOrNil()
}

// applyActionDecision is step 3 of §4.8, for one deployment on one network.
func (a *Agent) applyActionDecision(ctx context.Context, nc NetworkContext, d types.AllocationDecision, active []types.Allocation, epoch, maxAllocationEpochs uint64) error {
	fresh, err := nc.Monitor.Allocations(ctx, types.AllocationStatusActive)
	if err != nil {
		return fmt.Errorf("refreshing active allocations: %w", err)
	}
	active = fresh

	var forDeployment []types.Allocation
	for _, alloc := range active {
		if alloc.SubgraphDeployment == d.Deployment {
			forDeployment = append(forDeployment, alloc)
		}
	}

	if !d.ToAllocate {
		if err := nc.Operator.CloseEligibleAllocations(ctx, d, forDeployment, epoch); err != nil {
			return fmt.Errorf("closing eligible allocations: %w", err)
		}
		metrics.AllocationsClosed(a.metricsSink, nc.Identity(), len(forDeployment))
		return nil
	}

	if len(forDeployment) == 0 {
		closed, err := nc.Monitor.ClosedAllocations(ctx, d.Deployment)
		if err != nil {
			return fmt.Errorf("fetching closed allocations: %w", err)
		}
		var mostRecentClosed *types.Allocation
		for i := range closed {
			c := closed[i]
			if c.ClosedAtEpoch == nil {
				continue
			}
			if mostRecentClosed == nil || *c.ClosedAtEpoch > *mostRecentClosed.ClosedAtEpoch {
				cc := c
				mostRecentClosed = &cc
			}
		}
		if err := nc.Operator.CreateAllocation(ctx, d, mostRecentClosed); err != nil {
			return fmt.Errorf("creating allocation: %w", err)
		}
		metrics.AllocationsCreated(a.metricsSink, nc.Identity(), 1)
		return nil
	}

	var desiredLifetime uint64
	switch {
	case d.RuleMatch.Rule != nil && d.RuleMatch.Rule.AllocationLifetime != nil:
		desiredLifetime = *d.RuleMatch.Rule.AllocationLifetime
	case maxAllocationEpochs > 1:
		desiredLifetime = maxAllocationEpochs - 1
	default:
		desiredLifetime = 1
	}

	var expired []types.Allocation
	for _, alloc := range forDeployment {
		if epoch >= alloc.CreatedAtEpoch+desiredLifetime {
			expired = append(expired, alloc)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	var stillExpired []types.Allocation
	for _, alloc := range expired {
		onChain, err := nc.Network.GetAllocation(ctx, alloc.ID)
		if err != nil {
			// IE006: absorbed; conservative default is to treat the
			// allocation as still open and thus still expired.
			a.logger.Warn("dispute cross-check failed for allocation expiry; assuming still open", "allocation", alloc.ID, "error", err)
			stillExpired = append(stillExpired, alloc)
			continue
		}
		if onChain.ClosedAtEpoch == nil || *onChain.ClosedAtEpoch == 0 {
			stillExpired = append(stillExpired, alloc)
		}
	}
	if len(stillExpired) == 0 {
		return nil
	}
	if err := nc.Operator.RefreshExpiredAllocations(ctx, d, stillExpired); err != nil {
		return fmt.Errorf("refreshing expired allocations: %w", err)
	}
	metrics.AllocationsRefreshed(a.metricsSink, nc.Identity(), len(stillExpired))
	return nil
}
