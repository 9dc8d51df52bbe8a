package agent

import (
	"context"
	"time"

	"github.com/graphprotocol/indexer-agent/internal/eventual"
	"github.com/graphprotocol/indexer-agent/internal/evaluator"
	"github.com/graphprotocol/indexer-agent/internal/multinetwork"
	"github.com/graphprotocol/indexer-agent/internal/rules"
	"github.com/graphprotocol/indexer-agent/internal/types"
)

// buildGraph wires C1-C9 into the eventual graph described in spec §4.5 and
// starts the top-level reconciliation pipe. It returns once every source
// eventual is subscribed; the graph itself keeps deriving and firing in
// background goroutines until ctx is done.
func (a *Agent) buildGraph(ctx context.Context) {
	onError := func(component string) func(error) {
		return func(err error) {
			a.logger.Warn("derivation failed; retaining previous value", "component", component, "error", err)
		}
	}

	indexingRules := eventual.Poll(ctx, RulesPeriodMs*time.Millisecond, a.fetchIndexingRules, onError("indexingRules"))
	networkDeployments := eventual.Poll(ctx, NetworkDeploymentsPeriodMs*time.Millisecond, a.fetchNetworkDeployments, onError("networkDeployments"))
	activeDeployments := eventual.Poll(ctx, ActiveDeploymentsPeriodMs*time.Millisecond, a.graphNode.SubgraphDeployments, onError("activeDeployments"))
	activeAllocations := eventual.Poll(ctx, ActiveAllocationsPeriodMs*time.Millisecond, a.fetchActiveAllocations, onError("activeAllocations"))
	currentEpochNumber := eventual.Poll(ctx, EpochPeriodMs*time.Millisecond, a.fetchCurrentEpochNumber, onError("currentEpochNumber"))
	maxAllocationEpochs := eventual.Poll(ctx, EpochPeriodMs*time.Millisecond, a.fetchMaxAllocationEpochs, onError("maxAllocationEpochs"))
	channelDisputeEpochs := eventual.Poll(ctx, EpochPeriodMs*time.Millisecond, a.fetchChannelDisputeEpochs, onError("channelDisputeEpochs"))

	networkDeploymentAllocationDecisions := eventual.Map(ctx,
		eventual.Join2(ctx, indexingRules, networkDeployments),
		evaluateAllNetworks,
	)

	targetDeploymentsRaw := eventual.Map(ctx,
		eventual.Join2(ctx, networkDeploymentAllocationDecisions, indexingRules),
		a.computeTargetDeployments,
	)
	// targetDeploymentsRaw recomputes on every change of its fastest input
	// (indexingRules, 20 000ms); throttle it to its own declared period so
	// it doesn't inherit that cadence (spec §4.5, §5).
	targetDeployments := eventual.Throttle(ctx, targetDeploymentsRaw, TargetDeploymentsPeriodMs*time.Millisecond)

	recentlyClosedAllocations := eventual.TryMap(ctx,
		eventual.Join2(ctx, activeAllocations, currentEpochNumber),
		a.fetchRecentlyClosedAllocations,
		onError("recentlyClosedAllocations"),
	)

	claimableAllocations := eventual.TryMap(ctx,
		eventual.Join2(ctx, currentEpochNumber, channelDisputeEpochs),
		a.fetchClaimableAllocations,
		onError("claimableAllocations"),
	)

	disputableAllocations := eventual.TryMap(ctx,
		eventual.Join2(ctx, currentEpochNumber, activeDeployments),
		a.fetchDisputableAllocations,
		onError("disputableAllocations"),
	)

	topLevelRaw := eventual.Join9(ctx,
		currentEpochNumber,
		maxAllocationEpochs,
		activeDeployments,
		targetDeployments,
		activeAllocations,
		networkDeploymentAllocationDecisions,
		recentlyClosedAllocations,
		claimableAllocations,
		disputableAllocations,
	)
	// Same reasoning as targetDeploymentsRaw above: the join otherwise fires
	// on every change of its fastest leaf. The top-level pipe gets its own
	// independent timer per its declared period (spec §4.5, §5) rather than
	// riding indexingRules' 20 000ms cadence.
	topLevel := eventual.Throttle(ctx, topLevelRaw, TopLevelReconcilePeriodMs*time.Millisecond)

	eventual.Pipe(ctx, topLevel, a.runCycle)
}

func (a *Agent) fetchIndexingRules(ctx context.Context) (map[string][]types.IndexingRule, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.IndexingRule, error) {
		networkRules, err := nc.Operator.IndexingRules(ctx, true)
		if err != nil {
			return nil, err
		}

		subgraphIDs := make([]string, 0)
		for _, rule := range networkRules {
			if rule.IdentifierType == types.IdentifierTypeSubgraph {
				subgraphIDs = append(subgraphIDs, rule.Identifier)
			}
		}
		subgraphs, err := nc.Monitor.Subgraphs(ctx, subgraphIDs)
		if err != nil {
			return nil, err
		}

		epochLength, err := nc.Network.EpochLength(ctx)
		if err != nil {
			return nil, err
		}
		buffer := rules.PreviousVersionBufferSeconds(epochLength)
		return rules.Normalize(networkRules, subgraphs, time.Now(), buffer), nil
	})
}

func (a *Agent) fetchNetworkDeployments(ctx context.Context) (map[string][]types.SubgraphDeploymentID, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.SubgraphDeploymentID, error) {
		return nc.Monitor.SubgraphDeployments(ctx)
	})
}

func (a *Agent) fetchActiveAllocations(ctx context.Context) (map[string][]types.Allocation, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.Allocation, error) {
		return nc.Monitor.Allocations(ctx, types.AllocationStatusActive)
	})
}

func (a *Agent) fetchCurrentEpochNumber(ctx context.Context) (map[string]uint64, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) (uint64, error) {
		return nc.Monitor.CurrentEpochNumber(ctx)
	})
}

func (a *Agent) fetchMaxAllocationEpochs(ctx context.Context) (map[string]uint64, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) (uint64, error) {
		return nc.Network.MaxAllocationEpochs(ctx)
	})
}

func (a *Agent) fetchChannelDisputeEpochs(ctx context.Context) (map[string]uint64, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) (uint64, error) {
		return nc.Network.ChannelDisputeEpochs(ctx)
	})
}

func (a *Agent) fetchRecentlyClosedAllocations(ctx context.Context, p eventual.Pair[map[string][]types.Allocation, map[string]uint64]) (map[string][]types.Allocation, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.Allocation, error) {
		epoch := p.B[nc.Identity()]
		if epoch == 0 {
			return nil, nil
		}
		return nc.Monitor.RecentlyClosedAllocations(ctx, epoch-1, 1)
	})
}

func (a *Agent) fetchClaimableAllocations(ctx context.Context, p eventual.Pair[map[string]uint64, map[string]uint64]) (map[string][]types.Allocation, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.Allocation, error) {
		id := nc.Identity()
		epoch, disputeEpochs := p.A[id], p.B[id]
		var claimEpoch uint64
		if epoch > disputeEpochs {
			claimEpoch = epoch - disputeEpochs
		}
		return nc.Monitor.ClaimableAllocations(ctx, claimEpoch)
	})
}

func (a *Agent) fetchDisputableAllocations(ctx context.Context, p eventual.Pair[map[string]uint64, []types.SubgraphDeploymentID]) (map[string][]types.Allocation, error) {
	return multinetwork.Map(ctx, a.networks, func(ctx context.Context, nc NetworkContext) ([]types.Allocation, error) {
		epoch := p.A[nc.Identity()]
		// minSignal thresholding is left to the monitor collaborator; this
		// core does not compute a signal cutoff itself.
		return nc.Monitor.DisputableAllocations(ctx, epoch, p.B, "")
	})
}

// evaluateAllNetworks is networkDeploymentAllocationDecisions (spec §4.5):
// for each network, if rules is empty return [], else evaluate.
func evaluateAllNetworks(p eventual.Pair[map[string][]types.IndexingRule, map[string][]types.SubgraphDeploymentID]) map[string][]types.AllocationDecision {
	out := make(map[string][]types.AllocationDecision, len(p.A))
	for id, networkRules := range p.A {
		if len(networkRules) == 0 {
			out[id] = []types.AllocationDecision{}
			continue
		}
		out[id] = evaluator.Evaluate(p.B[id], networkRules)
	}
	return out
}

// computeTargetDeployments is targetDeployments (spec §4.5): the union of
// every toAllocate=true decision, every OFFCHAIN rule's deployment, and the
// static startup offchain list, deduplicated by bytes32.
func (a *Agent) computeTargetDeployments(p eventual.Pair[map[string][]types.AllocationDecision, map[string][]types.IndexingRule]) []types.SubgraphDeploymentID {
	var allocated []types.SubgraphDeploymentID
	for _, decisions := range p.A {
		for _, d := range decisions {
			if d.ToAllocate {
				allocated = append(allocated, d.Deployment)
			}
		}
	}

	var offchainRuleDeployments []types.SubgraphDeploymentID
	for _, networkRules := range p.B {
		for _, rule := range networkRules {
			if rule.DecisionBasis != types.DecisionBasisOffchain || rule.IdentifierType != types.IdentifierTypeDeployment {
				continue
			}
			if id, err := types.NewSubgraphDeploymentID(rule.Identifier); err == nil {
				offchainRuleDeployments = append(offchainRuleDeployments, id)
			}
		}
	}

	return types.DedupDeployments(allocated, offchainRuleDeployments, a.offchain)
}
