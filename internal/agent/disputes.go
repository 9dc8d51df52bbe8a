package agent

import (
	"bytes"
	"context"
	"fmt"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/mitchellh/hashstructure"
)

// identifyPotentialDisputes cross-checks the POIs of recently disputable
// allocations against a reference, for one network (spec §4.6).
func (a *Agent) identifyPotentialDisputes(ctx context.Context, nc NetworkContext, disputable []types.Allocation, disputableEpoch uint64) error {
	alreadyProcessed, err := a.alreadyProcessedDisputeIDs(ctx, nc, disputableEpoch)
	if err != nil {
		return fmt.Errorf("loading already-processed disputes: %w", err)
	}

	newAllocations := make([]types.Allocation, 0, len(disputable))
	for _, alloc := range disputable {
		if !alreadyProcessed[alloc.ID] {
			newAllocations = append(newAllocations, alloc)
		}
	}
	if len(newAllocations) == 0 {
		return nil
	}

	pools, allocToPoolKey, err := groupIntoPools(newAllocations)
	if err != nil {
		return err
	}

	for key, pool := range pools {
		filled, err := a.fillPool(ctx, nc, pool)
		if err != nil {
			return fmt.Errorf("filling rewards pool: %w", err)
		}
		pools[key] = filled
	}

	disputes := make([]types.POIDispute, 0, len(newAllocations))
	for _, alloc := range newAllocations {
		key, ok := allocToPoolKey[alloc.ID]
		if !ok {
			// missing closedAtEpochStartBlockHash: this allocation's pool
			// was intentionally skipped (spec §4.6 step 3), not an error.
			continue
		}
		pool, ok := pools[key]
		if !ok {
			// A new disputable allocation with no corresponding pool is a
			// programmer error (spec §4.6, §7 "Programmer-invariant fatal").
			return fmt.Errorf("missing rewards pool for allocation %s", alloc.ID)
		}
		disputes = append(disputes, classifyDispute(alloc, pool, nc.Spec.NetworkIdentifier))
	}

	if len(disputes) == 0 {
		return nil
	}
	if _, err := nc.Operator.StorePOIDisputes(ctx, disputes); err != nil {
		return fmt.Errorf("storing POI disputes: %w", err)
	}

	var potential, valid int
	for _, d := range disputes {
		switch d.Status {
		case types.DisputeStatusPotential, types.DisputeStatusReferenceUnavailable:
			potential++
		case types.DisputeStatusValid:
			valid++
		}
	}
	metrics.PotentialDisputes(a.metricsSink, nc.Spec.NetworkIdentifier, potential)
	metrics.ValidAllocations(a.metricsSink, nc.Spec.NetworkIdentifier, valid)
	a.logger.Info("POI dispute monitoring complete", "protocolNetwork", nc.Spec.NetworkIdentifier, "potentialDisputes", potential, "validAllocations", valid)
	return nil
}

func (a *Agent) alreadyProcessedDisputeIDs(ctx context.Context, nc NetworkContext, disputableEpoch uint64) (map[string]bool, error) {
	potential, err := nc.Operator.FetchPOIDisputes(ctx, types.DisputeStatusPotential, disputableEpoch, nc.Spec.NetworkIdentifier)
	if err != nil {
		return nil, err
	}
	valid, err := nc.Operator.FetchPOIDisputes(ctx, types.DisputeStatusValid, disputableEpoch, nc.Spec.NetworkIdentifier)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(potential)+len(valid))
	for _, d := range potential {
		ids[d.AllocationID] = true
	}
	for _, d := range valid {
		ids[d.AllocationID] = true
	}
	return ids, nil
}

// groupIntoPools builds one RewardsPool per (subgraphDeployment,
// closedAtEpoch, closedAtEpochStartBlockHash) among allocations, keyed by a
// stable structural hash of that projection (spec §9 design note). An
// allocation whose closedAtEpochStartBlockHash is empty is left out of
// allocToPoolKey entirely: its pool is skipped, not an error.
func groupIntoPools(allocations []types.Allocation) (map[uint64]types.RewardsPool, map[string]uint64, error) {
	pools := make(map[uint64]types.RewardsPool)
	allocToPoolKey := make(map[string]uint64, len(allocations))

	for _, alloc := range allocations {
		if alloc.ClosedAtEpoch == nil || alloc.ClosedAtEpochStartBlockHash == "" {
			continue
		}
		poolKey := types.PoolKey{
			SubgraphDeployment:          alloc.SubgraphDeployment,
			ClosedAtEpoch:               *alloc.ClosedAtEpoch,
			ClosedAtEpochStartBlockHash: alloc.ClosedAtEpochStartBlockHash,
		}
		hash, err := hashstructure.Hash(poolKey, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing rewards pool key: %w", err)
		}
		if _, ok := pools[hash]; !ok {
			pools[hash] = types.RewardsPool{
				SubgraphDeployment:          poolKey.SubgraphDeployment,
				ClosedAtEpoch:               poolKey.ClosedAtEpoch,
				ClosedAtEpochStartBlockHash: poolKey.ClosedAtEpochStartBlockHash,
				PreviousEpochStartBlockHash: alloc.PreviousEpochStartBlockHash,
				AllocationIndexer:           alloc.Indexer,
			}
		}
		allocToPoolKey[alloc.ID] = hash
	}
	return pools, allocToPoolKey, nil
}

// fillPool resolves a pool's two reference block pointers and fetches the
// reference POIs for its allocationIndexer at those blocks (spec §4.6
// step 4).
func (a *Agent) fillPool(ctx context.Context, nc NetworkContext, pool types.RewardsPool) (types.RewardsPool, error) {
	closingPOI, err := a.referencePOIAt(ctx, nc, pool, pool.ClosedAtEpochStartBlockHash)
	if err != nil {
		return pool, fmt.Errorf("resolving closing reference POI: %w", err)
	}
	pool.ClosedAtEpochStartBlockNumber = closingPOI.number
	pool.ReferencePOI = closingPOI.poi

	if pool.PreviousEpochStartBlockHash != "" {
		previousPOI, err := a.referencePOIAt(ctx, nc, pool, pool.PreviousEpochStartBlockHash)
		if err != nil {
			return pool, fmt.Errorf("resolving previous-epoch reference POI: %w", err)
		}
		pool.PreviousEpochStartBlockNumber = previousPOI.number
		pool.ReferencePreviousPOI = previousPOI.poi
	}
	return pool, nil
}

type referencePOIResult struct {
	number *uint64
	poi    []byte
}

func (a *Agent) referencePOIAt(ctx context.Context, nc NetworkContext, pool types.RewardsPool, blockHash string) (referencePOIResult, error) {
	block, err := nc.Network.GetBlock(ctx, blockHash)
	if err != nil {
		return referencePOIResult{}, fmt.Errorf("resolving block %s: %w", blockHash, err)
	}
	number := block.Number

	if a.poiLimiter != nil {
		if err := a.poiLimiter.Wait(ctx); err != nil {
			return referencePOIResult{}, fmt.Errorf("waiting for POI fetch rate limiter: %w", err)
		}
	}
	poi, err := a.graphNode.ProofOfIndexing(ctx, pool.SubgraphDeployment, collaborators.BlockPointer{Number: block.Number, Hash: block.Hash}, pool.AllocationIndexer)
	if err != nil {
		return referencePOIResult{}, fmt.Errorf("fetching reference POI: %w", err)
	}
	return referencePOIResult{number: &number, poi: poi}, nil
}

func classifyDispute(alloc types.Allocation, pool types.RewardsPool, protocolNetwork string) types.POIDispute {
	missingClosingRef := pool.ReferencePOI == nil
	missingPreviousRef := pool.PreviousEpochStartBlockHash != "" && pool.ReferencePreviousPOI == nil

	var status types.DisputeStatus
	switch {
	case matchesReference(alloc.POI, pool.ReferencePOI) || matchesReference(alloc.POI, pool.ReferencePreviousPOI):
		status = types.DisputeStatusValid
	case missingClosingRef || missingPreviousRef:
		status = types.DisputeStatusReferenceUnavailable
	default:
		status = types.DisputeStatusPotential
	}

	var closedEpoch, closedBlockNumber uint64
	if alloc.ClosedAtEpoch != nil {
		closedEpoch = *alloc.ClosedAtEpoch
	}
	if pool.ClosedAtEpochStartBlockNumber != nil {
		closedBlockNumber = *pool.ClosedAtEpochStartBlockNumber
	}
	var previousBlockNumber uint64
	if pool.PreviousEpochStartBlockNumber != nil {
		previousBlockNumber = *pool.PreviousEpochStartBlockNumber
	}

	return types.POIDispute{
		AllocationID:                  alloc.ID,
		SubgraphDeploymentID:          alloc.SubgraphDeployment,
		AllocationIndexer:             alloc.Indexer,
		AllocationAmount:              alloc.AllocatedTokens,
		AllocationProof:               alloc.POI,
		ClosedEpoch:                   closedEpoch,
		ClosedEpochReferenceProof:     pool.ReferencePOI,
		ClosedEpochStartBlockHash:     pool.ClosedAtEpochStartBlockHash,
		ClosedEpochStartBlockNumber:   closedBlockNumber,
		PreviousEpochReferenceProof:   pool.ReferencePreviousPOI,
		PreviousEpochStartBlockHash:   pool.PreviousEpochStartBlockHash,
		PreviousEpochStartBlockNumber: previousBlockNumber,
		Status:                        status,
		ProtocolNetwork:               protocolNetwork,
	}
}

func matchesReference(poi, reference []byte) bool {
	return reference != nil && bytes.Equal(poi, reference)
}
