// Package collaborators declares the external interfaces the reconciliation
// engine depends on but does not implement: the blockchain/subgraph-query
// read side (NetworkMonitor), the on-chain write side (Network), the
// operator-authored policy and persistence surface (Operator), and the
// indexing-node adapter (GraphNode). Production implementations of these
// live outside this module (HTTP/RPC clients, SQL-backed stores, the
// graph-node RPC adapter); internal/collaborators/memstore provides
// in-memory fakes sufficient to drive and test the engine itself.
package collaborators

import (
	"context"

	"github.com/graphprotocol/indexer-agent/internal/types"
)

// BlockPointer identifies a block by number and hash, as returned by a
// network's provider.
type BlockPointer struct {
	Number uint64
	Hash   string
}

// GraphNode adapts to the indexing node that actually runs subgraph
// deployments.
type GraphNode interface {
	Connect(ctx context.Context) error
	SubgraphDeployments(ctx context.Context) ([]types.SubgraphDeploymentID, error)
	Ensure(ctx context.Context, name string, id types.SubgraphDeploymentID) error
	Remove(ctx context.Context, id types.SubgraphDeploymentID) error
	ProofOfIndexing(ctx context.Context, deployment types.SubgraphDeploymentID, block BlockPointer, indexer string) ([]byte, error)
}

// NetworkMonitor is the read-only view of one protocol network.
type NetworkMonitor interface {
	CurrentEpochNumber(ctx context.Context) (uint64, error)
	Subgraphs(ctx context.Context, ids []string) ([]types.Subgraph, error)
	SubgraphDeployments(ctx context.Context) ([]types.SubgraphDeploymentID, error)
	Allocations(ctx context.Context, status types.AllocationStatus) ([]types.Allocation, error)
	RecentlyClosedAllocations(ctx context.Context, epoch uint64, lookbackEpochs uint64) ([]types.Allocation, error)
	ClaimableAllocations(ctx context.Context, epoch uint64) ([]types.Allocation, error)
	DisputableAllocations(ctx context.Context, epoch uint64, activeDeployments []types.SubgraphDeploymentID, minSignal string) ([]types.Allocation, error)
	ClosedAllocations(ctx context.Context, deployment types.SubgraphDeploymentID) ([]types.Allocation, error)
}

// Network is the write side of one protocol network.
type Network interface {
	Specification() types.NetworkSpecification
	Register(ctx context.Context) error
	ClaimRebateRewards(ctx context.Context, allocations []types.Allocation) error
	EpochLength(ctx context.Context) (uint64, error)
	ChannelDisputeEpochs(ctx context.Context) (uint64, error)
	MaxAllocationEpochs(ctx context.Context) (uint64, error)
	GetAllocation(ctx context.Context, id string) (types.Allocation, error)
	GetBlock(ctx context.Context, hash string) (BlockPointer, error)
	NetworkSubgraphDeployment() (types.SubgraphDeploymentID, bool)
}

// Operator is the per-network authoring surface: reads indexing rules,
// issues allocation transactions, and persists POI disputes.
type Operator interface {
	EnsureGlobalIndexingRule(ctx context.Context) error
	IndexingRules(ctx context.Context, mergeGlobal bool) ([]types.IndexingRule, error)
	FetchPOIDisputes(ctx context.Context, status types.DisputeStatus, epochThreshold uint64, networkIdentifier string) ([]types.POIDispute, error)
	StorePOIDisputes(ctx context.Context, disputes []types.POIDispute) ([]types.POIDispute, error)
	CreateAllocation(ctx context.Context, decision types.AllocationDecision, previousClosed *types.Allocation) error
	CloseEligibleAllocations(ctx context.Context, decision types.AllocationDecision, active []types.Allocation, epoch uint64) error
	RefreshExpiredAllocations(ctx context.Context, decision types.AllocationDecision, expired []types.Allocation) error
}
