package types

// RewardsPool groups allocations by (SubgraphDeployment, ClosedAtEpoch) and
// carries the reference POIs the dispute identifier cross-checks closed
// allocations against. Equality is structural, keyed by
// (SubgraphDeployment, ClosedAtEpoch, ClosedAtEpochStartBlockHash) — see
// PoolKey and internal/agent's use of hashstructure over that projection.
type RewardsPool struct {
	SubgraphDeployment               SubgraphDeploymentID
	ClosedAtEpoch                     uint64
	ClosedAtEpochStartBlockHash       string
	ClosedAtEpochStartBlockNumber     *uint64
	PreviousEpochStartBlockHash       string
	PreviousEpochStartBlockNumber     *uint64
	AllocationIndexer                 string
	ReferencePOI                      []byte
	ReferencePreviousPOI              []byte
}

// PoolKey is the hashable projection of RewardsPool used to group
// disputable allocations into unique pools (spec §4.6 step 3, §9 design
// note).
type PoolKey struct {
	SubgraphDeployment          SubgraphDeploymentID
	ClosedAtEpoch               uint64
	ClosedAtEpochStartBlockHash string
}

// Key returns the hashable grouping key for this pool.
func (p RewardsPool) Key() PoolKey {
	return PoolKey{
		SubgraphDeployment:          p.SubgraphDeployment,
		ClosedAtEpoch:               p.ClosedAtEpoch,
		ClosedAtEpochStartBlockHash: p.ClosedAtEpochStartBlockHash,
	}
}
