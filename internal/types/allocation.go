package types

// AllocationStatus mirrors the on-chain allocation lifecycle.
type AllocationStatus string

const (
	AllocationStatusNull    AllocationStatus = "null"
	AllocationStatusActive  AllocationStatus = "active"
	AllocationStatusClosed  AllocationStatus = "closed"
	AllocationStatusClaimed AllocationStatus = "claimed"
)

// Allocation is an on-chain, staked commitment by an indexer to index a
// specific subgraph deployment for some number of epochs. Identity is ID
// (the allocation's on-chain address).
type Allocation struct {
	ID                          string
	Indexer                     string
	SubgraphDeployment          SubgraphDeploymentID
	AllocatedTokens             string
	CreatedAtEpoch              uint64
	ClosedAtEpoch               *uint64
	ClosedAtEpochStartBlockHash string
	// PreviousEpochStartBlockHash is the start-block hash of the epoch
	// immediately preceding ClosedAtEpoch, as reported alongside a
	// disputable allocation (spec §4.6 step 3). Empty unless the
	// allocation was returned by NetworkMonitor.DisputableAllocations.
	PreviousEpochStartBlockHash string
	POI                         []byte
	Status                      AllocationStatus
}

// RuleMatch records which indexing rule (if any) produced an
// AllocationDecision, and why.
type RuleMatch struct {
	Rule   *IndexingRule
	Reason string
}

// AllocationDecision is the pure output of the evaluator: should this
// deployment be allocated on, and under which rule.
type AllocationDecision struct {
	Deployment  SubgraphDeploymentID
	ToAllocate  bool
	RuleMatch   RuleMatch
}
