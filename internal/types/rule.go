package types

// IdentifierType tells what kind of thing an IndexingRule's Identifier
// refers to.
type IdentifierType string

const (
	IdentifierTypeGlobal     IdentifierType = "global"
	IdentifierTypeDeployment IdentifierType = "deployment"
	IdentifierTypeSubgraph   IdentifierType = "subgraph"
)

// DecisionBasis determines how a deployment matching this rule should be
// decided for allocation.
type DecisionBasis string

const (
	DecisionBasisRules    DecisionBasis = "rules"
	DecisionBasisAlways   DecisionBasis = "always"
	DecisionBasisNever    DecisionBasis = "never"
	DecisionBasisOffchain DecisionBasis = "offchain"
)

// GlobalIdentifier is the well-known Identifier value of the one GLOBAL rule
// per protocol network.
const GlobalIdentifier = "global"

// IndexingRule is an operator-authored policy governing whether and how the
// agent allocates on a deployment, subgraph, or (for the GLOBAL rule) by
// default across a protocol network. Exactly one rule exists per
// (ProtocolNetwork, Identifier).
type IndexingRule struct {
	Identifier          string
	IdentifierType      IdentifierType
	DecisionBasis       DecisionBasis
	AllocationAmount    string // decimal string, wei-denominated GRT
	AllocationLifetime  *uint64
	ParallelAllocations *uint64
	MaxSignal           *string
	MinSignal           *string
	MinStake            *string
	MinAverageQueryFees *string
	ProtocolNetwork     string
}

// Key returns the (ProtocolNetwork, Identifier) pair that uniquely keys this
// rule.
func (r IndexingRule) Key() (protocolNetwork, identifier string) {
	return r.ProtocolNetwork, r.Identifier
}

// MergeGlobal returns a copy of r with any field r leaves unset replaced by
// the corresponding field of the GLOBAL rule. Rule-level values always win;
// only nil/zero rule fields are replaced. Identifier, IdentifierType, and
// ProtocolNetwork are never merged: the rule's own classification always
// stands.
func (r IndexingRule) MergeGlobal(global IndexingRule) IndexingRule {
	merged := r
	if merged.AllocationLifetime == nil {
		merged.AllocationLifetime = global.AllocationLifetime
	}
	if merged.ParallelAllocations == nil {
		merged.ParallelAllocations = global.ParallelAllocations
	}
	if merged.MaxSignal == nil {
		merged.MaxSignal = global.MaxSignal
	}
	if merged.MinSignal == nil {
		merged.MinSignal = global.MinSignal
	}
	if merged.MinStake == nil {
		merged.MinStake = global.MinStake
	}
	if merged.MinAverageQueryFees == nil {
		merged.MinAverageQueryFees = global.MinAverageQueryFees
	}
	if merged.AllocationAmount == "" {
		merged.AllocationAmount = global.AllocationAmount
	}
	if merged.DecisionBasis == "" {
		merged.DecisionBasis = global.DecisionBasis
	}
	return merged
}
