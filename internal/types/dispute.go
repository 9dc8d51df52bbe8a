package types

// DisputeStatus classifies a POIDispute after cross-checking against its
// RewardsPool's reference POIs.
type DisputeStatus string

const (
	DisputeStatusValid                DisputeStatus = "valid"
	DisputeStatusPotential            DisputeStatus = "potential"
	DisputeStatusReferenceUnavailable DisputeStatus = "reference_unavailable"
)

// POIDispute is an append-only, per-(AllocationID, ProtocolNetwork) record
// produced by the dispute identifier for a recently closed allocation whose
// POI could not be immediately confirmed against the reference POI.
type POIDispute struct {
	AllocationID                  string
	SubgraphDeploymentID           SubgraphDeploymentID
	AllocationIndexer              string
	AllocationAmount                string
	AllocationProof                 []byte
	ClosedEpoch                     uint64
	ClosedEpochReferenceProof        []byte
	ClosedEpochStartBlockHash        string
	ClosedEpochStartBlockNumber      uint64
	PreviousEpochReferenceProof      []byte
	PreviousEpochStartBlockHash      string
	PreviousEpochStartBlockNumber    uint64
	Status                           DisputeStatus
	ProtocolNetwork                  string
}
