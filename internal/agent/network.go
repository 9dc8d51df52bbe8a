package agent

import (
	"context"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/types"
)

// NetworkContext bundles one protocol network's collaborators: the
// read-only monitor (C4), the write-side network (C5), and the per-network
// authoring surface (C6). It is the item type MultiNetworks fans out over.
type NetworkContext struct {
	Spec     types.NetworkSpecification
	Monitor  collaborators.NetworkMonitor
	Network  collaborators.Network
	Operator collaborators.Operator
}

// Identity implements the MultiNetworks identity extractor: the
// specification's networkIdentifier.
func (n NetworkContext) Identity() string {
	return n.Spec.NetworkIdentifier
}

// NetworkIdentityValidator validates that a deployment's reported chain
// identity (read from the meta-subgraph's own indexed data, which is an
// opaque subgraph-query collaborator per spec §1) matches the
// NetworkSpecification it was configured under. Used only during startup
// (spec §4.9 step 3); a mismatch is a configuration-fatal error.
type NetworkIdentityValidator interface {
	ValidateChainIdentity(ctx context.Context, networkIdentifier string, deployment types.SubgraphDeploymentID) error
}
