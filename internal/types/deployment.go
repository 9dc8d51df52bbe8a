// Package types holds the data model shared by the indexer agent's
// reconciliation engine: deployment ids, subgraphs, indexing rules,
// allocations, rewards pools and POI disputes.
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// SubgraphDeploymentID is a content hash identifying a subgraph deployment.
// It is carried internally as the raw 32-byte sha2-256 digest; Bytes32 and
// IPFSHash are two textual renderings of the same value (a CIDv0, in IPFS
// terms) and equality is always by the underlying bytes.
type SubgraphDeploymentID [32]byte

// NewSubgraphDeploymentID parses either a 0x-prefixed hex bytes32 string or
// an IPFS CIDv0 (base58, Qm-prefixed) hash into a SubgraphDeploymentID.
func NewSubgraphDeploymentID(s string) (SubgraphDeploymentID, error) {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return deploymentIDFromHex(s)
	}
	return deploymentIDFromIPFSHash(s)
}

func deploymentIDFromHex(s string) (SubgraphDeploymentID, error) {
	var id SubgraphDeploymentID
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return id, fmt.Errorf("types: invalid bytes32 deployment id %q: %w", s, err)
	}
	if len(b) != 32 {
		return id, fmt.Errorf("types: bytes32 deployment id %q must decode to 32 bytes, got %d", s, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func deploymentIDFromIPFSHash(s string) (SubgraphDeploymentID, error) {
	var id SubgraphDeploymentID
	c, err := cid.Decode(s)
	if err != nil {
		return id, fmt.Errorf("types: invalid ipfs hash deployment id %q: %w", s, err)
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return id, fmt.Errorf("types: invalid ipfs hash deployment id %q: %w", s, err)
	}
	if decoded.Code != multihash.SHA2_256 || decoded.Length != 32 {
		return id, fmt.Errorf("types: ipfs hash deployment id %q is not a sha2-256 multihash", s)
	}
	copy(id[:], decoded.Digest)
	return id, nil
}

func (d SubgraphDeploymentID) cid() cid.Cid {
	mh, err := multihash.Encode(d[:], multihash.SHA2_256)
	if err != nil {
		// multihash.Encode only fails on an unknown code, which SHA2_256 never is.
		panic(err)
	}
	return cid.NewCidV0(mh)
}

// Bytes32 renders the id as a 0x-prefixed hex string.
func (d SubgraphDeploymentID) Bytes32() string {
	return "0x" + hex.EncodeToString(d[:])
}

// IPFSHash renders the id as a base58 CIDv0 (Qm...).
func (d SubgraphDeploymentID) IPFSHash() string {
	return d.cid().String()
}

// String implements fmt.Stringer, returning the bytes32 rendering, which is
// the canonical form used for keys, logs, and dedup.
func (d SubgraphDeploymentID) String() string {
	return d.Bytes32()
}

// GraphNodeName returns the deployment name passed to GraphNode.Ensure:
// "indexer-agent/<last-10-chars-of-ipfsHash>" per spec.
func (d SubgraphDeploymentID) GraphNodeName() string {
	ipfs := d.IPFSHash()
	if len(ipfs) <= 10 {
		return "indexer-agent/" + ipfs
	}
	return "indexer-agent/" + ipfs[len(ipfs)-10:]
}
