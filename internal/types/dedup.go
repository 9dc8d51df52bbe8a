package types

import "github.com/hashicorp/go-set/v3"

// DedupDeployments returns deployments deduplicated by their bytes32
// identity, preserving first-seen order. SubgraphDeploymentID is already a
// comparable [32]byte array, so a plain go-set.Set keyed on the value
// itself is the dedup primitive (spec §4.7: "Deduplicate both active and
// target by bytes32").
func DedupDeployments(deployments ...[]SubgraphDeploymentID) []SubgraphDeploymentID {
	seen := set.New[SubgraphDeploymentID](0)
	out := make([]SubgraphDeploymentID, 0)
	for _, group := range deployments {
		for _, d := range group {
			if seen.Insert(d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// DeploymentSet builds a go-set.Set of the given deployments, the shared
// primitive behind the deployment reconciler's deploy/remove diffs.
func DeploymentSet(deployments []SubgraphDeploymentID) *set.Set[SubgraphDeploymentID] {
	s := set.New[SubgraphDeploymentID](len(deployments))
	for _, d := range deployments {
		s.Insert(d)
	}
	return s
}

// Diff returns the elements of a not present in b, by bytes32 identity.
func Diff(a, b []SubgraphDeploymentID) []SubgraphDeploymentID {
	bs := DeploymentSet(b)
	out := make([]SubgraphDeploymentID, 0)
	for _, d := range a {
		if !bs.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}
