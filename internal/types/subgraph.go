package types

import "time"

// SubgraphVersion is one numbered version of a Subgraph, pointing at the
// deployment that version was published to.
type SubgraphVersion struct {
	Version    int
	CreatedAt  time.Time
	Deployment SubgraphDeploymentID
}

// Subgraph is a named on-chain object with a history of deployment versions.
// Versions are integer-indexed starting at 0; VersionCount-1 is the latest.
type Subgraph struct {
	ID           string
	VersionCount int
	Versions     []SubgraphVersion
}

// LatestVersion returns the subgraph's highest-indexed version, if any.
func (s Subgraph) LatestVersion() (SubgraphVersion, bool) {
	return s.versionAt(s.VersionCount - 1)
}

// PreviousVersion returns the version immediately preceding the latest one,
// if one exists.
func (s Subgraph) PreviousVersion() (SubgraphVersion, bool) {
	return s.versionAt(s.VersionCount - 2)
}

func (s Subgraph) versionAt(v int) (SubgraphVersion, bool) {
	if v < 0 {
		return SubgraphVersion{}, false
	}
	for _, version := range s.Versions {
		if version.Version == v {
			return version, true
		}
	}
	return SubgraphVersion{}, false
}
