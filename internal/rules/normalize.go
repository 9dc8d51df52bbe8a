// Package rules normalizes subgraph-identified indexing rules to
// deployment-identified ones (spec §4.3): the latest version of the
// subgraph, plus (within a recency buffer) its previous version.
package rules

import (
	"time"

	"github.com/graphprotocol/indexer-agent/internal/types"
)

// Normalize converts every SUBGRAPH-typed rule in rules to a
// DEPLOYMENT-typed rule pointing at the subgraph's latest deployment
// version, and appends a copy targeting the previous version when that
// version was created within previousVersionBufferSec seconds of now and no
// rule already targets it.
//
// Unlike the reference implementation this rewrites and appends into the
// input array in place, Normalize is a pure function: it returns a new
// slice and never mutates rules, so downstream eventual snapshots stay
// immutable (spec §9 design note, §5 "Shared mutable state").
func Normalize(rules []types.IndexingRule, subgraphs []types.Subgraph, now time.Time, previousVersionBufferSec int64) []types.IndexingRule {
	subgraphByID := make(map[string]types.Subgraph, len(subgraphs))
	for _, sg := range subgraphs {
		subgraphByID[sg.ID] = sg
	}

	out := make([]types.IndexingRule, len(rules))
	copy(out, rules)

	targeted := existingDeploymentTargets(out)

	var appended []types.IndexingRule
	for i, rule := range out {
		if rule.IdentifierType != types.IdentifierTypeSubgraph {
			continue
		}
		sg, ok := subgraphByID[rule.Identifier]
		if !ok {
			continue
		}
		latest, ok := sg.LatestVersion()
		if !ok {
			continue
		}
		if !targeted[latest.Deployment] {
			out[i].IdentifierType = types.IdentifierTypeDeployment
			out[i].Identifier = latest.Deployment.String()
			targeted[latest.Deployment] = true
		}

		previous, ok := sg.PreviousVersion()
		if !ok {
			continue
		}
		createdWithinBuffer := latest.CreatedAt.Unix() > now.Unix()-previousVersionBufferSec
		if createdWithinBuffer && !targeted[previous.Deployment] {
			copyRule := rule
			copyRule.IdentifierType = types.IdentifierTypeDeployment
			copyRule.Identifier = previous.Deployment.String()
			appended = append(appended, copyRule)
			targeted[previous.Deployment] = true
		}
	}

	return append(out, appended...)
}

func existingDeploymentTargets(rules []types.IndexingRule) map[types.SubgraphDeploymentID]bool {
	targeted := make(map[types.SubgraphDeploymentID]bool, len(rules))
	for _, rule := range rules {
		if rule.IdentifierType != types.IdentifierTypeDeployment {
			continue
		}
		id, err := types.NewSubgraphDeploymentID(rule.Identifier)
		if err != nil {
			continue
		}
		targeted[id] = true
	}
	return targeted
}

// PreviousVersionBufferSeconds computes the recency buffer per spec §4.3:
// epochLength (blocks) × assumedSecondsPerBlock(15) × fixedEpochCount(100).
// epochLength is expressed in blocks, as returned by
// contracts.epochManager.epochLength().
func PreviousVersionBufferSeconds(epochLengthBlocks uint64) int64 {
	const assumedSecondsPerBlock = 15
	const fixedEpochCount = 100
	return int64(epochLengthBlocks) * assumedSecondsPerBlock * fixedEpochCount
}
