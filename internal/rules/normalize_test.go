package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/stretchr/testify/require"
)

func deployment(t *testing.T, hexByte string) types.SubgraphDeploymentID {
	t.Helper()
	id, err := types.NewSubgraphDeploymentID("0x" + strings.Repeat(hexByte, 32))
	require.NoError(t, err)
	return id
}

func TestNormalizeRewritesSubgraphRuleToLatestDeployment(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	qmA := deployment(t, "aa")
	qmB := deployment(t, "bb")

	subgraphs := []types.Subgraph{{
		ID:           "0xSG",
		VersionCount: 2,
		Versions: []types.SubgraphVersion{
			{Version: 0, CreatedAt: now.Add(-1000 * time.Second), Deployment: qmA},
			{Version: 1, CreatedAt: now.Add(-10 * time.Second), Deployment: qmB},
		},
	}}
	input := []types.IndexingRule{{Identifier: "0xSG", IdentifierType: types.IdentifierTypeSubgraph}}

	out := Normalize(input, subgraphs, now, 3600)

	require.Len(t, out, 2)
	require.Equal(t, types.IdentifierTypeDeployment, out[0].IdentifierType)
	require.Equal(t, qmB.String(), out[0].Identifier)
	require.Equal(t, types.IdentifierTypeDeployment, out[1].IdentifierType)
	require.Equal(t, qmA.String(), out[1].Identifier)

	// input must not be mutated: downstream eventual snapshots stay immutable.
	require.Equal(t, types.IdentifierTypeSubgraph, input[0].IdentifierType)
}

func TestNormalizeSkipsPreviousVersionOutsideBuffer(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	qmA := deployment(t, "aa")
	qmB := deployment(t, "bb")

	subgraphs := []types.Subgraph{{
		ID:           "0xSG",
		VersionCount: 2,
		Versions: []types.SubgraphVersion{
			{Version: 0, CreatedAt: now.Add(-10000 * time.Second), Deployment: qmA},
			{Version: 1, CreatedAt: now.Add(-9000 * time.Second), Deployment: qmB},
		},
	}}
	input := []types.IndexingRule{{Identifier: "0xSG", IdentifierType: types.IdentifierTypeSubgraph}}

	out := Normalize(input, subgraphs, now, 3600)

	require.Len(t, out, 1)
	require.Equal(t, qmB.String(), out[0].Identifier)
}

func TestNormalizeLeavesRuleUnchangedWhenSubgraphUnknown(t *testing.T) {
	now := time.Now()
	input := []types.IndexingRule{{Identifier: "0xMissing", IdentifierType: types.IdentifierTypeSubgraph}}

	out := Normalize(input, nil, now, 3600)

	require.Len(t, out, 1)
	require.Equal(t, types.IdentifierTypeSubgraph, out[0].IdentifierType)
}

func TestNormalizeDoesNotDuplicateExistingDeploymentTarget(t *testing.T) {
	now := time.Now()
	qmA := deployment(t, "aa")
	qmB := deployment(t, "bb")

	subgraphs := []types.Subgraph{{
		ID:           "0xSG",
		VersionCount: 2,
		Versions: []types.SubgraphVersion{
			{Version: 0, CreatedAt: now.Add(-10 * time.Second), Deployment: qmA},
			{Version: 1, CreatedAt: now.Add(-5 * time.Second), Deployment: qmB},
		},
	}}
	input := []types.IndexingRule{
		{Identifier: qmA.String(), IdentifierType: types.IdentifierTypeDeployment},
		{Identifier: "0xSG", IdentifierType: types.IdentifierTypeSubgraph},
	}

	out := Normalize(input, subgraphs, now, 3600)

	count := 0
	for _, r := range out {
		if r.Identifier == qmA.String() {
			count++
		}
	}
	require.Equal(t, 1, count, "no duplicate (network, identifier) may be produced")
}

func TestPreviousVersionBufferSeconds(t *testing.T) {
	require.Equal(t, int64(15*100*6646), PreviousVersionBufferSeconds(6646))
}
