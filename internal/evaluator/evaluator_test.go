package evaluator

import (
	"strings"
	"testing"

	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/stretchr/testify/require"
)

func deployment(t *testing.T, hexByte string) types.SubgraphDeploymentID {
	t.Helper()
	id, err := types.NewSubgraphDeploymentID("0x" + strings.Repeat(hexByte, 32))
	require.NoError(t, err)
	return id
}

func TestEvaluateReturnsOneDecisionPerDeployment(t *testing.T) {
	d1 := deployment(t, "11")
	d2 := deployment(t, "22")

	decisions := Evaluate([]types.SubgraphDeploymentID{d1, d2}, nil)
	require.Len(t, decisions, 2)
	for _, d := range decisions {
		require.False(t, d.ToAllocate)
		require.Nil(t, d.RuleMatch.Rule)
	}
}

func TestNeverRuleAlwaysDecidesFalse(t *testing.T) {
	d1 := deployment(t, "aa")
	decisions := Evaluate([]types.SubgraphDeploymentID{d1}, []types.IndexingRule{
		{Identifier: d1.String(), IdentifierType: types.IdentifierTypeDeployment, DecisionBasis: types.DecisionBasisNever},
	})
	require.Len(t, decisions, 1)
	require.False(t, decisions[0].ToAllocate)
}

func TestGlobalAlwaysAllocatesUnmatchedDeployment(t *testing.T) {
	d1 := deployment(t, "aa")
	decisions := Evaluate([]types.SubgraphDeploymentID{d1}, []types.IndexingRule{
		{Identifier: types.GlobalIdentifier, IdentifierType: types.IdentifierTypeGlobal, DecisionBasis: types.DecisionBasisAlways},
	})
	require.Len(t, decisions, 1)
	require.True(t, decisions[0].ToAllocate)
}

func TestOffchainRuleNeverForcesToAllocate(t *testing.T) {
	d1 := deployment(t, "aa")
	decisions := Evaluate([]types.SubgraphDeploymentID{d1}, []types.IndexingRule{
		{Identifier: d1.String(), IdentifierType: types.IdentifierTypeDeployment, DecisionBasis: types.DecisionBasisOffchain},
	})
	require.Len(t, decisions, 1)
	require.False(t, decisions[0].ToAllocate)
}

func TestDeploymentRuleOverridesGlobal(t *testing.T) {
	d1 := deployment(t, "aa")
	decisions := Evaluate([]types.SubgraphDeploymentID{d1}, []types.IndexingRule{
		{Identifier: types.GlobalIdentifier, IdentifierType: types.IdentifierTypeGlobal, DecisionBasis: types.DecisionBasisNever},
		{Identifier: d1.String(), IdentifierType: types.IdentifierTypeDeployment, DecisionBasis: types.DecisionBasisAlways},
	})
	require.Len(t, decisions, 1)
	require.True(t, decisions[0].ToAllocate)
}
