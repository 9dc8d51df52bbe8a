// Package evaluator implements the deployment evaluator contract (C9,
// spec §4.4): a deterministic, pure function from deployments and
// normalized indexing rules to allocation decisions.
package evaluator

import "github.com/graphprotocol/indexer-agent/internal/types"

// Evaluate returns exactly one AllocationDecision per deployment in
// deployments, matching each against rules normalized to deployment
// identifiers (see internal/rules). A deployment matching a NEVER rule, or
// with no applicable rule and no ALWAYS global default, decides
// ToAllocate=false. OFFCHAIN rules never produce ToAllocate=true here; the
// agent adds OFFCHAIN deployments to targetDeployments directly (spec
// §4.5).
func Evaluate(deployments []types.SubgraphDeploymentID, rules []types.IndexingRule) []types.AllocationDecision {
	byDeployment, global := indexRules(rules)

	decisions := make([]types.AllocationDecision, 0, len(deployments))
	for _, deployment := range deployments {
		decisions = append(decisions, evaluateOne(deployment, byDeployment[deployment], global))
	}
	return decisions
}

func indexRules(rules []types.IndexingRule) (byDeployment map[types.SubgraphDeploymentID]types.IndexingRule, global *types.IndexingRule) {
	byDeployment = make(map[types.SubgraphDeploymentID]types.IndexingRule)
	for i, rule := range rules {
		switch rule.IdentifierType {
		case types.IdentifierTypeGlobal:
			r := rules[i]
			global = &r
		case types.IdentifierTypeDeployment:
			id, err := types.NewSubgraphDeploymentID(rule.Identifier)
			if err != nil {
				continue
			}
			byDeployment[id] = rule
		}
	}
	return byDeployment, global
}

func evaluateOne(deployment types.SubgraphDeploymentID, rule types.IndexingRule, global *types.IndexingRule) types.AllocationDecision {
	matched, ok := effectiveRule(rule, global)
	if !ok {
		return types.AllocationDecision{
			Deployment: deployment,
			ToAllocate: false,
			RuleMatch:  types.RuleMatch{Rule: nil, Reason: "no matching rule and no global default"},
		}
	}

	switch matched.DecisionBasis {
	case types.DecisionBasisAlways:
		return decide(deployment, matched, true, "rule decision basis is always")
	case types.DecisionBasisNever:
		return decide(deployment, matched, false, "rule decision basis is never")
	case types.DecisionBasisOffchain:
		return decide(deployment, matched, false, "rule decision basis is offchain; targeted via the offchain rule set, not an allocation decision")
	case types.DecisionBasisRules:
		return decide(deployment, matched, matchesThresholds(matched), "evaluated against rule thresholds")
	default:
		return decide(deployment, matched, false, "unrecognized decision basis")
	}
}

// effectiveRule returns the rule that applies to a deployment: its own
// rule merged with the global defaults, if a deployment-specific rule
// exists; otherwise the global rule itself, if one exists and its decision
// basis is ALWAYS (a global NEVER/RULES/OFFCHAIN rule with no
// deployment-specific override never allocates a deployment it wasn't
// asked about).
func effectiveRule(rule types.IndexingRule, global *types.IndexingRule) (types.IndexingRule, bool) {
	hasSpecific := rule.Identifier != ""
	switch {
	case hasSpecific && global != nil:
		return rule.MergeGlobal(*global), true
	case hasSpecific:
		return rule, true
	case global != nil && global.DecisionBasis == types.DecisionBasisAlways:
		return *global, true
	default:
		return types.IndexingRule{}, false
	}
}

func decide(deployment types.SubgraphDeploymentID, rule types.IndexingRule, toAllocate bool, reason string) types.AllocationDecision {
	r := rule
	return types.AllocationDecision{
		Deployment: deployment,
		ToAllocate: toAllocate,
		RuleMatch:  types.RuleMatch{Rule: &r, Reason: reason},
	}
}

// matchesThresholds decides a RULES-basis rule without live signal, stake
// or query-fee data, which the evaluator does not receive. It returns true
// when the rule sets none of MinSignal, MaxSignal, MinStake and
// MinAverageQueryFees (a RULES rule with only allocationAmount configured
// means "allocate everything not otherwise excluded"), and false when any
// of them is set; threshold values are never compared against measurements.
func matchesThresholds(rule types.IndexingRule) bool {
	return rule.MinSignal == nil && rule.MaxSignal == nil && rule.MinStake == nil && rule.MinAverageQueryFees == nil
}
