// Package metrics defines the operational counters the control loop emits.
// Names and shapes follow go-metrics, the teacher's own metrics library;
// spec §6 leaves names implementation-defined, so this package is where
// they are actually defined.
package metrics

import "github.com/hashicorp/go-metrics"

// Sink is the subset of go-metrics' global API this package uses, narrowed
// to an interface so tests can assert on emitted counters without a real
// sink installed.
type Sink interface {
	IncrCounterWithLabels(key []string, val float32, labels []metrics.Label)
	SetGaugeWithLabels(key []string, val float32, labels []metrics.Label)
}

// Default wraps go-metrics' process-wide default handle.
func Default() Sink {
	return defaultSink{}
}

type defaultSink struct{}

func (defaultSink) IncrCounterWithLabels(key []string, val float32, labels []metrics.Label) {
	metrics.IncrCounterWithLabels(key, val, labels)
}

func (defaultSink) SetGaugeWithLabels(key []string, val float32, labels []metrics.Label) {
	metrics.SetGaugeWithLabels(key, val, labels)
}

func networkLabel(protocolNetwork string) []metrics.Label {
	return []metrics.Label{{Name: "protocol_network", Value: protocolNetwork}}
}

// DeploymentsDeployed counts deployments ensured on graph-node this cycle.
func DeploymentsDeployed(s Sink, protocolNetwork string, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "deployments", "deployed"}, float32(n), networkLabel(protocolNetwork))
}

// DeploymentsRemoved counts deployments removed from graph-node this cycle.
func DeploymentsRemoved(s Sink, protocolNetwork string, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "deployments", "removed"}, float32(n), networkLabel(protocolNetwork))
}

// AllocationsCreated counts allocations requested via createAllocation this
// cycle (one per call).
func AllocationsCreated(s Sink, protocolNetwork string, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "allocations", "created"}, float32(n), networkLabel(protocolNetwork))
}

// AllocationsClosed counts active allocations passed to
// closeEligibleAllocations this cycle.
func AllocationsClosed(s Sink, protocolNetwork string, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "allocations", "closed"}, float32(n), networkLabel(protocolNetwork))
}

// AllocationsRefreshed counts expired allocations passed to
// refreshExpiredAllocations this cycle.
func AllocationsRefreshed(s Sink, protocolNetwork string, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "allocations", "refreshed"}, float32(n), networkLabel(protocolNetwork))
}

// PotentialDisputes sets the count of potential disputes recorded by the
// most recent dispute identification pass.
func PotentialDisputes(s Sink, protocolNetwork string, n int) {
	s.SetGaugeWithLabels([]string{"indexer_agent", "disputes", "potential"}, float32(n), networkLabel(protocolNetwork))
}

// ValidAllocations sets the count of allocations confirmed valid by the
// most recent dispute identification pass.
func ValidAllocations(s Sink, protocolNetwork string, n int) {
	s.SetGaugeWithLabels([]string{"indexer_agent", "disputes", "valid_allocations"}, float32(n), networkLabel(protocolNetwork))
}

// ReconciliationCycles counts completed top-level pipe invocations.
func ReconciliationCycles(s Sink, n int) {
	s.IncrCounterWithLabels([]string{"indexer_agent", "reconciliation", "cycles"}, float32(n), nil)
}
