// Package agent wires the eventual graph (C1-C9) into the control loop that
// hosts the two reconcilers and the dispute identifier (C10, spec §4.5-§4.9).
package agent

import (
	"context"
	"fmt"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/metrics"
	"github.com/graphprotocol/indexer-agent/internal/multinetwork"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// Periods, in milliseconds, per spec §4.5.
const (
	RulesPeriodMs                = 20_000
	ActiveDeploymentsPeriodMs    = 60_000
	ActiveAllocationsPeriodMs    = 120_000
	NetworkDeploymentsPeriodMs   = 240_000
	EpochPeriodMs                = 600_000
	TopLevelReconcilePeriodMs    = 240_000
	TargetDeploymentsPeriodMs    = 120_000
	DeploymentWorkerConcurrency  = 10
)

// Agent owns the eventual graph and the reconcilers that act on its
// combined output.
type Agent struct {
	logger      hclog.Logger
	graphNode   collaborators.GraphNode
	networks    *multinetwork.MultiNetworks[NetworkContext]
	identity    NetworkIdentityValidator // optional
	offchain    []types.SubgraphDeploymentID
	metricsSink metrics.Sink
	poiLimiter  *rate.Limiter
}

// Config gathers the collaborators and static configuration an Agent is
// built from.
type Config struct {
	Logger                 hclog.Logger
	GraphNode              collaborators.GraphNode
	Networks               []NetworkContext
	NetworkIdentityValidator NetworkIdentityValidator
	OffchainSubgraphs      []types.SubgraphDeploymentID
	MetricsSink            metrics.Sink
	// POIFetchesPerSecond bounds the dispute identifier's GraphNode POI
	// fetch rate (spec SPEC_FULL.md domain stack: x/time/rate shapes
	// outbound calls the way the teacher's own adapters do). Zero means
	// unbounded.
	POIFetchesPerSecond rate.Limit
}

// New validates cfg and builds an Agent. Constructing a MultiNetworks with
// two networks sharing a networkIdentifier is a configuration-fatal error
// (spec §3 Invariants), surfaced here rather than at Start.
func New(cfg Config) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.MetricsSink == nil {
		cfg.MetricsSink = metrics.Default()
	}
	networks, err := multinetwork.New(cfg.Networks, NetworkContext.Identity)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.POIFetchesPerSecond > 0 {
		limiter = rate.NewLimiter(cfg.POIFetchesPerSecond, 1)
	}

	return &Agent{
		logger:      cfg.Logger.Named("agent"),
		graphNode:   cfg.GraphNode,
		networks:    networks,
		identity:    cfg.NetworkIdentityValidator,
		offchain:    types.DedupDeployments(cfg.OffchainSubgraphs),
		metricsSink: cfg.MetricsSink,
		poiLimiter:  limiter,
	}, nil
}

// Start runs the startup sequence (spec §4.9) and then builds and starts
// the eventual graph (spec §4.5), returning once the graph is live. The
// graph itself keeps running in background goroutines until ctx is done.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.graphNode.Connect(ctx); err != nil {
		return fmt.Errorf("agent: connecting to graph node: %w", err)
	}

	for id, nc := range a.networks.Items() {
		if err := nc.Operator.EnsureGlobalIndexingRule(ctx); err != nil {
			return fmt.Errorf("agent: ensuring global indexing rule for network %q: %w", id, err)
		}
	}

	for id, nc := range a.networks.Items() {
		deployment, ok := nc.Network.NetworkSubgraphDeployment()
		if !ok {
			continue
		}
		if err := a.graphNode.Ensure(ctx, deployment.GraphNodeName(), deployment); err != nil {
			return fmt.Errorf("agent: ensuring meta-subgraph for network %q: %w", id, err)
		}
		if a.identity != nil {
			if err := a.identity.ValidateChainIdentity(ctx, id, deployment); err != nil {
				return fmt.Errorf("agent: meta-subgraph chain identity mismatch for network %q (fatal): %w", id, err)
			}
		}
	}

	for id, nc := range a.networks.Items() {
		if err := nc.Network.Register(ctx); err != nil {
			return fmt.Errorf("agent: registering indexer on network %q: %w", id, err)
		}
	}

	a.buildGraph(ctx)
	return nil
}
