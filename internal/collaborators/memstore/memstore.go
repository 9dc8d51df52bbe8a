// Package memstore provides in-memory implementations of the
// collaborators interfaces (GraphNode, NetworkMonitor, Network, Operator),
// sufficient to drive and test the reconciliation engine without a real
// graph-node, blockchain RPC, or SQL-backed rules/disputes store. Rules and
// POI disputes are kept in a go-memdb database, mirroring the teacher's own
// use of go-memdb as its authoritative in-memory state store
// (`client/state`, `nomad/state`); allocations, deployments, and epoch
// state are plain mutex-guarded fixtures that tests mutate directly to
// drive scenarios.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphprotocol/indexer-agent/internal/collaborators"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-memdb"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"rules": {
				Name: "rules",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
			"disputes": {
				Name: "disputes",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"status": {
						Name:    "status",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}
}

type ruleRecord struct {
	Key  string
	Rule types.IndexingRule
}

type disputeRecord struct {
	Key     string
	Status  string
	Dispute types.POIDispute
}

func ruleKey(networkIdentifier, identifier string) string {
	return networkIdentifier + "/" + identifier
}

func disputeKey(allocationID, protocolNetwork string) string {
	return allocationID + "/" + protocolNetwork
}

// GraphNode is an in-memory GraphNode fake: ensured deployments are tracked
// in a set, and POI responses are pre-seeded by (deployment, indexer).
type GraphNode struct {
	mu           sync.Mutex
	connected    bool
	deployments  map[types.SubgraphDeploymentID]bool
	poiResponses map[poiKey][]byte
	// poiDefaults holds responses seeded without a specific block (via
	// SetProofOfIndexing), used when no block-specific response matches.
	poiDefaults map[poiDefaultKey][]byte
}

type poiKey struct {
	deployment types.SubgraphDeploymentID
	indexer    string
	blockHash  string
}

type poiDefaultKey struct {
	deployment types.SubgraphDeploymentID
	indexer    string
}

// NewGraphNode returns an empty GraphNode fake.
func NewGraphNode() *GraphNode {
	return &GraphNode{
		deployments:  make(map[types.SubgraphDeploymentID]bool),
		poiResponses: make(map[poiKey][]byte),
		poiDefaults:  make(map[poiDefaultKey][]byte),
	}
}

func (g *GraphNode) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = true
	return nil
}

func (g *GraphNode) SubgraphDeployments(ctx context.Context) ([]types.SubgraphDeploymentID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.SubgraphDeploymentID, 0, len(g.deployments))
	for d := range g.deployments {
		out = append(out, d)
	}
	return out, nil
}

func (g *GraphNode) Ensure(ctx context.Context, name string, id types.SubgraphDeploymentID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deployments[id] = true
	return nil
}

func (g *GraphNode) Remove(ctx context.Context, id types.SubgraphDeploymentID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.deployments, id)
	return nil
}

// SetProofOfIndexing seeds the POI GraphNode.ProofOfIndexing returns for a
// (deployment, indexer) pair at any block that has no more specific
// response registered via SetProofOfIndexingAt.
func (g *GraphNode) SetProofOfIndexing(deployment types.SubgraphDeploymentID, indexer string, poi []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poiDefaults[poiDefaultKey{deployment, indexer}] = poi
}

// SetProofOfIndexingAt seeds the POI GraphNode.ProofOfIndexing returns for a
// (deployment, indexer) pair at one specific block, letting a test give
// distinct reference POIs for the closing block and the previous-epoch
// block of the same dispute (spec §4.6 step 4).
func (g *GraphNode) SetProofOfIndexingAt(deployment types.SubgraphDeploymentID, indexer string, block collaborators.BlockPointer, poi []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poiResponses[poiKey{deployment, indexer, block.Hash}] = poi
}

func (g *GraphNode) ProofOfIndexing(ctx context.Context, deployment types.SubgraphDeploymentID, block collaborators.BlockPointer, indexer string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if poi, ok := g.poiResponses[poiKey{deployment, indexer, block.Hash}]; ok {
		return poi, nil
	}
	return g.poiDefaults[poiDefaultKey{deployment, indexer}], nil
}

var _ collaborators.GraphNode = (*GraphNode)(nil)

// Network is an in-memory Network/NetworkMonitor/Operator fake scoped to a
// single protocol network. Allocations, deployments, epoch state, and
// blocks are plain fixtures; indexing rules and POI disputes are backed by
// go-memdb, the way the teacher's state store backs its own mutable records.
type Network struct {
	spec types.NetworkSpecification
	db   *memdb.MemDB

	mu                   sync.Mutex
	registered           bool
	epoch                uint64
	epochLength          uint64
	channelDisputeEpochs uint64
	maxAllocationEpochs  uint64
	subgraphDeployments  []types.SubgraphDeploymentID
	subgraphs            map[string]types.Subgraph
	allocations          map[string]types.Allocation // by id, all statuses
	blocks               map[string]collaborators.BlockPointer
}

// NewNetwork returns a Network fake for spec with zeroed fixtures.
func NewNetwork(spec types.NetworkSpecification) *Network {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		// schema() is a fixed literal; memdb only rejects malformed schemas.
		panic(fmt.Sprintf("memstore: invalid schema: %v", err))
	}
	return &Network{
		spec:        spec,
		db:          db,
		subgraphs:   make(map[string]types.Subgraph),
		allocations: make(map[string]types.Allocation),
		blocks:      make(map[string]collaborators.BlockPointer),
	}
}

// --- test fixture setters ---

func (n *Network) SetEpoch(epoch uint64)                          { n.mu.Lock(); n.epoch = epoch; n.mu.Unlock() }
func (n *Network) SetEpochLength(length uint64)                   { n.mu.Lock(); n.epochLength = length; n.mu.Unlock() }
func (n *Network) SetChannelDisputeEpochs(epochs uint64)          { n.mu.Lock(); n.channelDisputeEpochs = epochs; n.mu.Unlock() }
func (n *Network) SetMaxAllocationEpochs(epochs uint64)           { n.mu.Lock(); n.maxAllocationEpochs = epochs; n.mu.Unlock() }
func (n *Network) SetSubgraphDeployments(ids []types.SubgraphDeploymentID) {
	n.mu.Lock()
	n.subgraphDeployments = ids
	n.mu.Unlock()
}
func (n *Network) SetSubgraph(sg types.Subgraph) { n.mu.Lock(); n.subgraphs[sg.ID] = sg; n.mu.Unlock() }
func (n *Network) SetBlock(hash string, block collaborators.BlockPointer) {
	n.mu.Lock()
	n.blocks[hash] = block
	n.mu.Unlock()
}

func (n *Network) PutAllocation(a types.Allocation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.allocations[a.ID] = a
}

// --- collaborators.Network ---

func (n *Network) Specification() types.NetworkSpecification { return n.spec }

func (n *Network) Register(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = true
	return nil
}

func (n *Network) ClaimRebateRewards(ctx context.Context, allocations []types.Allocation) error {
	return nil
}

func (n *Network) EpochLength(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epochLength, nil
}

func (n *Network) ChannelDisputeEpochs(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.channelDisputeEpochs, nil
}

func (n *Network) MaxAllocationEpochs(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxAllocationEpochs, nil
}

func (n *Network) GetAllocation(ctx context.Context, id string) (types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.allocations[id]
	if !ok {
		return types.Allocation{}, fmt.Errorf("memstore: unknown allocation %q", id)
	}
	return a, nil
}

func (n *Network) GetBlock(ctx context.Context, hash string) (collaborators.BlockPointer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.blocks[hash]
	if !ok {
		return collaborators.BlockPointer{}, fmt.Errorf("memstore: unknown block %q", hash)
	}
	return b, nil
}

func (n *Network) NetworkSubgraphDeployment() (types.SubgraphDeploymentID, bool) {
	if n.spec.Subgraphs.NetworkSubgraphDeployment == nil {
		return types.SubgraphDeploymentID{}, false
	}
	return *n.spec.Subgraphs.NetworkSubgraphDeployment, true
}

var _ collaborators.Network = (*Network)(nil)

// --- collaborators.NetworkMonitor ---

func (n *Network) CurrentEpochNumber(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.epoch, nil
}

func (n *Network) Subgraphs(ctx context.Context, ids []string) ([]types.Subgraph, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Subgraph, 0, len(ids))
	for _, id := range ids {
		if sg, ok := n.subgraphs[id]; ok {
			out = append(out, sg)
		}
	}
	return out, nil
}

func (n *Network) SubgraphDeployments(ctx context.Context) ([]types.SubgraphDeploymentID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subgraphDeployments, nil
}

func (n *Network) Allocations(ctx context.Context, status types.AllocationStatus) ([]types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Allocation, 0)
	for _, a := range n.allocations {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (n *Network) RecentlyClosedAllocations(ctx context.Context, epoch uint64, lookbackEpochs uint64) ([]types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Allocation, 0)
	for _, a := range n.allocations {
		if a.Status != types.AllocationStatusClosed || a.ClosedAtEpoch == nil {
			continue
		}
		if *a.ClosedAtEpoch >= epoch && *a.ClosedAtEpoch < epoch+lookbackEpochs+1 {
			out = append(out, a)
		}
	}
	return out, nil
}

func (n *Network) ClaimableAllocations(ctx context.Context, epoch uint64) ([]types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Allocation, 0)
	for _, a := range n.allocations {
		if a.Status == types.AllocationStatusClosed && a.ClosedAtEpoch != nil && *a.ClosedAtEpoch <= epoch {
			out = append(out, a)
		}
	}
	return out, nil
}

func (n *Network) DisputableAllocations(ctx context.Context, epoch uint64, activeDeployments []types.SubgraphDeploymentID, minSignal string) ([]types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	active := types.DeploymentSet(activeDeployments)
	out := make([]types.Allocation, 0)
	for _, a := range n.allocations {
		if a.Status != types.AllocationStatusClosed || a.ClosedAtEpoch == nil {
			continue
		}
		if *a.ClosedAtEpoch == epoch && active.Contains(a.SubgraphDeployment) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (n *Network) ClosedAllocations(ctx context.Context, deployment types.SubgraphDeploymentID) ([]types.Allocation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.Allocation, 0)
	for _, a := range n.allocations {
		if a.Status == types.AllocationStatusClosed && a.SubgraphDeployment == deployment {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ collaborators.NetworkMonitor = (*Network)(nil)

// --- collaborators.Operator ---

func (n *Network) EnsureGlobalIndexingRule(ctx context.Context) error {
	txn := n.db.Txn(true)
	defer txn.Abort()
	key := ruleKey(n.spec.NetworkIdentifier, types.GlobalIdentifier)
	if existing, err := txn.First("rules", "id", key); err == nil && existing != nil {
		return nil
	}
	rule := types.IndexingRule{
		Identifier:     types.GlobalIdentifier,
		IdentifierType: types.IdentifierTypeGlobal,
		DecisionBasis:  types.DecisionBasisNever,
		ProtocolNetwork: n.spec.NetworkIdentifier,
	}
	if err := txn.Insert("rules", &ruleRecord{Key: key, Rule: rule}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// PutIndexingRule upserts a rule, a test helper mirroring the management API
// mutation spec.md §3 treats as external.
func (n *Network) PutIndexingRule(rule types.IndexingRule) error {
	txn := n.db.Txn(true)
	defer txn.Abort()
	key := ruleKey(rule.ProtocolNetwork, rule.Identifier)
	if err := txn.Insert("rules", &ruleRecord{Key: key, Rule: rule}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (n *Network) IndexingRules(ctx context.Context, mergeGlobal bool) ([]types.IndexingRule, error) {
	txn := n.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("rules", "id")
	if err != nil {
		return nil, err
	}
	var global *types.IndexingRule
	var rules []types.IndexingRule
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*ruleRecord)
		if rec.Rule.ProtocolNetwork != n.spec.NetworkIdentifier {
			continue
		}
		if rec.Rule.IdentifierType == types.IdentifierTypeGlobal {
			r := rec.Rule
			global = &r
			continue
		}
		rules = append(rules, rec.Rule)
	}
	if !mergeGlobal || global == nil {
		if global != nil {
			rules = append(rules, *global)
		}
		return rules, nil
	}
	merged := make([]types.IndexingRule, 0, len(rules)+1)
	for _, r := range rules {
		merged = append(merged, r.MergeGlobal(*global))
	}
	merged = append(merged, *global)
	return merged, nil
}

func (n *Network) FetchPOIDisputes(ctx context.Context, status types.DisputeStatus, epochThreshold uint64, networkIdentifier string) ([]types.POIDispute, error) {
	txn := n.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("disputes", "status", string(status))
	if err != nil {
		return nil, err
	}
	out := make([]types.POIDispute, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*disputeRecord)
		if rec.Dispute.ProtocolNetwork == networkIdentifier && rec.Dispute.ClosedEpoch == epochThreshold {
			out = append(out, rec.Dispute)
		}
	}
	return out, nil
}

func (n *Network) StorePOIDisputes(ctx context.Context, disputes []types.POIDispute) ([]types.POIDispute, error) {
	txn := n.db.Txn(true)
	defer txn.Abort()
	for _, d := range disputes {
		key := disputeKey(d.AllocationID, d.ProtocolNetwork)
		if err := txn.Insert("disputes", &disputeRecord{Key: key, Status: string(d.Status), Dispute: d}); err != nil {
			return nil, err
		}
	}
	txn.Commit()
	return disputes, nil
}

func (n *Network) CreateAllocation(ctx context.Context, decision types.AllocationDecision, previousClosed *types.Allocation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.allocations[fmt.Sprintf("new-%s-%d", decision.Deployment, len(n.allocations))] = types.Allocation{
		SubgraphDeployment: decision.Deployment,
		Status:             types.AllocationStatusActive,
	}
	return nil
}

func (n *Network) CloseEligibleAllocations(ctx context.Context, decision types.AllocationDecision, active []types.Allocation, epoch uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range active {
		closedEpoch := epoch
		rec := n.allocations[a.ID]
		rec.Status = types.AllocationStatusClosed
		rec.ClosedAtEpoch = &closedEpoch
		n.allocations[a.ID] = rec
	}
	return nil
}

func (n *Network) RefreshExpiredAllocations(ctx context.Context, decision types.AllocationDecision, expired []types.Allocation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range expired {
		n.allocations[fmt.Sprintf("refresh-%s-%d", a.ID, len(n.allocations))] = types.Allocation{
			SubgraphDeployment: decision.Deployment,
			Status:             types.AllocationStatusActive,
		}
	}
	return nil
}

var _ collaborators.Operator = (*Network)(nil)
