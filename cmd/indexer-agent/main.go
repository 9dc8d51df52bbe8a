// Command indexer-agent runs the reconciliation engine's control loop: it
// loads network specifications, wires in-memory collaborators (a real
// deployment ships production GraphNode/Network/Operator adapters in their
// place), and starts the agent. Flag parsing is stdlib flag, in the style
// of a minimal Nomad command/agent bootstrap (see DESIGN.md for why the
// teacher's multi-subcommand CLI machinery stays unwired).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/graphprotocol/indexer-agent/config"
	"github.com/graphprotocol/indexer-agent/internal/agent"
	"github.com/graphprotocol/indexer-agent/internal/collaborators/memstore"
	"github.com/graphprotocol/indexer-agent/internal/types"
	"github.com/hashicorp/go-hclog"
)

func main() {
	var (
		networkSpecDir = flag.String("network-specs", "./config/networks", "directory of per-network specification files")
		logLevel       = flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "indexer-agent",
		Level: hclog.LevelFromString(*logLevel),
	})

	if err := run(logger, *networkSpecDir); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, networkSpecDir string) error {
	specs, err := config.LoadNetworkSpecifications(networkSpecDir)
	if err != nil {
		// Configuration fatal (spec §7): terminate the process.
		return fmt.Errorf("loading network specifications: %w", err)
	}
	if len(specs) == 0 {
		return fmt.Errorf("no network specifications found in %s", networkSpecDir)
	}

	graphNode := memstore.NewGraphNode()

	networks := make([]agent.NetworkContext, 0, len(specs))
	for _, spec := range specs {
		net := memstore.NewNetwork(spec)
		networks = append(networks, agent.NetworkContext{
			Spec:     spec,
			Monitor:  net,
			Network:  net,
			Operator: net,
		})
	}

	a, err := agent.New(agent.Config{
		Logger:              logger,
		GraphNode:           graphNode,
		Networks:            networks,
		OffchainSubgraphs:   []types.SubgraphDeploymentID{},
		POIFetchesPerSecond: 5,
	})
	if err != nil {
		return fmt.Errorf("constructing agent: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
