package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"OracleVerifier/internal/api"
	"OracleVerifier/internal/events"
	"OracleVerifier/internal/genesis"
	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/metrics"
	"OracleVerifier/internal/registry"
	"OracleVerifier/internal/snapshot"
	"OracleVerifier/internal/storage"
	"OracleVerifier/internal/verifier"
	"OracleVerifier/internal/votes"
)

// Node represents a running verifier node.
type Node struct {
	cfg       *Config
	storage   *storage.Storage
	operators *registry.Operators
	tasks     *registry.Tasks
	votes     *votes.Store
	bus       *events.Bus
	metrics   *metrics.Collector
	verifier  verifier.Verifier
	snapshots *snapshot.Manager
	api       *api.Server
	unsub     func()
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initGenesis(); err != nil {
		n.Close()
		return nil, err
	}

	if err := n.initVerifier(); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage and the stores on top of it.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db
	n.operators = registry.NewOperators(db)
	n.tasks = registry.NewTasks(db)
	n.votes = votes.NewStore(db)

	return nil
}

// initGenesis seeds the operator ledger from the genesis file, if any.
func (n *Node) initGenesis() error {
	if n.cfg.GenesisPath == "" {
		return nil
	}

	cfg, err := genesis.Load(n.cfg.GenesisPath)
	if err != nil {
		return err
	}

	if _, err := genesis.Apply(cfg, n.operators); err != nil {
		return fmt.Errorf("apply genesis:\n%w", err)
	}

	return nil
}

// initVerifier wires the event bus, metrics and the configured verifier.
func (n *Node) initVerifier() error {
	n.bus = events.NewBus()

	if n.cfg.Metrics {
		n.metrics = metrics.NewCollector()
	}

	v, err := verifier.New(n.cfg.Verifier, verifier.Deps{
		Ledger:         n.operators,
		Votes:          n.votes,
		Tasks:          n.tasks,
		Events:         n.bus,
		PruneCompleted: n.cfg.PruneCompleted,
	})
	if err != nil {
		return fmt.Errorf("init verifier:\n%w", err)
	}

	n.verifier = v

	return nil
}

// Run starts the node and blocks until shutdown signal.
// On a start failure every component is closed before returning.
func (n *Node) Run() error {
	if err := n.start(); err != nil {
		n.Close()
		return err
	}

	return n.waitForShutdown()
}

// start launches metrics, snapshots and the API.
func (n *Node) start() error {
	if n.metrics != nil {
		ch, unsub := n.bus.Subscribe()
		n.unsub = unsub
		go n.metrics.Run(ch)
	}

	opts := api.Options{
		Addr:               n.cfg.HTTPAddress,
		RequiredPercentage: n.cfg.Verifier.RequiredPercentage(),
	}

	if n.cfg.SnapshotInterval > 0 {
		n.snapshots = snapshot.NewManager(n.storage, n.cfg.SnapshotInterval, n.cfg.SnapshotPath)
		n.snapshots.Start()
		opts.Snapshots = n.snapshots
	} else {
		logger.Info("snapshots disabled")
	}

	if n.metrics != nil {
		opts.Metrics = n.metrics
	}

	n.api = api.New(opts, n.verifier, n.operators, n.tasks, n.votes)
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
// The API stops first so no vote is accepted after the final snapshot.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.snapshots != nil {
		n.snapshots.Stop()
	}

	if n.unsub != nil {
		n.unsub()
	}

	if n.bus != nil {
		n.bus.Close()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
