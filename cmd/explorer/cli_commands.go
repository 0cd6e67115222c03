// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openSVM/opensvm-sub007/pkg/logging"
	"github.com/openSVM/opensvm-sub007/services/explorer/config"
	"github.com/openSVM/opensvm-sub007/services/explorer/server"
	"github.com/openSVM/opensvm-sub007/services/explorer/source"
	"github.com/openSVM/opensvm-sub007/services/explorer/state"
	"github.com/openSVM/opensvm-sub007/services/explorer/storage"
	"github.com/openSVM/opensvm-sub007/services/explorer/storage/badger"
	"github.com/openSVM/opensvm-sub007/services/explorer/telemetry"
)

var (
	rootCmd = &cobra.Command{
		Use:   "explorer",
		Short: "A CLI to run and manage the openSVM transaction graph explorer",
		Long: `Explorer serves interactive Solana transaction graphs over HTTP and
manages the exploration states it persists between runs.`,
	}
	configPath string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the explorer API server",
		Long: `Starts the graph exploration API. Sessions seed a graph from an account
or transaction signature, expand it against the configured Solana RPC
endpoint, and stream focus and graph events over WebSockets.`,
		Run: runServe,
	}
	servePort    int
	serveHost    string
	serveRPCURL  string
	serveStorage string
	serveDataDir string
	serveDebug   bool

	// Saved-state administration commands
	statesCmd = &cobra.Command{
		Use:   "states",
		Short: "Manage persisted exploration states",
		Long:  `List, prune, or delete graph exploration states stored in the durable tier.`,
	}
	statesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all saved exploration states",
		Run:   runStatesList,
	}
	statesCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired and unreadable exploration states",
		Run:   runStatesCleanup,
	}
	statesDeleteCmd = &cobra.Command{
		Use:   "delete [signature]",
		Short: "Delete the state saved for a specific transaction signature",
		Args:  cobra.ExactArgs(1),
		Run:   runStatesDelete,
	}
	statesClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "DANGER: Deletes every saved exploration state",
		Run:   runStatesClear,
	}
)

// init() runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to explorer.yaml (default: ./explorer.yaml, then ~/.opensvm/explorer.yaml)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the configured listen port")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Override the configured listen host")
	serveCmd.Flags().StringVar(&serveRPCURL, "rpc-url", "", "Override the configured Solana RPC endpoint")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "Override the state storage backend (badger or memory)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Override the durable state directory")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging and Gin debug mode")

	rootCmd.AddCommand(statesCmd)
	statesCmd.AddCommand(statesListCmd)
	statesCmd.AddCommand(statesCleanupCmd)
	statesCmd.AddCommand(statesDeleteCmd)
	statesCmd.AddCommand(statesClearCmd)
	statesClearCmd.Flags().Bool("force", false, "Required to confirm deleting every saved state")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveRPCURL != "" {
		cfg.RPC.Endpoint = serveRPCURL
	}
	if serveStorage != "" {
		cfg.State.Storage = serveStorage
	}
	if serveDataDir != "" {
		cfg.State.DataDir = serveDataDir
	}
	// Flag overrides bypass Load's validation, so validate again.
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Error in configuration overrides: %v", err)
	}
	if serveDebug {
		cfg.Logging.Level = "debug"
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Pipes and log collectors get JSON regardless of config.
	jsonLogs := cfg.Logging.JSON
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		jsonLogs = true
	}
	appLogger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "explorer",
		JSON:    jsonLogs,
	})
	defer appLogger.Close()
	logger := appLogger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = server.ServiceVersion
	if cfg.Telemetry.Exporter != "" {
		tcfg.Exporter = cfg.Telemetry.Exporter
	}
	if cfg.Telemetry.Endpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	}
	tcfg.SampleRatio = cfg.Telemetry.SampleRatio
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		log.Fatalf("Error initializing telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	kv, err := openStorage(cfg, logger)
	if err != nil {
		log.Fatalf("Error opening state storage: %v", err)
	}
	defer kv.Close()

	store := state.New(kv,
		state.WithMaxMemoryEntries(cfg.State.MaxEntries),
		state.WithMemoryBudget(cfg.State.MemoryBudgetBytes),
		state.WithMaxValueBytes(cfg.State.MaxValueBytes),
		state.WithRetention(cfg.State.Retention.Std()),
		state.WithAutoSaveInterval(cfg.State.AutoSaveInterval.Std()),
		state.WithAutoSaveNodeDelta(cfg.State.AutoSaveNodeDelta),
		state.WithStoreLogger(logger),
	)

	rpcClient := source.NewRPCClient(cfg.RPC.Endpoint,
		source.WithRateLimit(cfg.RPC.RequestsPerSecond, cfg.RPC.Burst),
		source.WithRPCLogger(logger),
	)
	defer rpcClient.Close()
	cached := source.NewCachedSource(rpcClient,
		source.WithCacheCapacity(cfg.RPC.CacheCapacity),
		source.WithCacheTTL(cfg.RPC.CacheTTL.Std()),
	)

	srv, err := server.New(cfg, store, cached, rpcClient, logger)
	if err != nil {
		log.Fatalf("Error creating server: %v", err)
	}

	logger.Info("explorer starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"rpc_endpoint", cfg.RPC.Endpoint,
		"storage", cfg.State.Storage,
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("explorer stopped")
}

// openStorage opens the durable tier named by the configuration.
// Config validation pins storage to "badger" or "memory".
func openStorage(cfg *config.Config, logger *slog.Logger) (storage.KV, error) {
	if cfg.State.Storage == "memory" {
		return storage.NewMemoryKV(cfg.State.DurableQuotaBytes), nil
	}
	bcfg := badger.DefaultConfig()
	bcfg.Path = cfg.State.DataDir
	bcfg.Logger = logger
	bcfg.QuotaBytes = cfg.State.DurableQuotaBytes
	return badger.Open(bcfg)
}

// openStore loads the configuration and opens the state store for
// offline administration. The returned cleanup closes the durable tier.
func openStore() (*state.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	quiet := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: "explorer-cli",
	})
	kv, err := openStorage(cfg, quiet.Slog())
	if err != nil {
		quiet.Close()
		return nil, nil, err
	}
	store := state.New(kv,
		state.WithRetention(cfg.State.Retention.Std()),
		state.WithStoreLogger(quiet.Slog()),
	)
	cleanup := func() {
		if err := kv.Close(); err != nil {
			log.Printf("Warning: closing state storage: %v", err)
		}
		quiet.Close()
	}
	return store, cleanup, nil
}

func runStatesList(cmd *cobra.Command, args []string) {
	store, cleanup, err := openStore()
	if err != nil {
		log.Fatalf("Error opening state store: %v", err)
	}
	defer cleanup()

	graphs := store.SavedGraphs(context.Background())
	if len(graphs) == 0 {
		fmt.Println("No saved exploration states found.")
		return
	}

	fmt.Printf("Saved exploration states (%d):\n", len(graphs))
	fmt.Println("------------------------------------------------------------------")
	for _, g := range graphs {
		title := g.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("Signature: %s\nTitle: %s\nNodes: %d\nSaved: %s\n\n",
			g.Signature, title, g.NodeCount, g.Timestamp.Format(time.RFC3339))
	}
}

func runStatesCleanup(cmd *cobra.Command, args []string) {
	store, cleanup, err := openStore()
	if err != nil {
		log.Fatalf("Error opening state store: %v", err)
	}
	defer cleanup()

	removed := store.CleanupOldStates(context.Background())
	fmt.Printf("Removed %d expired or unreadable state(s).\n", removed)
}

func runStatesDelete(cmd *cobra.Command, args []string) {
	store, cleanup, err := openStore()
	if err != nil {
		log.Fatalf("Error opening state store: %v", err)
	}
	defer cleanup()

	signature := args[0]
	ctx := context.Background()
	if !store.HasState(ctx, signature) {
		fmt.Printf("No saved state found for %s\n", signature)
		return
	}
	store.DeleteGraph(ctx, signature)
	fmt.Printf("Deleted saved state: %s\n", signature)
}

func runStatesClear(cmd *cobra.Command, args []string) {
	// Check if the --force flag was provided.
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		fmt.Println("Error: the --force flag is required to proceed with this destructive operation.")
		fmt.Println("Example: explorer states clear --force")
		return
	}

	// The confirmation prompt provides a second layer of safety
	fmt.Println("DANGER: This will permanently delete every saved exploration state.")
	fmt.Print("Are you sure you want to continue? (yes/no): ")
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	if strings.TrimSpace(strings.ToLower(input)) != "yes" {
		fmt.Println("Aborted. No changes were made.")
		return
	}

	store, cleanup, err := openStore()
	if err != nil {
		log.Fatalf("Error opening state store: %v", err)
	}
	defer cleanup()

	removed := store.ClearAllStates(context.Background())
	fmt.Printf("Removed %d entries from the state store.\n", removed)
}
