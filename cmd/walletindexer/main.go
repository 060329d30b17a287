// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command walletindexer is the CLI / control surface described in spec.md
// section 6: backfill, syncTail, status, reconcileRecent, analyze, plus a
// serve command hosting the supplemented HTTP/WebSocket front-end in
// internal/api against the same store/oracle/reconstructor. It wires
// config, logging, and a debug listener the way the teacher's cmd/shai
// does around internal/indexer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/solwallet/indexer/internal/api"
	"github.com/solwallet/indexer/internal/apperr"
	"github.com/solwallet/indexer/internal/config"
	"github.com/solwallet/indexer/internal/ingest"
	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/metadata"
	"github.com/solwallet/indexer/internal/metrics"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/normalizer"
	"github.com/solwallet/indexer/internal/oracle"
	"github.com/solwallet/indexer/internal/provider"
	"github.com/solwallet/indexer/internal/ratelimit"
	"github.com/solwallet/indexer/internal/reconcile"
	"github.com/solwallet/indexer/internal/reconstruct"
	"github.com/solwallet/indexer/internal/retry"
	"github.com/solwallet/indexer/internal/storage"
	"github.com/solwallet/indexer/internal/version"
	"github.com/solwallet/indexer/internal/walletaddr"
)

const programName = "walletindexer"

var cmdlineFlags struct {
	configFile string
	version    bool
	maxPages   int
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.IntVar(&cmdlineFlags.maxPages, "max-pages", 0, "override backfill page cap (0 = configured default)")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("failed to load config: %s\n", err)
		os.Exit(1)
	}

	if _, err := maxprocs.Set(); err != nil {
		fmt.Printf("failed to set GOMAXPROCS: %s\n", err)
	}

	logging.Configure()
	logger := logging.GetLogger()

	if cfg.Debug.ListenPort > 0 {
		logger.Info("starting debug listener", "address", cfg.Debug.ListenAddress, "port", cfg.Debug.ListenPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Debug.ListenAddress, cfg.Debug.ListenPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("debug listener failed", "error", err)
			}
		}()
	}

	store := storage.GetStorage()
	if err := store.Load(); err != nil {
		fmt.Printf("failed to open store: %s\n", err)
		os.Exit(1)
	}

	deps, err := buildDeps(cfg, store)
	if err != nil {
		fmt.Printf("failed to wire dependencies: %s\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// serve is the only command that doesn't operate on a single wallet: it
	// hosts the read-only HTTP/WebSocket front-end (internal/api) that the
	// rest of the commands' results are also servable through.
	if command == "serve" {
		if err := runServe(ctx, deps, cfg); err != nil {
			printErr(err)
			os.Exit(1)
		}
		return
	}

	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	wallet := args[1]
	if err := walletaddr.Validate(wallet); err != nil {
		printErr(err)
		os.Exit(1)
	}

	var runErr error
	switch command {
	case "backfill":
		runErr = runBackfill(ctx, deps, wallet)
	case "syncTail":
		runErr = runSyncTail(ctx, deps, wallet)
	case "status":
		runErr = runStatus(ctx, deps, wallet)
	case "reconcileRecent":
		runErr = runReconcileRecent(ctx, deps, cfg, wallet)
	case "analyze":
		runErr = runAnalyze(ctx, deps, wallet)
	default:
		fmt.Printf("unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		printErr(runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: walletindexer [flags] <command> [wallet]")
	fmt.Println("commands: backfill <wallet>, syncTail <wallet>, status <wallet>,")
	fmt.Println("          reconcileRecent <wallet>, analyze <wallet>, serve")
}

func printErr(err error) {
	if ae, ok := err.(*apperr.Error); ok {
		fmt.Printf("error [%s]: %s\n", ae.Code, ae.Message)
		if ae.Hint != "" {
			fmt.Printf("hint: %s\n", ae.Hint)
		}
		return
	}
	fmt.Printf("error: %s\n", err)
}

// deps bundles the collaborators every command needs, wired once per
// process invocation.
type deps struct {
	store         *storage.Storage
	client        provider.Client
	norm          *normalizer.Normalizer
	driver        *ingest.Driver
	auditor       *reconcile.Auditor
	priceOracle   *oracle.CachingOracle
	reconstructor *reconstruct.Reconstructor
}

func buildDeps(cfg *config.Config, store *storage.Storage) (*deps, error) {
	providerQueue := ratelimit.New(cfg.RateLimit.ProviderConcurrency, cfg.RateLimit.ProviderRatePerSecond)
	metadataQueue := ratelimit.New(cfg.RateLimit.MetadataConcurrency, cfg.RateLimit.MetadataRatePerSecond)

	client := provider.NewHTTPClient(cfg.Provider, providerQueue)

	resolver := metadata.New(store, metadataQueue,
		metadata.NewLocalSource(),
		metadata.NewHTTPSource(model.MetaSourceResolverA, cfg.Metadata.ResolverABaseURL, cfg.Metadata.Timeout()),
		metadata.NewHTTPSource(model.MetaSourceResolverB, cfg.Metadata.ResolverBBaseURL, cfg.Metadata.Timeout()),
		metadata.NewHTTPSource(model.MetaSourceResolverC, cfg.Metadata.ResolverCBaseURL, cfg.Metadata.Timeout()),
	)
	norm := normalizer.New(resolver, cfg.Provider.AMMProgram)

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Factor:      cfg.Retry.Factor,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	driver := ingest.New(store, client, norm, int(cfg.Provider.PageLimit), int(cfg.Provider.MaxPages), retryPolicy)
	auditor := reconcile.New(store, client, driver, cfg.Indexer.ReconcilePause)

	priceBackends := []oracle.Backend{
		oracle.NewHTTPBackend("oracle-a", cfg.Price.BaseURLA, cfg.Price.Timeout()),
		oracle.NewHTTPBackend("oracle-b", cfg.Price.BaseURLB, cfg.Price.Timeout()),
	}
	priceOracle, err := oracle.New(store, priceBackends...)
	if err != nil {
		return nil, err
	}

	reconstructor := reconstruct.New(priceOracle, model.NativeMint)

	return &deps{
		store:         store,
		client:        client,
		norm:          norm,
		driver:        driver,
		auditor:       auditor,
		priceOracle:   priceOracle,
		reconstructor: reconstructor,
	}, nil
}

func runBackfill(ctx context.Context, d *deps, wallet string) error {
	stats, err := d.driver.Backfill(ctx, wallet, cmdlineFlags.maxPages)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runSyncTail(ctx context.Context, d *deps, wallet string) error {
	stats, err := d.driver.SyncTail(ctx, wallet)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runStatus(ctx context.Context, d *deps, wallet string) error {
	state, found, err := d.store.GetSyncState(ctx, wallet)
	if err != nil {
		return apperr.StoreFailure("failed to load sync state", err)
	}
	if !found {
		return printJSON(map[string]any{"wallet": wallet, "synced": false})
	}
	return printJSON(state)
}

func runReconcileRecent(ctx context.Context, d *deps, cfg *config.Config, wallet string) error {
	results, err := d.auditor.ReconcileRecentSlots(ctx, wallet, cfg.Indexer.ReconcileWindowSlots)
	if err != nil {
		return err
	}
	return printJSON(results)
}

// runServe hosts the read-only HTTP/WebSocket front-end described in
// spec.md section 1 ("the HTTP request router... the single-flight
// in-process result cache") at the supplemented-feature level: a minimal
// handler exposing the same store/oracle/reconstructor the CLI commands
// above use, behind the configured API listener, the way the debug
// listener above hosts /metrics.
func runServe(ctx context.Context, d *deps, cfg *config.Config) error {
	logger := logging.Component("api")

	cache, err := api.NewResultCache()
	if err != nil {
		return apperr.StoreFailure("failed to open result cache", err)
	}

	a := api.New(d.store, d.priceOracle, d.reconstructor, cache)
	go a.BroadcastProgress()

	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	addr := fmt.Sprintf("%s:%d", cfg.API.ListenAddress, cfg.API.ListenPort)
	logger.Info("starting api listener", "address", cfg.API.ListenAddress, "port", cfg.API.ListenPort)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return apperr.UpstreamPermanent("api listener failed", err)
	}
	return nil
}

func runAnalyze(ctx context.Context, d *deps, wallet string) error {
	events, err := d.store.GetWalletEventsOrdered(ctx, wallet)
	if err != nil {
		return apperr.StoreFailure("failed to load wallet events", err)
	}

	mints := map[string]struct{}{}
	for _, ev := range events {
		mints[ev.TokenMint] = struct{}{}
	}
	currentPrices := make(map[string]decimal.Decimal, len(mints))
	for mint := range mints {
		price, err := d.priceOracle.GetCurrentPriceUsd(ctx, mint)
		if err != nil || price == nil {
			continue
		}
		currentPrices[mint] = *price
	}

	portfolio := d.reconstructor.Reconstruct(ctx, wallet, events, currentPrices)
	return printJSON(portfolio)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
