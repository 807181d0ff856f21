package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/dgraph-io/badger/v4"

	"github.com/Prashant-Mishra-12569/EstateETH/assetstore"
	"github.com/Prashant-Mishra-12569/EstateETH/catalog"
	"github.com/Prashant-Mishra-12569/EstateETH/config"
	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
	"github.com/Prashant-Mishra-12569/EstateETH/market"
	"github.com/Prashant-Mishra-12569/EstateETH/server"
	"github.com/Prashant-Mishra-12569/EstateETH/wallet"
)

var (
	configPath string
	httpPort   string
)

func init() {
	flag.StringVar(&configPath, "config", "./config.toml", "Path to the config file")
	flag.StringVar(&httpPort, "http-port", "", "HTTP web server port (overrides config)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if httpPort != "" {
		cfg.HTTPPort = httpPort
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))

	// Upload journal
	db, err := badger.Open(badger.DefaultOptions(cfg.JournalPath))
	if err != nil {
		log.Fatalf("Opening journal database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Closing journal database", "err", err)
		}
	}()
	journal := market.NewJournal(db)

	// Ledger RPC client
	logger.Info("Connecting to ledger RPC", "address", cfg.LedgerRPC)
	rpcClient, err := cmthttp.NewWithClient(cfg.LedgerRPC, &http.Client{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Creating ledger client: %v", err)
	}

	// Wallet session against the signing agent
	provider, err := wallet.NewRPCProvider(cfg.WalletRPC, logger)
	if err != nil {
		log.Fatalf("Creating signing agent client: %v", err)
	}
	session := wallet.NewSession(provider, logger)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 5*time.Second)
	if err := session.Initialize(initCtx); err != nil {
		logger.Error("Silent wallet discovery failed, continuing disconnected", "err", err)
	}
	cancelInit()

	gateway := ledger.NewGateway(rpcClient, session, logger)

	cat, err := catalog.Open(cfg.CatalogPath, gateway, logger)
	if err != nil {
		log.Fatalf("Opening catalog: %v", err)
	}

	// Warm the local view; a failed initial refresh is not fatal, the
	// catalog just serves its previous snapshot.
	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), 15*time.Second)
	if err := cat.Refresh(refreshCtx); err != nil {
		logger.Error("Initial catalog refresh failed", "err", err)
	}
	cancelRefresh()

	assets := assetstore.NewClient(cfg.PinEndpoint, cfg.PinAPIKey, cfg.PinSecretKey, logger)
	orchestrator := market.NewOrchestrator(assets, gateway, cat, session, journal, logger)

	webserver := server.NewWebServer(cfg.HTTPPort, orchestrator, cat, session, gateway, logger)
	if err := webserver.Start(); err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(ctx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
