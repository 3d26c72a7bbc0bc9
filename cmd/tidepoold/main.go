package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tidepool/config"
	"tidepool/core/events"
	"tidepool/core/state"
	"tidepool/native/amm"
	"tidepool/native/common"
	"tidepool/native/farm"
	"tidepool/native/ledger"
	"tidepool/native/lending"
	"tidepool/native/oracle"
	"tidepool/native/orderbook"
	"tidepool/observability/logging"
	"tidepool/observability/metrics"
	"tidepool/rpc"
	"tidepool/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tidepoold: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("tidepoold", cfg.Environment, logging.Options{
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	balances := ledger.NewStateLedger(db)
	pauses := common.NewSwitchboard()
	emitter := events.Fanout{metrics.Settlement()}

	maxAge, err := cfg.Oracle.MaxAgeDuration()
	if err != nil {
		return err
	}
	twapWindow, err := cfg.Oracle.TWAPDuration()
	if err != nil {
		return err
	}
	gateway := oracle.NewGateway([]string{"manual"}, maxAge, twapWindow)
	gateway.RegisterFeed("manual", oracle.NewManualFeed())
	for _, symbol := range cfg.Oracle.Symbols {
		gateway.RegisterSymbol(symbol)
	}

	poolEngine := amm.NewEngine(balances, cfg.Pool.ModuleAccount, cfg.Pool.TreasuryAccount, cfg.Pool.FeeProtocolBps, cfg.Pool.FeeLiquidityBps)
	poolEngine.SetState(manager)
	poolEngine.SetPauses(pauses)
	poolEngine.SetEmitter(emitter)

	lenders := farm.NewLenderSet(cfg.Lending.LenderID)
	farmEngine := farm.NewEngine(balances, poolEngine, cfg.Farm.CustodyAccount, cfg.Farm.RewardAccount, cfg.Farm.ReserveAccount, lenders)
	farmEngine.SetState(manager.Farm())
	farmEngine.SetPauses(pauses)
	farmEngine.SetEmitter(emitter)

	staleness, err := cfg.Lending.Staleness()
	if err != nil {
		return err
	}
	params := lending.RiskParameters{
		CollateralizationRatio: cfg.Lending.CollateralizationRatio,
		LiquidationThreshold:   cfg.Lending.LiquidationThreshold,
		LiquidationBonusBps:    cfg.Lending.LiquidationBonusBps,
		BaseRateBps:            cfg.Lending.BaseRateBps,
		UtilizationSlopeBps:    cfg.Lending.UtilizationSlopeBps,
		StalenessPeriod:        staleness,
	}
	lendingEngine := lending.NewEngine(balances, gateway, farmEngine, cfg.Lending.LenderID, cfg.Lending.CollateralAccount, params)
	lendingEngine.SetState(manager)
	lendingEngine.SetPauses(pauses)
	lendingEngine.SetEmitter(emitter)

	orderEngine := orderbook.NewEngine(balances, poolEngine, cfg.Orders.EscrowAccount, cfg.Pool.TreasuryAccount, cfg.Orders.FeeBps)
	orderEngine.SetState(manager)
	orderEngine.SetPauses(pauses)
	orderEngine.SetEmitter(emitter)

	server := rpc.NewServer(poolEngine, farmEngine, lendingEngine, orderEngine, pauses, logger, cfg.RPC.RequestsPerSecond, cfg.RPC.Burst)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("address", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("rpc server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
