// glftmm is the GLFT market-making core's entry point: it loads
// configuration, wires the quoting/risk/order-management pipeline into
// one epoch.Driver, and runs it either against a historical candle CSV
// (backtest mode) or against a live adapterio.Adapter (live mode).
//
// Architecture, mirroring the teacher's cmd/bot/main.go -> internal/engine
// layering:
//
//	main.go                    - entry point: loads config, wires the driver, waits for SIGINT/SIGTERM
//	internal/epoch             - single-threaded epoch loop shared by live and backtest modes
//	internal/book              - mid-price/depth mirror
//	internal/volatility        - rolling sigma estimator
//	internal/kappa             - liquidity (kappa, A) provider
//	internal/quoter            - GLFT reservation price / half spread
//	internal/riskgate          - eight-step safety pipeline
//	internal/ordermanager      - desired-vs-resting order diff
//	internal/simulator         - tick-level backtest fill engine
//	internal/tradelog          - CSV trade log + equity snapshots
//	internal/adapterio         - exchange adapter boundary (interfaces + fake only; real client out of scope)
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/glft-mm/glft-mm/internal/adapterio"
	"github.com/glft-mm/glft-mm/internal/config"
	"github.com/glft-mm/glft-mm/internal/epoch"
	"github.com/glft-mm/glft-mm/internal/feeschedule"
	"github.com/glft-mm/glft-mm/internal/kappa"
	"github.com/glft-mm/glft-mm/internal/ordermanager"
	"github.com/glft-mm/glft-mm/internal/riskgate"
	"github.com/glft-mm/glft-mm/internal/simulator"
	"github.com/glft-mm/glft-mm/internal/tradelog"
	"github.com/glft-mm/glft-mm/pkg/mm"
)

// Exit codes, spec.md section 6, unchanged.
const (
	exitClean         = 0
	exitConfigError   = 2
	exitAdapterFatal  = 3
	exitRiskGateHalt  = 4
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MM_CONFIG"); p != "" {
		cfgPath = p
	}
	mode := flag.String("mode", "backtest", "run mode: backtest or live")
	candlesPath := flag.String("candles", "", "OHLCV CSV path (backtest mode)")
	flag.StringVar(&cfgPath, "config", cfgPath, "config file path")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(exitConfigError)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(exitConfigError)
	}

	logger := newLogger(*cfg)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	fees, err := feeschedule.New(feeschedule.Tier(cfg.Strategy.FeeTier))
	if err != nil {
		logger.Error("invalid fee tier", "error", err)
		os.Exit(exitConfigError)
	}

	driver, err := buildDriver(*cfg, fees, logger)
	if err != nil {
		logger.Error("failed to build driver", "error", err)
		os.Exit(exitConfigError)
	}

	switch *mode {
	case "backtest":
		if *candlesPath == "" {
			logger.Error("backtest mode requires -candles")
			os.Exit(exitConfigError)
		}
		code := runBacktest(*cfg, fees, driver, *candlesPath, logger)
		os.Exit(code)
	case "live":
		code := runLive(*cfg, driver, logger)
		os.Exit(code)
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(exitConfigError)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

func buildDriver(cfg config.Config, fees feeschedule.Schedule, logger *slog.Logger) (*epoch.Driver, error) {
	kappaProvider, err := buildKappaProvider(cfg)
	if err != nil {
		return nil, err
	}

	gateCfg := riskgate.Config{
		TickJumpPct:          cfg.Risk.TickJumpPct,
		DisplacementPct:      cfg.Risk.DisplacementPct,
		DispWidenMult:        cfg.Risk.DispWidenMult,
		DisplacementCooldown: cfg.Risk.DisplacementCooldownS,
		RegimeFilterEnabled:  cfg.Risk.RegimeFilter,
		InventorySoftLimit:   cfg.Risk.InventorySoft,
		InventoryHardLimit:   cfg.Risk.InventoryHard,
		MinSpreadDollar:      decimal.NewFromFloat(cfg.Risk.MinSpreadDollar),
		MaxSpreadDollar:      decimal.NewFromFloat(cfg.Risk.MaxSpreadDollar),
		Fees:                 fees,
		RoundTripMode:        roundTripMode(cfg.Strategy.RoundTrip),
		NImb:                 cfg.Risk.NImb,
		ImbThreshold:         cfg.Risk.ImbThreshold,
		ImbalanceCooldown:    cfg.Risk.ImbalanceCooldownS,
		LiqThresholdPct:      cfg.Risk.LiqThreshold,
		IsFutures:            cfg.Instrument == "perpetual",
	}

	omCfg := ordermanager.Config{
		PriceTolerance:   decimal.NewFromFloat(cfg.Risk.PriceTolerance),
		SizeTolerancePct: cfg.Risk.SizeTolerancePct,
		AckTimeout:       cfg.Risk.AckTimeoutS,
		SupportsAmend:    cfg.Risk.SupportsAmend,
		ReplaceThreshold: decimal.NewFromFloat(cfg.Risk.ReplaceThreshold),
	}

	driverCfg := epoch.Config{
		Gamma:         cfg.Strategy.Gamma,
		KappaProvider: kappaProvider,
		Quantity:      decimal.NewFromFloat(cfg.Strategy.OrderSize),
		TickJumpPct:   cfg.Risk.TickJumpPct,
	}

	volWindow := cfg.Strategy.VolWindow
	bootstrapSigma := cfg.Strategy.VolBootstrapSigma
	return epoch.New(driverCfg, gateCfg, omCfg, volWindow, bootstrapSigma, logger), nil
}

func buildKappaProvider(cfg config.Config) (kappa.Provider, error) {
	switch cfg.Strategy.KappaMode {
	case "live":
		return kappa.NewLive(cfg.Strategy.KappaRefresh, cfg.Strategy.KappaLevels, cfg.Strategy.KappaStaleLimit), nil
	default:
		return kappa.NewConstant(cfg.Strategy.KappaValue, cfg.Strategy.ArrivalRate), nil
	}
}

func roundTripMode(s string) feeschedule.RoundTripMode {
	if s == "maker_plus_taker" {
		return feeschedule.MakerPlusTaker
	}
	return feeschedule.TwoMaker
}

// runBacktest loads a candle CSV, replays it through the simulator using
// the same epoch.Driver.RunEpoch that live mode uses, and writes the
// resulting fills to cfg.Store.DataDir. Each equity curve point is
// written to the same equity.json snapshot, so only the final point
// remains there; the full curve is not persisted.
func runBacktest(cfg config.Config, fees feeschedule.Schedule, driver *epoch.Driver, candlesPath string, logger *slog.Logger) int {
	candles, err := tradelog.LoadCandles(candlesPath)
	if err != nil {
		logger.Error("failed to load candles", "error", err)
		return exitConfigError
	}
	if len(candles) == 0 {
		logger.Error("no candles loaded", "path", candlesPath)
		return exitConfigError
	}

	sim := simulator.New(simulator.Config{
		TicksPerCandle: cfg.Sim.TicksPerCandle,
		QueueAlpha:     cfg.Sim.QueueAlpha,
		Seed:           cfg.Sim.Seed,
		Fees:           fees,
	})

	initialQueue := decimal.NewFromFloat(cfg.Strategy.OrderSize).Div(decimal.NewFromFloat(cfg.Sim.QueueAlpha))
	strategy := epoch.NewBacktestStrategy(driver, initialQueue)

	result, err := sim.Run(candles, strategy)
	if err != nil {
		var halt riskgate.ErrGateHalt
		if errors.As(err, &halt) {
			logger.Error("risk gate halted backtest", "reason", halt.Reason)
			return exitRiskGateHalt
		}
		logger.Error("backtest run failed", "error", err)
		return exitConfigError
	}

	if err := writeTradeLog(cfg, result); err != nil {
		logger.Error("failed to write trade log", "error", err)
	}

	logger.Info("backtest complete",
		"candles", len(candles),
		"fills", len(result.Fills),
		"final_inventory", result.Inventory,
		"final_cash", result.Cash.String(),
	)
	return exitClean
}

// writeTradeLog replays the simulator's fill list through tradelog.Writer,
// recomputing running inventory/cash for the q_after/cash_after columns.
func writeTradeLog(cfg config.Config, result simulator.Result) error {
	w, err := tradelog.Open(cfg.Store.DataDir + "/trades.csv")
	if err != nil {
		return err
	}
	defer w.Close()

	var inventory float64
	cash := decimal.Zero
	for _, fill := range result.Fills {
		size, _ := fill.Size.Float64()
		notional := fill.Price.Mul(fill.Size)
		if fill.Side == mm.Buy {
			inventory += size
			cash = cash.Sub(notional).Sub(fill.Fee)
		} else {
			inventory -= size
			cash = cash.Add(notional).Sub(fill.Fee)
		}
		cashF, _ := cash.Float64()
		if err := w.Append(tradelog.Row{Fill: fill, Inventory: inventory, Cash: cashF, Reason: "fill"}); err != nil {
			return err
		}
	}

	for _, pt := range result.EquityPath {
		equity, _ := pt.Equity.Float64()
		if err := tradelog.SnapshotEquity(cfg.Store.DataDir, tradelog.EquitySnapshot{
			TimestampUnix: pt.Time.Unix(),
			Equity:        equity,
		}); err != nil {
			return err
		}
	}
	return nil
}

// runLive drives the epoch driver against a live adapterio.Adapter. A
// real exchange client is out of scope for this module (spec.md section
// 1); the adapterio.Fake stands in as the wiring point a concrete
// adapter implementation plugs into, the same way the teacher's DryRun
// flag short-circuits order placement without changing the strategy
// loop.
func runLive(cfg config.Config, driver *epoch.Driver, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := adapterio.NewFake()

	logger.Warn("live mode is running against an in-memory adapter stand-in; " +
		"no real exchange connection is established (out of scope per spec)")

	sink := func(now time.Time, mid decimal.Decimal, _ mm.GatedQuote, _ []ordermanager.Action) {
		if err := epoch.LogEquity(cfg.Store.DataDir, now, driver, mid); err != nil {
			logger.Warn("failed to snapshot equity", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- epoch.Run(ctx, driver, adapter, cfg.Strategy.IntervalS, sink)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			var halt riskgate.ErrGateHalt
			var fatal adapterio.ErrFatalAdapter
			switch {
			case errors.As(err, &halt):
				logger.Error("risk gate halted", "reason", halt.Reason)
				return exitRiskGateHalt
			case errors.As(err, &fatal):
				logger.Error("adapter fatal error", "reason", fatal.Reason)
				return exitAdapterFatal
			default:
				logger.Error("epoch loop exited", "error", err)
				return exitAdapterFatal
			}
		}
	}

	cancelDeadline, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, action := range driver.CancelAllOpenOrders() {
		cmd := adapterio.Command{Kind: adapterio.CommandCancel, Side: action.Side, ClientID: action.CancelClientID}
		if err := adapter.Send(cancelDeadline, cmd); err != nil {
			logger.Error("failed to cancel order on shutdown", "error", err)
		}
	}

	return exitClean
}
