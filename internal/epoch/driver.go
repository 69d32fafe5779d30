// Package epoch implements the single-threaded decision loop that ties
// book, volatility, kappa, quoter, riskgate, ordermanager, the exchange
// adapter, the trade log, and metrics into one GLFT market-making core
// (spec.md section 4.8/5).
//
// The teacher runs one `Maker.Run` goroutine per market, each owning its
// own book/inventory/strategy state concurrently with N other markets.
// This spec has exactly one symbol and mandates single-threaded epoch
// processing so the risk gate needs no locks (spec.md section 5); the
// goroutine-per-market fan-out collapses into one Driver whose RunEpoch
// method is called synchronously, once per tick, from either a live
// ticker loop (Run, push-driven by adapter channels) or the backtest
// simulator (simStrategy, pull-driven by simulator.Simulator.Run calling
// Decide once per synthetic tick). Both callers are thin adapters around
// the same RunEpoch body, so behavior under backtest is provably what
// runs live.
package epoch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/glft-mm/glft-mm/internal/adapterio"
	"github.com/glft-mm/glft-mm/internal/book"
	"github.com/glft-mm/glft-mm/internal/kappa"
	"github.com/glft-mm/glft-mm/internal/metrics"
	"github.com/glft-mm/glft-mm/internal/ordermanager"
	"github.com/glft-mm/glft-mm/internal/quoter"
	"github.com/glft-mm/glft-mm/internal/riskgate"
	"github.com/glft-mm/glft-mm/internal/simulator"
	"github.com/glft-mm/glft-mm/internal/tradelog"
	"github.com/glft-mm/glft-mm/internal/volatility"
	"github.com/glft-mm/glft-mm/pkg/mm"
)

// RegimeSource supplies the coarse trend/ADX classification the risk
// gate's step 3 consults. Kept as a narrow interface so the epoch driver
// never depends on whatever feed produces it.
type RegimeSource interface {
	Regime() mm.Regime
}

// constantRegime always reports the same regime; used when no external
// classifier is wired (spec.md section 9: regime filter is optional and
// defaults to disabled, in which case the value is never consulted).
type constantRegime struct{ r mm.Regime }

func (c constantRegime) Regime() mm.Regime { return c.r }

// Config bundles everything RunEpoch needs that does not change between
// epochs.
type Config struct {
	Gamma         float64
	KappaProvider kappa.Provider
	Quantity      decimal.Decimal
	RegimeSource  RegimeSource
	TickJumpPct   float64
}

// Driver owns the mutable per-epoch state: the book mirror, the
// volatility estimator, the risk gate, and the order manager.
type Driver struct {
	cfg Config

	book *book.Book
	vol  *volatility.Estimator
	gate *riskgate.Gate
	om   *ordermanager.Manager

	logger *slog.Logger

	inventory float64
	cash      decimal.Decimal
}

// New wires one Driver from its component configs, the same "construct
// once, reuse every epoch" pattern as the teacher's strategy.NewMaker.
func New(cfg Config, gateCfg riskgate.Config, omCfg ordermanager.Config, volWindow int, bootstrapSigmaPct float64, logger *slog.Logger) *Driver {
	if cfg.RegimeSource == nil {
		cfg.RegimeSource = constantRegime{r: mm.RegimeRanging}
	}
	return &Driver{
		cfg:    cfg,
		book:   book.New(),
		vol:    volatility.New(volWindow, bootstrapSigmaPct),
		gate:   riskgate.New(gateCfg),
		om:     ordermanager.New(omCfg),
		logger: logger.With("component", "epoch"),
	}
}

// Inventory returns the current signed position in base units.
func (d *Driver) Inventory() float64 { return d.inventory }

// Cash returns the current cash balance.
func (d *Driver) Cash() decimal.Decimal { return d.cash }

// OnFill applies a confirmed fill to inventory, cash, and the risk
// gate's fill-imbalance tracker, and records it in the fills metric.
func (d *Driver) OnFill(fill mm.Fill) {
	size, _ := fill.Size.Float64()
	if fill.Side == mm.Sell {
		size = -size
	}
	d.inventory += size

	notional := fill.Price.Mul(fill.Size)
	if fill.Side == mm.Buy {
		d.cash = d.cash.Sub(notional).Sub(fill.Fee)
	} else {
		d.cash = d.cash.Add(notional).Sub(fill.Fee)
	}

	d.gate.RecordFill(fill.Side)
	metrics.RecordFill(string(fill.Side))
	metrics.Inventory.Set(d.inventory)
}

// RunEpoch runs one full decision cycle: tick ingestion, volatility
// update, kappa lookup, GLFT quoting, the eight-step risk gate, and
// order-manager reconciliation. It returns the gated quote (for logging
// and the simulator) and the diff actions the caller must send to the
// adapter.
func (d *Driver) RunEpoch(now time.Time, mid decimal.Decimal, depth *mm.DepthSnapshot, distanceToLiqPct float64) (mm.GatedQuote, []ordermanager.Action, error) {
	tickErr := d.book.OnTick(now, mid, d.cfg.TickJumpPct)
	isOutlier := false
	var staleTick book.ErrStaleTick
	if errors.As(tickErr, &staleTick) {
		isOutlier = true
		metrics.RecordRecoveredError("StaleTick")
	}
	if !isOutlier {
		midF, _ := mid.Float64()
		d.vol.Observe(midF)
	}
	if depth != nil {
		d.book.OnDepth(*depth)
	}

	midF, _ := mid.Float64()
	kv, kErr := d.cfg.KappaProvider.GetKappa(now, depth)
	gateHalted := d.cfg.KappaProvider.Status() == kappa.StatusDegraded
	if kErr != nil && !gateHalted {
		metrics.RecordRecoveredError("CalibrationError")
	}

	raw, qErr := quoter.Quote(quoter.Params{
		Mid:         midF,
		Inventory:   d.inventory,
		SigmaDollar: d.vol.SigmaDollar(midF),
		Kappa:       kv.Kappa,
		ArrivalRate: kv.A,
		Gamma:       d.cfg.Gamma,
	})
	if qErr != nil {
		metrics.RecordRecoveredError("QuoterInvalidParameters")
		return mm.GatedQuote{}, nil, qErr
	}

	gated, gErr := d.gate.Run(riskgate.Input{
		Now:              now,
		Mid:              mid,
		TickIsOutlier:    isOutlier,
		Raw:              raw,
		Inventory:        d.inventory,
		Regime:           d.cfg.RegimeSource.Regime(),
		DistanceToLiqPct: distanceToLiqPct,
		GateHalted:       gateHalted,
	})
	if gErr != nil {
		var halt riskgate.ErrGateHalt
		if errors.As(gErr, &halt) {
			metrics.RecordWithdrawal(halt.Reason)
		}
	}
	if gated.WithdrawAll {
		metrics.RecordWithdrawal(gated.WithdrawWhy)
	}

	if gated.Bid.Size.IsZero() && !gated.Bid.Withdraw {
		gated.Bid.Size = d.cfg.Quantity
	}
	if gated.Ask.Size.IsZero() && !gated.Ask.Withdraw {
		gated.Ask.Size = d.cfg.Quantity
	}

	actions := d.om.Reconcile(gated, now)
	return gated, actions, gErr
}

// SweepAckTimeouts checks for orders that never received an ACK within
// the configured timeout, logging a recovered error for each.
func (d *Driver) SweepAckTimeouts(now time.Time) {
	for _, err := range d.om.Sweep(now) {
		metrics.RecordRecoveredError("AckTimeout")
		d.logger.Warn("order ack timeout", "error", err)
	}
}

// OnAck applies a venue acknowledgement to the order manager.
func (d *Driver) OnAck(ack mm.Ack) { d.om.OnAck(ack) }

// CancelAllOpenOrders returns cancel actions for every order the manager
// believes is resting, for use on shutdown.
func (d *Driver) CancelAllOpenOrders() []ordermanager.Action { return d.om.CancelAll() }

// Run drives live epochs from an adapterio.Adapter until ctx is
// cancelled or the adapter reports a fatal error. One errgroup goroutine
// fans in ticks, depth, fills, and acks with a single select and a second
// one runs the epoch ticker, the same fan-in-then-dispatch shape as the
// teacher's
// dispatchMarketEvents/dispatchUserEvents pair collapsed onto a single
// symbol.
func Run(ctx context.Context, d *Driver, adapter adapterio.Adapter, interval time.Duration, sink func(now time.Time, mid decimal.Decimal, gated mm.GatedQuote, actions []ordermanager.Action)) error {
	g, ctx := errgroup.WithContext(ctx)

	var latestMid decimal.Decimal
	var latestDepth *mm.DepthSnapshot
	haveMid := false

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tick, ok := <-adapter.Ticks():
				if !ok {
					return nil
				}
				latestMid = decimal.NewFromFloat(tick.Price)
				haveMid = true
			case depth, ok := <-adapter.Depth():
				if !ok {
					return nil
				}
				latestDepth = &depth
			case fill, ok := <-adapter.Fills():
				if !ok {
					return nil
				}
				d.OnFill(fill)
			case ack, ok := <-adapter.Acks():
				if !ok {
					return nil
				}
				d.OnAck(ack)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				if !haveMid {
					continue
				}
				d.SweepAckTimeouts(now)
				gated, actions, err := d.RunEpoch(now, latestMid, latestDepth, 1.0)
				if err != nil {
					var halt riskgate.ErrGateHalt
					if errors.As(err, &halt) {
						return err
					}
					d.logger.Warn("epoch error", "error", err)
					continue
				}
				for _, action := range actions {
					cmd := toCommand(action)
					if err := adapter.Send(ctx, cmd); err != nil {
						d.logger.Warn("adapter send failed", "error", err)
					}
				}
				if sink != nil {
					sink(now, latestMid, gated, actions)
				}
			}
		}
	})

	return g.Wait()
}

func toCommand(a ordermanager.Action) adapterio.Command {
	switch a.Kind {
	case ordermanager.ActionCancel:
		return adapterio.Command{Kind: adapterio.CommandCancel, Side: a.Side, ClientID: a.CancelClientID}
	case ordermanager.ActionAmend:
		return adapterio.Command{
			Kind:     adapterio.CommandAmend,
			Side:     a.Side,
			ClientID: a.ClientID,
			Price:    a.Price,
			Size:     a.Size,
		}
	default: // ActionPlace
		return adapterio.Command{
			Kind:       adapterio.CommandPlace,
			Side:       a.Side,
			ClientID:   a.ClientID,
			Price:      a.Price,
			Size:       a.Size,
			ReduceOnly: a.ReduceOnly,
		}
	}
}

// simStrategy adapts a Driver to the simulator.Strategy interface so the
// same RunEpoch code path backs both live trading and backtesting
// (spec.md section 4.8: "the epoch driver must be identical in live and
// backtest modes").
type simStrategy struct {
	driver *Driver
	queue  decimal.Decimal
}

// NewBacktestStrategy wraps a Driver for use with internal/simulator.Run.
func NewBacktestStrategy(d *Driver, initialQueue decimal.Decimal) simulator.Strategy {
	return &simStrategy{driver: d, queue: initialQueue}
}

func (s *simStrategy) Decide(now time.Time, mid decimal.Decimal) (*simulator.RestingOrder, *simulator.RestingOrder, bool, error) {
	gated, _, err := s.driver.RunEpoch(now, mid, nil, 1.0)
	if err != nil {
		var halt riskgate.ErrGateHalt
		if errors.As(err, &halt) {
			return nil, nil, true, err
		}
	}
	if gated.WithdrawAll {
		return nil, nil, true, nil
	}

	var bid, ask *simulator.RestingOrder
	if !gated.Bid.Withdraw {
		bid = &simulator.RestingOrder{Side: mm.Buy, Price: gated.Bid.Price, Size: gated.Bid.Size, Queue: s.queue}
	}
	if !gated.Ask.Withdraw {
		ask = &simulator.RestingOrder{Side: mm.Sell, Price: gated.Ask.Price, Size: gated.Ask.Size, Queue: s.queue}
	}
	return bid, ask, false, nil
}

func (s *simStrategy) OnFill(fill mm.Fill) {
	s.driver.OnFill(fill)
}

// LogEquity writes one equity snapshot to dir (replacing the previous
// one), keyed off the driver's live cash/inventory at the given mark price.
func LogEquity(dir string, now time.Time, d *Driver, mark decimal.Decimal) error {
	cash, _ := d.Cash().Float64()
	equity := cash + d.Inventory()*markFloat(mark)
	return tradelog.SnapshotEquity(dir, tradelog.EquitySnapshot{
		TimestampUnix: now.Unix(),
		Equity:        equity,
		Inventory:     d.Inventory(),
		Cash:          cash,
	})
}

func markFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
