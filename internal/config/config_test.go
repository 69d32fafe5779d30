package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Symbol:     "BTC-USD",
		Instrument: "perpetual",
		Strategy: StrategyConfig{
			Gamma:       0.1,
			KappaMode:   "constant",
			KappaValue:  1.5,
			ArrivalRate: 140,
			OrderSize:   0.01,
			IntervalS:   5 * time.Second,
			RoundTrip:   "two_maker",
		},
		Risk: RiskConfig{
			MinSpreadDollar: 0.5,
			MaxSpreadDollar: 50,
			InventorySoft:   0.5,
			InventoryHard:   1.0,
			Leverage:        5,
		},
		Sim: SimConfig{
			TicksPerCandle: 100,
			QueueAlpha:     0.5,
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingSymbol(t *testing.T) {
	cfg := validConfig()
	cfg.Symbol = ""
	require.ErrorContains(t, cfg.Validate(), "symbol")
}

func TestValidateRejectsUnknownInstrument(t *testing.T) {
	cfg := validConfig()
	cfg.Instrument = "futures"
	require.ErrorContains(t, cfg.Validate(), "instrument")
}

func TestValidateRejectsNonPositiveGamma(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.Gamma = 0
	require.ErrorContains(t, cfg.Validate(), "gamma")
}

func TestValidateRequiresKappaValueAndArrivalRateInConstantMode(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.KappaValue = 0
	require.ErrorContains(t, cfg.Validate(), "kappa_value")

	cfg = validConfig()
	cfg.Strategy.ArrivalRate = 0
	require.ErrorContains(t, cfg.Validate(), "arrival_rate")
}

func TestValidateAllowsLiveKappaModeWithoutConstantParams(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.KappaMode = "live"
	cfg.Strategy.KappaValue = 0
	cfg.Strategy.ArrivalRate = 0
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownKappaMode(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.KappaMode = "magic"
	require.ErrorContains(t, cfg.Validate(), "kappa_mode")
}

func TestValidateRejectsInventoryHardNotAboveSoft(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.InventoryHard = cfg.Risk.InventorySoft
	require.ErrorContains(t, cfg.Validate(), "inventory_hard")
}

func TestValidateRejectsMaxSpreadNotAboveMin(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.MaxSpreadDollar = cfg.Risk.MinSpreadDollar
	require.ErrorContains(t, cfg.Validate(), "max_spread_dollar")
}

func TestValidateRequiresLeverageForPerpetual(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.Leverage = 0
	require.ErrorContains(t, cfg.Validate(), "leverage")
}

func TestValidateAllowsZeroLeverageForSpot(t *testing.T) {
	cfg := validConfig()
	cfg.Instrument = "spot"
	cfg.Risk.Leverage = 0
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsQueueAlphaOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Sim.QueueAlpha = 1.5
	require.ErrorContains(t, cfg.Validate(), "queue_alpha")

	cfg.Sim.QueueAlpha = 0
	require.ErrorContains(t, cfg.Validate(), "queue_alpha")
}
