package ordermanager

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

func testConfig() Config {
	return Config{
		PriceTolerance:   decimal.NewFromFloat(0.5),
		SizeTolerancePct: 0.10,
		AckTimeout:       2 * time.Second,
		SupportsAmend:    true,
	}
}

func quoteAt(bid, ask float64) mm.GatedQuote {
	return mm.GatedQuote{
		Bid: mm.GatedSide{Price: decimal.NewFromFloat(bid), Size: decimal.NewFromInt(1)},
		Ask: mm.GatedSide{Price: decimal.NewFromFloat(ask), Size: decimal.NewFromInt(1)},
	}
}

func TestReconcilePlacesBothSidesWhenEmpty(t *testing.T) {
	m := New(testConfig())
	actions := m.Reconcile(quoteAt(99990, 100010), time.Now())
	require.Len(t, actions, 2)
	for _, a := range actions {
		require.Equal(t, ActionPlace, a.Kind)
	}
}

func TestReconcileKeepsWithinTolerance(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	require.Len(t, actions, 2)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}

	// A tiny drift within PriceTolerance should not trigger an amend.
	actions = m.Reconcile(quoteAt(99990.1, 100010.1), now.Add(time.Second))
	require.Empty(t, actions)
}

func TestReconcileAmendsOnDrift(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}

	actions = m.Reconcile(quoteAt(99950, 100050), now.Add(time.Second))
	require.Len(t, actions, 2)
	for _, a := range actions {
		require.Equal(t, ActionAmend, a.Kind)
		require.NotEmpty(t, a.CancelClientID)
	}
}

func TestReconcileFallsBackToCancelPlaceWhenAmendUnsupported(t *testing.T) {
	cfg := testConfig()
	cfg.SupportsAmend = false
	m := New(cfg)
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}

	actions = m.Reconcile(quoteAt(99950, 100050), now.Add(time.Second))
	require.Len(t, actions, 4)
	require.Equal(t, ActionCancel, actions[0].Kind)
	require.Equal(t, ActionPlace, actions[1].Kind)
	require.Equal(t, ActionCancel, actions[2].Kind)
	require.Equal(t, ActionPlace, actions[3].Kind)
}

func TestReconcileRespectsReplaceThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.SupportsAmend = true
	cfg.ReplaceThreshold = decimal.NewFromFloat(10)
	m := New(cfg)
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}

	// Drift of 40 exceeds the 10-dollar replace threshold even though
	// amend is supported: falls back to cancel+place.
	actions = m.Reconcile(quoteAt(99950, 100050), now.Add(time.Second))
	require.Len(t, actions, 4)
	require.Equal(t, ActionCancel, actions[0].Kind)
	require.Equal(t, ActionPlace, actions[1].Kind)
}

func TestReconcileCancelsOnWithdraw(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}

	withdrawBid := quoteAt(99990, 100010)
	withdrawBid.Bid.Withdraw = true
	actions = m.Reconcile(withdrawBid, now.Add(time.Second))
	require.Len(t, actions, 1)
	require.Equal(t, ActionCancel, actions[0].Kind)
	require.Equal(t, mm.Buy, actions[0].Side)
}

func TestReconcileDoesNotDoubleActOnPending(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	first := m.Reconcile(quoteAt(99990, 100010), now)
	require.Len(t, first, 2)

	// No ack yet: the side is still pending, so another reconcile should
	// not emit a second action for it even though the desired price moved.
	second := m.Reconcile(quoteAt(99950, 100050), now.Add(time.Millisecond))
	require.Empty(t, second)
}

func TestSweepReportsAckTimeout(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	m.Reconcile(quoteAt(99990, 100010), now)

	errs := m.Sweep(now.Add(3 * time.Second))
	require.Len(t, errs, 2)
}

func TestCancelAllClearsBook(t *testing.T) {
	m := New(testConfig())
	now := time.Now()
	actions := m.Reconcile(quoteAt(99990, 100010), now)
	for _, a := range actions {
		m.OnAck(mm.Ack{ClientID: a.ClientID, Status: mm.AckAccepted})
	}
	cancels := m.CancelAll()
	require.Len(t, cancels, 2)
	require.Empty(t, m.Open())
}
