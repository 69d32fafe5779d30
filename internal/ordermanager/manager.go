// Package ordermanager diffs the risk gate's desired (bid, ask) against
// the order manager's own view of what is actually resting at the venue,
// and emits the minimal set of place/amend/cancel actions to converge
// (spec.md section 4.6).
//
// This is a direct generalization of the teacher's
// strategy.Maker.reconcileOrders: same price/size-tolerance matching
// idiom, same "only touch orders that drifted" philosophy, extended with
// an amend action (the teacher only ever cancels and re-places) and
// explicit ACK-pending bookkeeping with a timeout, since spec.md section
// 4.6 requires the manager to track in-flight orders rather than assume
// synchronous REST responses the way the teacher's polymarket-go-sdk
// client does.
package ordermanager

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

// ErrAckTimeout is returned by Sweep when a pending order has not been
// acknowledged within Config.AckTimeout.
type ErrAckTimeout struct {
	ClientID string
	Side     mm.Side
}

func (e ErrAckTimeout) Error() string {
	return fmt.Sprintf("ordermanager: ack timeout for %s order %s", e.Side, e.ClientID)
}

// ActionKind is the verb the manager decided for one side.
type ActionKind string

const (
	ActionNone   ActionKind = "none"
	ActionPlace  ActionKind = "place"
	ActionAmend  ActionKind = "amend"
	ActionCancel ActionKind = "cancel"
)

// Action is one instruction for the adapter layer to execute.
type Action struct {
	Kind       ActionKind
	Side       mm.Side
	ClientID   string // set for Place/Amend
	Price      decimal.Decimal
	Size       decimal.Decimal
	ReduceOnly bool
	// CancelClientID/CancelVenueID identify the order being replaced or
	// withdrawn, for Amend and Cancel.
	CancelClientID string
	CancelVenueID  string
}

// Config holds the tolerance thresholds spec.md section 4.6 names.
type Config struct {
	PriceTolerance   decimal.Decimal // absolute dollars; typically one tick
	SizeTolerancePct float64         // fraction, e.g. 0.10 for 10%
	AckTimeout       time.Duration

	// SupportsAmend reports whether the venue accepts an in-place
	// amend. When false, a drifted order is always replaced by
	// cancel+place instead (spec.md section 4.6: "amend if venue
	// supports it, else cancel+place").
	SupportsAmend bool
	// ReplaceThreshold is the absolute-dollar drift beyond which even
	// an amend-capable venue gets cancel+place instead of amend (zero
	// means unbounded — always amend when SupportsAmend is true).
	ReplaceThreshold decimal.Decimal
}

// Manager owns the book of orders it believes are resting at the venue.
type Manager struct {
	cfg  Config
	open map[mm.Side]*mm.OpenQuote
}

// New creates an order manager with no resting orders.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, open: make(map[mm.Side]*mm.OpenQuote)}
}

// SupportsAmend reports whether this manager's venue accepts in-place
// amends, per spec.md section 4.6's capability query.
func (m *Manager) SupportsAmend() bool { return m.cfg.SupportsAmend }

// desiredSide bundles one side's gated verdict for Reconcile.
type desiredSide struct {
	side    mm.Side
	gated   mm.GatedSide
	present bool
}

// Reconcile compares the gate's verdict against the manager's current
// book and returns the actions to converge. At most one side is ever
// touched per drifted order: amend when Config.SupportsAmend is true
// and the drift is within ReplaceThreshold, else cancel+place (spec.md
// section 4.6: "amend if venue supports it, else cancel+place").
func (m *Manager) Reconcile(desired mm.GatedQuote, now time.Time) []Action {
	var actions []Action

	sides := []desiredSide{
		{side: mm.Buy, gated: desired.Bid, present: !desired.Bid.Withdraw && !desired.WithdrawAll},
		{side: mm.Sell, gated: desired.Ask, present: !desired.Ask.Withdraw && !desired.WithdrawAll},
	}

	for _, d := range sides {
		active := m.open[d.side]

		if !d.present {
			if active != nil {
				actions = append(actions, Action{
					Kind:           ActionCancel,
					Side:           d.side,
					CancelClientID: active.ClientID,
					CancelVenueID:  active.VenueOrderID,
				})
				delete(m.open, d.side)
			}
			continue
		}

		if active == nil {
			clientID := uuid.NewString()
			actions = append(actions, Action{
				Kind:       ActionPlace,
				Side:       d.side,
				ClientID:   clientID,
				Price:      d.gated.Price,
				Size:       d.gated.Size,
				ReduceOnly: d.gated.ReduceOnly,
			})
			m.open[d.side] = &mm.OpenQuote{
				Side:     d.side,
				Price:    d.gated.Price,
				Size:     d.gated.Size,
				ClientID: clientID,
				PlacedAt: now,
				Pending:  true,
			}
			continue
		}

		if active.Pending {
			// An amend or place is already in flight for this side; wait
			// for the ack (or the timeout) before issuing another action.
			continue
		}

		if m.withinTolerance(active, d.gated) {
			continue
		}

		priceDrift := active.Price.Sub(d.gated.Price).Abs()
		canAmend := m.cfg.SupportsAmend &&
			(m.cfg.ReplaceThreshold.IsZero() || priceDrift.LessThanOrEqual(m.cfg.ReplaceThreshold))

		if !canAmend {
			// Venue doesn't support amend, or the drift exceeds the
			// replace threshold: cancel-before-place to avoid double
			// exposure (spec.md section 5, ordering guarantees).
			actions = append(actions, Action{
				Kind:           ActionCancel,
				Side:           d.side,
				CancelClientID: active.ClientID,
				CancelVenueID:  active.VenueOrderID,
			})
			clientID := uuid.NewString()
			actions = append(actions, Action{
				Kind:       ActionPlace,
				Side:       d.side,
				ClientID:   clientID,
				Price:      d.gated.Price,
				Size:       d.gated.Size,
				ReduceOnly: d.gated.ReduceOnly,
			})
			m.open[d.side] = &mm.OpenQuote{
				Side:     d.side,
				Price:    d.gated.Price,
				Size:     d.gated.Size,
				ClientID: clientID,
				PlacedAt: now,
				Pending:  true,
			}
			continue
		}

		clientID := uuid.NewString()
		actions = append(actions, Action{
			Kind:           ActionAmend,
			Side:           d.side,
			ClientID:       clientID,
			Price:          d.gated.Price,
			Size:           d.gated.Size,
			ReduceOnly:     d.gated.ReduceOnly,
			CancelClientID: active.ClientID,
			CancelVenueID:  active.VenueOrderID,
		})
		m.open[d.side] = &mm.OpenQuote{
			Side:     d.side,
			Price:    d.gated.Price,
			Size:     d.gated.Size,
			ClientID: clientID,
			PlacedAt: now,
			Pending:  true,
		}
	}

	return actions
}

func (m *Manager) withinTolerance(active *mm.OpenQuote, gated mm.GatedSide) bool {
	priceDiff := active.Price.Sub(gated.Price).Abs()
	if priceDiff.GreaterThan(m.cfg.PriceTolerance) {
		return false
	}
	if gated.Size.IsZero() {
		return active.Size.IsZero()
	}
	sizeDiff := active.Size.Sub(gated.Size).Abs()
	sizeFrac, _ := sizeDiff.Div(gated.Size).Float64()
	return sizeFrac <= m.cfg.SizeTolerancePct
}

// OnAck applies a venue acknowledgement, clearing the Pending flag on
// success or rolling back the book entry on rejection.
func (m *Manager) OnAck(ack mm.Ack) {
	for side, oq := range m.open {
		if oq.ClientID != ack.ClientID {
			continue
		}
		switch ack.Status {
		case mm.AckAccepted:
			oq.Pending = false
			oq.VenueOrderID = ack.ClientID
		case mm.AckRejected, mm.AckCancelled:
			delete(m.open, side)
		}
		return
	}
}

// Sweep returns ErrAckTimeout for any order still pending past
// Config.AckTimeout, so the caller can treat it as a fatal adapter
// condition and fall back to a full cancel-all (spec.md section 7).
func (m *Manager) Sweep(now time.Time) []error {
	var errs []error
	for _, oq := range m.open {
		if oq.Pending && now.Sub(oq.PlacedAt) > m.cfg.AckTimeout {
			errs = append(errs, ErrAckTimeout{ClientID: oq.ClientID, Side: oq.Side})
		}
	}
	return errs
}

// Open returns the manager's current view of resting orders, keyed by
// side, for logging and trade-log snapshots.
func (m *Manager) Open() map[mm.Side]mm.OpenQuote {
	out := make(map[mm.Side]mm.OpenQuote, len(m.open))
	for side, oq := range m.open {
		out[side] = *oq
	}
	return out
}

// CancelAll returns cancel actions for every resting order, used on
// shutdown or when the risk gate withdraws both sides.
func (m *Manager) CancelAll() []Action {
	var actions []Action
	for side, oq := range m.open {
		actions = append(actions, Action{
			Kind:           ActionCancel,
			Side:           side,
			CancelClientID: oq.ClientID,
			CancelVenueID:  oq.VenueOrderID,
		})
	}
	m.open = make(map[mm.Side]*mm.OpenQuote)
	return actions
}
