// Package adapterio defines the boundary between the GLFT core and an
// exchange connection: the inbound tick/depth/fill/ack channels the core
// consumes, the outbound place/cancel/amend commands it produces, and
// the typed error taxonomy for adapter failures (spec.md section 1 "out
// of scope: exchange REST/WebSocket client adapters", section 6
// "external interfaces").
//
// Only the interface and an in-memory fake live here; a real exchange
// client is out of scope per spec.md section 1. The retry-budget idiom
// is a direct adaptation of the teacher's
// `internal/exchange.TokenBucket`/`RateLimiter` (continuous token
// refill), repurposed from outbound rate limiting into an
// AdapterTimeout retry quota with exponential backoff (spec.md section 7:
// "repeated [AdapterTimeout] -> exponential backoff on a retry quota").
package adapterio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

// ErrAdapterTimeout is returned when a Send call does not complete
// within the caller's deadline.
type ErrAdapterTimeout struct {
	Command CommandKind
}

func (e ErrAdapterTimeout) Error() string {
	return fmt.Sprintf("adapterio: timeout sending %s", e.Command)
}

// ErrAdapterReject is returned when the venue rejects a command.
type ErrAdapterReject struct {
	Command CommandKind
	Reason  string
}

func (e ErrAdapterReject) Error() string {
	return fmt.Sprintf("adapterio: %s rejected: %s", e.Command, e.Reason)
}

// ErrFatalAdapter signals the adapter connection is unrecoverable; the
// driver must exit with process exit code 3.
type ErrFatalAdapter struct {
	Reason string
}

func (e ErrFatalAdapter) Error() string { return "adapterio: fatal: " + e.Reason }

// CommandKind is the outbound verb sent to the adapter.
type CommandKind string

const (
	CommandPlace  CommandKind = "place"
	CommandCancel CommandKind = "cancel"
	CommandAmend  CommandKind = "amend"
)

// Command is one outbound instruction (spec.md section 6's
// place/cancel/amend interface).
type Command struct {
	Kind       CommandKind
	Side       mm.Side
	ClientID   string
	Price      decimal.Decimal
	Size       decimal.Decimal
	ReduceOnly bool
	PostOnly   bool
}

// Adapter is the capability the epoch driver consumes. A live
// implementation wraps an exchange REST/WS client (out of scope here);
// the backtest driver instead drives the simulator directly.
type Adapter interface {
	Ticks() <-chan mm.Tick
	Depth() <-chan mm.DepthSnapshot
	Fills() <-chan mm.Fill
	Acks() <-chan mm.Ack
	Send(ctx context.Context, cmd Command) error
}

// RetryBudget is a continuously-refilling token bucket for AdapterTimeout
// retries, the same refill model as the teacher's
// `exchange.TokenBucket`, repurposed here to gate retries instead of
// outbound request rate.
type RetryBudget struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

// NewRetryBudget creates a retry budget with the given burst capacity
// and steady-state refill rate (tokens per second).
func NewRetryBudget(capacity, ratePerSecond float64, now time.Time) *RetryBudget {
	return &RetryBudget{tokens: capacity, capacity: capacity, rate: ratePerSecond, last: now}
}

// Allow reports whether a retry may proceed now, consuming one token if
// so. It never blocks — the epoch driver must never suspend outside its
// declared suspension points (spec.md section 5).
func (b *RetryBudget) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Backoff computes the exponential backoff duration for the nth
// consecutive AdapterTimeout (n starting at 1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}

// Fake is an in-memory Adapter for tests and for cmd/glftmm's live mode,
// which has no real exchange client: it records every Send and lets a
// test push inbound events directly onto its channels.
type Fake struct {
	ticks chan mm.Tick
	depth chan mm.DepthSnapshot
	fills chan mm.Fill
	acks  chan mm.Ack

	mu       sync.Mutex
	Sent     []Command
	SendFunc func(ctx context.Context, cmd Command) error
}

// NewFake creates a Fake adapter with buffered channels.
func NewFake() *Fake {
	return &Fake{
		ticks: make(chan mm.Tick, 64),
		depth: make(chan mm.DepthSnapshot, 64),
		fills: make(chan mm.Fill, 64),
		acks:  make(chan mm.Ack, 64),
	}
}

func (f *Fake) Ticks() <-chan mm.Tick                 { return f.ticks }
func (f *Fake) Depth() <-chan mm.DepthSnapshot        { return f.depth }
func (f *Fake) Fills() <-chan mm.Fill                 { return f.fills }
func (f *Fake) Acks() <-chan mm.Ack                   { return f.acks }

// Send records the command, delegating to SendFunc when set so tests can
// simulate rejections and timeouts.
func (f *Fake) Send(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	f.Sent = append(f.Sent, cmd)
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(ctx, cmd)
	}
	return nil
}

// PushTick, PushDepth, PushFill, and PushAck feed inbound events to a
// test's driver loop.
func (f *Fake) PushTick(t mm.Tick)            { f.ticks <- t }
func (f *Fake) PushDepth(d mm.DepthSnapshot)  { f.depth <- d }
func (f *Fake) PushFill(fl mm.Fill)           { f.fills <- fl }
func (f *Fake) PushAck(a mm.Ack)              { f.acks <- a }
