package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestOnTickAcceptsWithinThreshold(t *testing.T) {
	b := New()
	now := time.Now()
	if err := b.OnTick(now, decimal.NewFromInt(100000), 0.02); err != nil {
		t.Fatalf("first tick should always be accepted: %v", err)
	}
	if err := b.OnTick(now.Add(time.Second), decimal.NewFromInt(100500), 0.02); err != nil {
		t.Fatalf("0.5%% move should be within 2%% threshold: %v", err)
	}
	mid, ok := b.Mid()
	if !ok || !mid.Equal(decimal.NewFromInt(100500)) {
		t.Fatalf("unexpected mid: %v ok=%v", mid, ok)
	}
}

func TestOnTickRejectsOutlier(t *testing.T) {
	b := New()
	now := time.Now()
	_ = b.OnTick(now, decimal.NewFromInt(100000), 0.02)

	err := b.OnTick(now.Add(time.Second), decimal.NewFromInt(105000), 0.02)
	if err == nil {
		t.Fatalf("expected a stale-tick error for a 5%% jump over a 2%% threshold")
	}

	mid, _ := b.Mid()
	if !mid.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("mid should not advance on a rejected outlier tick, got %v", mid)
	}
}

func TestIsStale(t *testing.T) {
	b := New()
	now := time.Now()
	if !b.IsStale(now, time.Second) {
		t.Fatalf("a book with no updates must be stale")
	}
	_ = b.OnTick(now, decimal.NewFromInt(100000), 0.02)
	if b.IsStale(now.Add(500*time.Millisecond), time.Second) {
		t.Fatalf("book should not be stale within maxAge")
	}
	if !b.IsStale(now.Add(2*time.Second), time.Second) {
		t.Fatalf("book should be stale beyond maxAge")
	}
}
