package adapterio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glft-mm/glft-mm/pkg/mm"
)

func TestRetryBudgetRefillsOverTime(t *testing.T) {
	now := time.Now()
	b := NewRetryBudget(2, 1, now)
	require.True(t, b.Allow(now))
	require.True(t, b.Allow(now))
	require.False(t, b.Allow(now))

	require.True(t, b.Allow(now.Add(1100*time.Millisecond)))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 1 * time.Second
	require.Equal(t, base, Backoff(1, base, max))
	require.Equal(t, 2*base, Backoff(2, base, max))
	require.Equal(t, 4*base, Backoff(3, base, max))
	require.Equal(t, max, Backoff(10, base, max))
}

func TestFakeAdapterRecordsSentCommands(t *testing.T) {
	fake := NewFake()
	cmd := Command{Kind: CommandPlace, Side: mm.Buy}
	require.NoError(t, fake.Send(context.Background(), cmd))
	require.Len(t, fake.Sent, 1)
	require.Equal(t, CommandPlace, fake.Sent[0].Kind)
}

func TestFakeAdapterPushAndReceive(t *testing.T) {
	fake := NewFake()
	fake.PushTick(mm.Tick{Price: 100})
	select {
	case tick := <-fake.Ticks():
		require.Equal(t, 100.0, tick.Price)
	default:
		t.Fatal("expected a buffered tick")
	}
}

func TestFakeAdapterSendFuncOverride(t *testing.T) {
	fake := NewFake()
	fake.SendFunc = func(ctx context.Context, cmd Command) error {
		return ErrAdapterReject{Command: cmd.Kind, Reason: "insufficient margin"}
	}
	err := fake.Send(context.Background(), Command{Kind: CommandPlace})
	require.Error(t, err)
	var reject ErrAdapterReject
	require.ErrorAs(t, err, &reject)
}
