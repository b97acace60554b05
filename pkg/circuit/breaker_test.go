package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func newTestBreaker(timeout time.Duration) *Breaker {
	return NewBreaker(Config{
		Name:        "test",
		MaxFailures: 3,
		Timeout:     timeout,
		HalfOpenMax: 2,
	})
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, func() error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	b.Execute(ctx, func() error { return errBoom })
	b.Execute(ctx, func() error { return errBoom })
	assert.Equal(t, 2, b.Failures())

	b.Execute(ctx, func() error { return nil })
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func() error { return errBoom })
	}
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	// two successes in half-open close the circuit
	assert.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.NoError(t, b.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, func() error { return errBoom })
	}
	time.Sleep(20 * time.Millisecond)

	err := b.Execute(ctx, func() error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerForceOpenAndReset(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	b.ForceOpen()
	assert.ErrorIs(t, b.Execute(ctx, func() error { return nil }), ErrCircuitOpen)

	b.Reset()
	assert.NoError(t, b.Execute(ctx, func() error { return nil }))
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreaker(Config{
		Name:        "cb",
		MaxFailures: 1,
		Timeout:     time.Minute,
		HalfOpenMax: 1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	b.Execute(context.Background(), func() error { return errBoom })
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerGroup(t *testing.T) {
	g := NewBreakerGroup(Config{MaxFailures: 1, Timeout: time.Minute, HalfOpenMax: 1})
	ctx := context.Background()

	t.Run("should isolate breakers by name", func(t *testing.T) {
		g.Execute(ctx, "a", func() error { return errBoom })
		assert.Equal(t, StateOpen, g.Get("a").State())
		assert.Equal(t, StateClosed, g.Get("b").State())
	})

	t.Run("should return the same breaker for a name", func(t *testing.T) {
		assert.Same(t, g.Get("a"), g.Get("a"))
	})

	t.Run("should report all states", func(t *testing.T) {
		states := g.States()
		assert.Equal(t, StateOpen, states["a"])
		assert.Equal(t, StateClosed, states["b"])
	})
}
