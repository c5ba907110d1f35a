package authcode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffDeliverThenWait(t *testing.T) {
	h := NewHandoff()
	assert.Equal(t, Pending, h.State())

	require.NoError(t, h.Deliver("code-123"))
	assert.Equal(t, Delivered, h.State())

	code, err := WaitForAuthCode(context.Background(), h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "code-123", code)
	assert.Equal(t, Consumed, h.State())
}

func TestHandoffWaitThenDeliver(t *testing.T) {
	h := NewHandoff()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.Deliver("late-code")
	}()

	code, err := WaitForAuthCode(context.Background(), h, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late-code", code)
}

func TestHandoffReturnsCodeExactlyOnce(t *testing.T) {
	h := NewHandoff()
	require.NoError(t, h.Deliver("once"))

	const waiters = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		got      []string
		consumed int
	)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := h.Wait(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrConsumed) {
				consumed++
				return
			}
			got = append(got, code)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"once"}, got)
	assert.Equal(t, waiters-1, consumed)
}

func TestHandoffRejectsSecondDelivery(t *testing.T) {
	h := NewHandoff()
	require.NoError(t, h.Deliver("first"))
	assert.ErrorIs(t, h.Deliver("second"), ErrAlreadyDelivered)

	code, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", code)

	assert.ErrorIs(t, h.Deliver("third"), ErrAlreadyDelivered)
}

func TestHandoffRejectsEmptyCode(t *testing.T) {
	h := NewHandoff()
	assert.ErrorIs(t, h.Deliver(""), ErrEmptyCode)
	assert.Equal(t, Pending, h.State())
}

func TestWaitForAuthCodeTimeout(t *testing.T) {
	h := NewHandoff()

	start := time.Now()
	code, err := WaitForAuthCode(context.Background(), h, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// the attempt can still complete later, but nothing was returned early
	assert.Equal(t, Pending, h.State())
}

func TestWaitForAuthCodeParentCancel(t *testing.T) {
	h := NewHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForAuthCode(ctx, h, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "consumed", Consumed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
