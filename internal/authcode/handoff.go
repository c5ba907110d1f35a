// Package authcode captures an OAuth authorization code delivered to a local
// redirect URI and hands it to the goroutine waiting to complete sign-in.
package authcode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds how long WaitForAuthCode blocks.
const DefaultTimeout = 120 * time.Second

var (
	ErrTimeout          = errors.New("timed out waiting for authorization code")
	ErrConsumed         = errors.New("authorization code already consumed")
	ErrAlreadyDelivered = errors.New("authorization code already delivered")
	ErrEmptyCode        = errors.New("authorization code is empty")
)

// State is the lifecycle position of a Handoff.
type State int

const (
	Pending State = iota
	Delivered
	Consumed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delivered:
		return "delivered"
	case Consumed:
		return "consumed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handoff is a one-shot transfer of an authorization code from the callback
// handler to a single waiter. It is scoped to one login attempt.
type Handoff struct {
	mu    sync.Mutex
	state State
	code  string
	ready chan struct{}
}

// NewHandoff returns a pending handoff.
func NewHandoff() *Handoff {
	return &Handoff{ready: make(chan struct{})}
}

// State reports the current lifecycle state.
func (h *Handoff) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Deliver stores code and wakes the waiter. Only the first delivery is kept.
func (h *Handoff) Deliver(code string) error {
	if code == "" {
		return ErrEmptyCode
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Pending {
		return ErrAlreadyDelivered
	}
	h.code = code
	h.state = Delivered
	close(h.ready)
	return nil
}

// Wait blocks until a code is delivered or ctx is done. The code is returned
// to exactly one caller; later calls fail with ErrConsumed.
func (h *Handoff) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.ready:
	case <-ctx.Done():
		// a delivery racing the deadline still wins
		select {
		case <-h.ready:
		default:
			return "", ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Consumed {
		return "", ErrConsumed
	}
	h.state = Consumed
	code := h.code
	h.code = ""
	return code, nil
}

// WaitForAuthCode waits up to timeout for the handoff to be fulfilled. A
// non-positive timeout means DefaultTimeout.
func WaitForAuthCode(ctx context.Context, h *Handoff, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := h.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return "", err
	}
	return code, nil
}
