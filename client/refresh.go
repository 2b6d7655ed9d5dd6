package client

import (
	"context"
	"sync"
)

type renewalResult struct {
	token string
	err   error
}

// refreshCoordinator single-flights token renewal. The first caller to find
// no renewal in progress becomes the leader and performs the exchange;
// everyone arriving while it is outstanding is parked in a FIFO queue.
// The leader fans the outcome out to the queue in enqueue order, so waiters
// are resumed in the order they failed. A second exchange can never start
// while one is outstanding.
type refreshCoordinator struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan renewalResult
}

func (rc *refreshCoordinator) renew(ctx context.Context, exchange func() (string, error)) (string, error) {
	rc.mu.Lock()
	if rc.inFlight {
		// Buffered so the leader's fan-out never blocks on a waiter that
		// gave up on its context.
		ch := make(chan renewalResult, 1)
		rc.waiters = append(rc.waiters, ch)
		rc.mu.Unlock()

		select {
		case result := <-ch:
			return result.token, result.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	rc.inFlight = true
	rc.mu.Unlock()

	token, err := exchange()

	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.inFlight = false
	rc.mu.Unlock()

	for _, ch := range waiters {
		ch <- renewalResult{token: token, err: err}
	}

	return token, err
}
