package app

import (
	"context"
	"time"
)

const (
	defaultPollInterval = 5 * time.Minute
	maxBackoff          = 30 * time.Second
)

// StartPoller launches a background goroutine that probes the server and
// refreshes the order history. Consecutive failures shorten the wait to a
// doubling backoff so the app notices when it is back online. changed, when
// set, is called after every round. It returns immediately.
func StartPoller(ctx context.Context, portal *Portal, interval time.Duration, changed func()) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go func() {
		for {
			poll(ctx, portal)
			if changed != nil {
				changed()
			}
			wait := interval
			if failures := portal.State().Snapshot().ConsecutiveFailures; failures > 0 {
				wait = min(calculateBackoff(failures, time.Second), interval)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

func poll(ctx context.Context, portal *Portal) {
	if _, err := portal.Health(ctx); err != nil {
		portal.logf("[poll] health check failed: %v", err)
		return
	}
	if _, err := portal.RefreshOrders(ctx, true); err != nil {
		portal.logf("[poll] orders refresh failed: %v", err)
	}
}

// calculateBackoff doubles base per failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
