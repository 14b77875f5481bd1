package transfer

import (
	"context"
	"fmt"
	"time"
)

// ICERestartSchedule is the fixed linear backoff for endpoint-side ICE
// negotiation restarts: three attempts, preceded by waits of 1s, 2s
// and 3s respectively.
var ICERestartSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}

// RetryICERestart calls attempt up to len(ICERestartSchedule) times,
// waiting the schedule's backoff before each call. On final failure
// it returns the last error, for the caller to surface to the UI as a
// connectivity error.
func RetryICERestart(ctx context.Context, attempt func(ctx context.Context) error) error {
	var lastErr error
	for _, backoff := range ICERestartSchedule {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := attempt(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("transfer: ICE restart failed after %d attempts: %w", len(ICERestartSchedule), lastErr)
}
