package store

import (
	"context"
	"time"
)

const (
	conflictAttempts = 5
	conflictBackoff  = 20 * time.Millisecond
)

// retryConflicts reruns fn while it fails with a transient write conflict
// (lock contention or serialization failure). Any other error is returned
// immediately.
func retryConflicts(ctx context.Context, isConflict func(error) bool, fn func() error) error {
	var err error
	for attempt := range conflictAttempts {
		if err = fn(); err == nil || !isConflict(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(conflictBackoff << attempt):
		}
	}
	return err
}
