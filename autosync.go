package policysync

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
)

// AutoSyncOn begins interval syncs. The ticker goroutine is the single
// caller of Sync, which preserves the one-run-at-a-time assumption.
func (c *client) AutoSyncOn() error {
	if c.options.autoSyncInterval <= 0 {
		return &errors.ValidationError{
			Field:   "autoSyncInterval",
			Value:   c.options.autoSyncInterval,
			Message: "sync interval must be positive",
		}
	}

	// Stop any existing ticker to prevent resource leaks
	if err := c.AutoSyncOff(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Recreate stopCh since it was closed in AutoSyncOff
	c.stopCh = make(chan struct{})
	c.syncTicker = time.NewTicker(c.options.autoSyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel

	go func(parentCtx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
		for {
			select {
			case <-ticker.C:
				syncCtx, syncCancel := context.WithTimeout(parentCtx, constants.SyncContextTimeout)
				_, err := c.Sync(syncCtx)
				syncCancel()

				if err != nil {
					if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log and keep the schedule; the next run retries the
					// same transition since the pointer did not advance.
					logging.Error().Err(err).Msg("Auto-sync failed")
				}
			case <-parentCtx.Done():
				return
			case <-stop:
				return
			}
		}
	}(ctx, c.syncTicker, c.stopCh)

	return nil
}

// AutoSyncOff stops interval syncs.
func (c *client) AutoSyncOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncTicker != nil {
		c.syncTicker.Stop()
		c.syncTicker = nil
	}

	if c.syncCancel != nil {
		c.syncCancel()
		c.syncCancel = nil
	}

	if c.stopCh != nil {
		select {
		case <-c.stopCh:
			// Already closed
		default:
			close(c.stopCh)
		}
	}

	return nil
}
