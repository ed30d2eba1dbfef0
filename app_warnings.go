package main

import (
	"context"

	"gamepause/internal/sessionlog"
	"gamepause/internal/statusfeed"
)

// enqueueWarning is the warning ring listener. It never blocks: the ring
// is fed from inside slog handlers, which may run while the feed holds its
// write lock.
func (a *App) enqueueWarning(e sessionlog.Entry) {
	select {
	case a.warningQueue <- e:
	default:
	}
}

// forwardWarnings publishes queued warnings on the status feed.
func (a *App) forwardWarnings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.warningQueue:
			a.feed.Publish(statusfeed.WarningEvent(e.Text(), e.Time))
		}
	}
}
