package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticket is a handle to a running periodic task. Stop cancels the task
// and waits for the in-flight run, if any, to return. Stopping twice is
// safe. There is no way to restart a ticket; start a new one instead.
type Ticket struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (t *Ticket) Stop() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}

func (t *Ticket) Name() string { return t.name }

// Start runs fn immediately and then on every tick until the ticket is
// stopped or ctx is cancelled. fn receives a context that is cancelled
// together with the ticket, so a slow network call cannot outlive its
// owner. Errors from fn are logged and the loop keeps going; retrying on
// the next tick is the recovery policy for all polled feeds.
func Start(ctx context.Context, name string, every time.Duration, fn func(context.Context) error, log *zap.Logger) *Ticket {
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticket{name: name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Warn("poller: task failed", zap.String("task", name), zap.Error(err))
		}
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					log.Warn("poller: task failed", zap.String("task", name), zap.Error(err))
				}
			}
		}
	}()
	return t
}
