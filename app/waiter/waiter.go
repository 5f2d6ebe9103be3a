package waiter

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

type waiterCfg struct {
	signals []os.Signal
}

// Waiter runs long-lived components until a signal arrives, the parent
// context ends, or one of them fails.
type Waiter interface {
	Add(fns ...func(ctx context.Context) error)
	Wait() error
	Context() context.Context
}

type waiter struct {
	fns      []func(ctx context.Context) error
	ctx      context.Context
	cancelFn context.CancelFunc
}

func NewWaiter(ctx context.Context, cancelFn context.CancelFunc, opts ...Option) Waiter {
	cfg := &waiterCfg{
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sigCtx, stop := signal.NotifyContext(ctx, cfg.signals...)
	return &waiter{
		ctx: sigCtx,
		cancelFn: func() {
			stop()
			cancelFn()
		},
	}
}

func (w *waiter) Add(fns ...func(ctx context.Context) error) {
	w.fns = append(w.fns, fns...)
}

func (w *waiter) Context() context.Context {
	return w.ctx
}

func (w *waiter) Wait() error {
	defer w.cancelFn()

	group, gCtx := errgroup.WithContext(w.ctx)
	for _, fn := range w.fns {
		fn := fn
		group.Go(func() error {
			return fn(gCtx)
		})
	}

	return group.Wait()
}
