package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/domain"
)

type WorkerPool interface {
	Start(executeFn func(ctx context.Context, batch domain.ReportBatch) error)
	GracefulStop()
	Process(batch domain.ReportBatch)
}

// Pool drains report batches from a Queue into executeFn. Delivery is best
// effort: a batch that cannot be queued or stored is logged and dropped.
type Pool struct {
	numWorkers  int
	taskPayload chan domain.ReportBatch
	queue       Queue
	start       sync.Once
	stop        sync.Once
	doneChan    chan struct{}
	ctx         context.Context
	cancelFn    context.CancelFunc
	wg          *sync.WaitGroup
	logger      zerolog.Logger
}

func New(ctx context.Context, cfg Config, queue Queue, logger zerolog.Logger) *Pool {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	c, cancelFn := context.WithCancel(ctx)
	return &Pool{
		numWorkers:  numWorkers,
		taskPayload: make(chan domain.ReportBatch, numWorkers),
		doneChan:    make(chan struct{}),
		queue:       queue,
		ctx:         c,
		cancelFn:    cancelFn,
		wg:          &sync.WaitGroup{},
		logger:      logger,
	}
}

func (w *Pool) Start(
	executeFn func(ctx context.Context, batch domain.ReportBatch) error,
) {
	w.start.Do(func() {
		for i := 0; i < w.numWorkers; i++ {
			w.wg.Add(1)
			l := w.logger.With().Int("worker", i).Logger()
			go w.work(w.ctx, l, executeFn)
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.queue.Consume(w.ctx, w.taskPayload, w.doneChan)
		}()
	})
}

func (w *Pool) GracefulStop() {
	w.stop.Do(func() {
		close(w.doneChan)
		w.cancelFn()
		w.wg.Wait()
	})
}

func (w *Pool) Process(batch domain.ReportBatch) {
	if err := w.queue.Publish(w.ctx, batch.ID, batch); err != nil {
		w.onFailure(batch, err)
	}
}

func (w *Pool) onFailure(batch domain.ReportBatch, err error) {
	w.logger.Error().
		Err(err).
		Str("batch_id", batch.ID).
		Int("reports", len(batch.Reports)).
		Msg("Failed to process delivery reports.")
}

func (w *Pool) work(
	ctx context.Context,
	logger zerolog.Logger,
	executeFn func(ctx context.Context, batch domain.ReportBatch) error,
) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.doneChan:
			return
		case pld, ok := <-w.taskPayload:
			if !ok {
				return
			}

			logger.Debug().Str("batch_id", pld.ID).Int("reports", len(pld.Reports)).Msg("Start processing reports.")
			if err := executeFn(ctx, pld); err != nil {
				w.onFailure(pld, err)
			}
			logger.Debug().Str("batch_id", pld.ID).Msg("End processing reports.")
		}
	}
}
