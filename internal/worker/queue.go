package worker

import (
	"context"
	"errors"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/producer"
)

var ErrQueueFull = errors.New("report queue is full")

type Queue interface {
	Publish(ctx context.Context, key string, batch domain.ReportBatch) error
	Consume(ctx context.Context, taskPayload chan<- domain.ReportBatch, done <-chan struct{})
}

type RedpandaQueue struct {
	producer *producer.Producer
	consumer *consumer.Consumer
}

func NewRedpandaQueue(producer *producer.Producer, consumer *consumer.Consumer) *RedpandaQueue {
	return &RedpandaQueue{
		producer: producer,
		consumer: consumer,
	}
}

func (r *RedpandaQueue) Publish(ctx context.Context, key string, batch domain.ReportBatch) error {
	if err := r.producer.Publish(ctx, key, batch); err != nil {
		return err
	}
	return nil
}

func (r *RedpandaQueue) Consume(ctx context.Context, taskPayload chan<- domain.ReportBatch, done <-chan struct{}) {
	r.consumer.Consume(ctx, taskPayload, done)
}

// MemoryQueue is the broker-less queue. Publish never blocks: when the
// buffer is full the batch is refused with ErrQueueFull.
type MemoryQueue struct {
	batches chan domain.ReportBatch
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		batches: make(chan domain.ReportBatch, size),
	}
}

func (m *MemoryQueue) Publish(ctx context.Context, _ string, batch domain.ReportBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.batches <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *MemoryQueue) Consume(ctx context.Context, taskPayload chan<- domain.ReportBatch, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case batch := <-m.batches:
			select {
			case taskPayload <- batch:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}
}
