package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/leshachaplin/capirelay/internal/domain"
)

const (
	defaultPollFetchesTimeout = 15 * time.Second
	pingTimeout               = 15 * time.Second
)

type Config struct {
	Brokers            []string      `envconfig:"BROKERS"`
	ConsumerGroup      string        `envconfig:"CONSUMER_GROUP" default:"capirelay-reports"`
	Topics             []string      `envconfig:"TOPIC" default:"capi-delivery-reports"`
	PollFetchesTimeout time.Duration `envconfig:"POLL_TIMEOUT" default:"15s"`
}

type Consumer struct {
	client             *kgo.Client
	pollFetchesTimeout time.Duration
	errChan            chan<- error
	commit             func(ctx context.Context, rs ...*kgo.Record) error
	logger             zerolog.Logger
}

func NewConsumer(cfg Config, errChan chan<- error, logger zerolog.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kgo new client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping brokers: %w", err)
	}

	consumer := &Consumer{
		client:             client,
		errChan:            errChan,
		pollFetchesTimeout: cfg.PollFetchesTimeout,
		commit:             client.CommitRecords,
		logger:             logger,
	}
	if consumer.pollFetchesTimeout == 0 {
		consumer.pollFetchesTimeout = defaultPollFetchesTimeout
	}

	return consumer, nil
}

func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

func (c *Consumer) Consume(ctx context.Context, batchChan chan<- domain.ReportBatch, done <-chan struct{}) {
	c.consume(ctx, done, func(fetches kgo.Fetches) error {
		return c.handle(ctx, fetches, batchChan, done)
	})
}

// handle forwards every decodable record of one poll. A record that does not
// decode is logged and committed so it never blocks the ones behind it.
func (c *Consumer) handle(
	ctx context.Context,
	fetches kgo.Fetches,
	batchChan chan<- domain.ReportBatch,
	done <-chan struct{},
) error {
	for iter := fetches.RecordIter(); !iter.Done(); {
		record := iter.Next()

		var batch domain.ReportBatch
		if err := json.Unmarshal(record.Value, &batch); err != nil {
			c.logger.Error().
				Str("key", string(record.Key)).
				Str("topic", record.Topic).
				Int64("offset", record.Offset).
				Err(err).
				Msg("Skipping undecodable report batch.")

			if commitErr := c.commit(ctx, record); commitErr != nil {
				return fmt.Errorf("commit record: %w", commitErr)
			}
			continue
		}

		select {
		case batchChan <- batch:
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}

		if commitErr := c.commit(ctx, record); commitErr != nil {
			return fmt.Errorf("commit record: %w", commitErr)
		}
	}
	return nil
}

func (c *Consumer) consume(ctx context.Context, done <-chan struct{}, fn func(fetches kgo.Fetches) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
			fetchCtx, cancel := context.WithTimeout(ctx, c.pollFetchesTimeout)
			fetches := c.client.PollFetches(fetchCtx)
			cancel()

			if fetches.IsClientClosed() {
				c.report(errors.New("client closed"))
				return
			}

			if err := fetches.Err(); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}

				if errors.Is(err, context.DeadlineExceeded) {
					continue
				}

				c.report(fmt.Errorf("stream poll fetches: %w", err))
				continue
			}

			if err := fn(fetches); err != nil && !errors.Is(err, context.Canceled) {
				c.report(err)
			}
		}
	}
}

// report never blocks the poll loop on a slow error reader.
func (c *Consumer) report(err error) {
	select {
	case c.errChan <- err:
	default:
		c.logger.Warn().Err(err).Msg("Consumer error dropped.")
	}
}
