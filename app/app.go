package app

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/capirelay/app/waiter"
	"github.com/leshachaplin/capirelay/internal/config"
	"github.com/leshachaplin/capirelay/internal/dispatch"
	"github.com/leshachaplin/capirelay/internal/pii"
	"github.com/leshachaplin/capirelay/internal/platform"
	"github.com/leshachaplin/capirelay/internal/platform/meta"
	"github.com/leshachaplin/capirelay/internal/platform/snapchat"
	"github.com/leshachaplin/capirelay/internal/platform/tiktok"
	appServer "github.com/leshachaplin/capirelay/internal/server/http"
	"github.com/leshachaplin/capirelay/internal/service"
	"github.com/leshachaplin/capirelay/internal/storage/report"
	"github.com/leshachaplin/capirelay/internal/storage/report/clickhouse"
	"github.com/leshachaplin/capirelay/internal/worker"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/consumer"
	"github.com/leshachaplin/capirelay/internal/worker/redpanda/producer"
)

type LoadConfigFn func() (config.Config, error)

type App struct {
	cfg      config.Config
	logger   zerolog.Logger
	server   *appServer.Server
	waiter   waiter.Waiter
	ctx      context.Context
	cancelFn context.CancelFunc

	closers []func() error
}

func New(loadConfigFn LoadConfigFn) *App {
	ctx, cancelFn := context.WithCancel(context.Background())
	cfg, err := loadConfigFn()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := NewZeroLogger(Level(cfg.LogLevel))

	w := waiter.NewWaiter(ctx, cancelFn)

	return &App{
		cfg:      cfg,
		logger:   logger,
		waiter:   w,
		ctx:      w.Context(),
		cancelFn: cancelFn,
	}
}

func (a *App) Start() {
	defer a.cancelFn()
	defer a.close()

	normalizer := pii.New(a.cfg.PII(), a.logger)
	client := platform.NewClient(a.cfg.Dispatch.Timeout, a.logger)
	adapters := []platform.Adapter{
		meta.New(a.cfg.Meta, normalizer, client),
		snapchat.New(a.cfg.Snapchat, normalizer, client),
		tiktok.New(a.cfg.TikTok, normalizer, client),
	}
	for _, ad := range adapters {
		if err := ad.Enabled(); err != nil {
			a.logger.Warn().Err(err).Str("platform", string(ad.Platform())).Msg("Platform disabled.")
		}
	}

	reportQueue, err := a.reportQueue()
	if err != nil {
		a.logger.Fatal().Err(err).Msg("Could not setup report queue.")
	}
	l := a.logger.With().Str("WORKER", "REPORT").Logger()
	reportWorker := worker.New(a.ctx, a.cfg.Report, reportQueue, l)

	reportStorage, err := a.reportStorage()
	if err != nil {
		a.logger.Fatal().Err(err).Msg("Could not setup report storage.")
	}

	dispatcher := dispatch.New(a.cfg.Dispatch, a.logger)
	conversion := service.New(dispatcher, adapters, reportWorker, reportStorage, a.logger)
	handler := appServer.NewHandler(conversion, a.logger)

	a.server = appServer.New(handler)

	a.waitForServer()
	a.waitForWorker(reportWorker)

	if err = a.waiter.Wait(); err != nil {
		a.logger.Fatal().Err(err).Msg("App crash.")
	}
}

func (a *App) Stop() {
	a.cancelFn()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed.")
		}
	}
}

// reportQueue uses Redpanda when brokers are configured and an in-process
// buffer otherwise.
func (a *App) reportQueue() (worker.Queue, error) {
	if len(a.cfg.ReportProducer.Brokers) == 0 {
		a.logger.Info().Msg("No brokers configured, delivery reports stay in memory.")
		return worker.NewMemoryQueue(a.cfg.Report.QueueSize), nil
	}

	consumerErrorChan := make(chan error, 1)
	reportConsumer, err := consumer.NewConsumer(
		a.cfg.ReportConsumer,
		consumerErrorChan,
		a.logger.With().Str("report consumer", "Consume").Logger(),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, reportConsumer.Close)
	a.waitForConsumerErrors(consumerErrorChan)

	reportProducer, err := producer.NewProducer(
		a.ctx,
		a.cfg.ReportProducer,
		a.logger.With().Str("report producer", "Publish").Logger(),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, reportProducer.Close)

	return worker.NewRedpandaQueue(reportProducer, reportConsumer), nil
}

func (a *App) reportStorage() (service.Storage, error) {
	if !a.cfg.Clickhouse.Enabled() {
		return report.NewLogStore(a.logger), nil
	}

	storage, err := clickhouse.New(a.ctx, a.cfg.Clickhouse, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, storage.Close)

	if err = storage.Migrate(a.ctx); err != nil {
		return nil, err
	}
	return storage, nil
}

func (a *App) waitForServer() {
	a.waiter.Add(func(ctx context.Context) error {
		defer a.logger.Debug().Msg("server has been shutdown")

		group, gCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			defer a.logger.Debug().Msg("public server exited")
			a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("Starting server.")
			err := a.server.ServePublic(a.cfg.HTTPAddr)
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		group.Go(func() error {
			<-gCtx.Done()
			a.logger.Debug().Msg("shutting down the server")
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if err := a.server.ShutdownPublic(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("error while shutting down the server")
			}
			return nil
		})

		return group.Wait()
	})
}

func (a *App) waitForWorker(reportWorker worker.WorkerPool) {
	a.waiter.Add(func(ctx context.Context) error {
		<-ctx.Done()
		reportWorker.GracefulStop()
		return nil
	})
}

// waitForConsumerErrors logs broker failures; the consumer keeps polling.
func (a *App) waitForConsumerErrors(errChan <-chan error) {
	a.waiter.Add(func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-errChan:
				a.logger.Error().Err(err).Msg("Report consumer failed.")
			}
		}
	})
}
