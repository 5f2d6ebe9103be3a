package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/identity"
	"github.com/leshachaplin/capirelay/internal/platform"
	"github.com/leshachaplin/capirelay/internal/worker"
)

type Storage interface {
	StoreReports(ctx context.Context, batch domain.ReportBatch) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, core domain.ConversionEventCore, adapters []platform.Adapter) (domain.DispatchResult, error)
}

type Service struct {
	ids        *identity.Generator
	dispatcher Dispatcher
	adapters   []platform.Adapter
	reportPool worker.WorkerPool
	now        func() time.Time
	logger     zerolog.Logger
}

// New starts reportPool with reportStore as its sink.
func New(
	dispatcher Dispatcher,
	adapters []platform.Adapter,
	reportPool worker.WorkerPool,
	reportStore Storage,
	logger zerolog.Logger,
) *Service {
	reportPool.Start(reportStore.StoreReports)

	return &Service{
		ids:        identity.NewGenerator(),
		dispatcher: dispatcher,
		adapters:   adapters,
		reportPool: reportPool,
		now:        time.Now,
		logger:     logger.With().Str("component", "conversion").Logger(),
	}
}
