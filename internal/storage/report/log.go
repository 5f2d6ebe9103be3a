package report

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/domain"
)

// LogStore writes delivery reports to the log when no database is configured.
type LogStore struct {
	logger zerolog.Logger
}

func NewLogStore(logger zerolog.Logger) *LogStore {
	return &LogStore{
		logger: logger.With().Str("component", "delivery-report").Logger(),
	}
}

func (s *LogStore) StoreReports(_ context.Context, batch domain.ReportBatch) error {
	for _, r := range batch.Reports {
		platforms := zerolog.Dict()
		for _, p := range r.Platforms {
			outcome := "failed"
			switch {
			case p.Skipped:
				outcome = "skipped"
			case p.Success:
				outcome = "success"
			}
			platforms.Str(string(p.Platform), outcome)
		}

		s.logger.Info().
			Str("report_id", r.ID).
			Str("event_id", r.EventID.String()).
			Str("event_name", r.EventName).
			Str("status", string(r.Status)).
			Dict("platforms", platforms).
			Time("event_time", r.EventTime).
			Msg("Delivery report.")
	}
	return nil
}
