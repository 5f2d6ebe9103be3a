package clickhouse

import (
	"time"

	"github.com/leshachaplin/capirelay/internal/domain"
)

type delivery struct {
	ReportID     string    `ch:"report_id"`
	EventID      string    `ch:"event_id"`
	EventName    string    `ch:"event_name"`
	Status       string    `ch:"status"`
	Platform     string    `ch:"platform"`
	PlatformName string    `ch:"platform_name"`
	Success      bool      `ch:"success"`
	Skipped      bool      `ch:"skipped"`
	HTTPStatus   uint16    `ch:"http_status"`
	TraceID      string    `ch:"trace_id"`
	Error        string    `ch:"error"`
	DurationMS   uint32    `ch:"duration_ms"`
	EventTime    time.Time `ch:"event_time"`
	ServerTime   time.Time `ch:"server_time"`
}

// deliveriesFromService flattens reports into one row per platform.
func deliveriesFromService(reports []domain.DeliveryReport) []delivery {
	rows := make([]delivery, 0, len(reports)*len(domain.Platforms))
	for _, r := range reports {
		for _, p := range r.Platforms {
			rows = append(rows, delivery{
				ReportID:     r.ID,
				EventID:      r.EventID.String(),
				EventName:    r.EventName,
				Status:       string(r.Status),
				Platform:     string(p.Platform),
				PlatformName: p.EventName,
				Success:      p.Success,
				Skipped:      p.Skipped,
				HTTPStatus:   uint16(p.HTTPStatus),
				TraceID:      p.TraceID,
				Error:        p.Error,
				DurationMS:   uint32(p.Duration.Milliseconds()),
				EventTime:    r.EventTime.UTC(),
				ServerTime:   r.ServerTime.UTC(),
			})
		}
	}
	return rows
}
