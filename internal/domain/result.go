package domain

import "time"

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// PlatformResult is the outcome of one platform call.
type PlatformResult struct {
	Platform        Platform      `json:"platform"`
	Success         bool          `json:"success"`
	Skipped         bool          `json:"skipped,omitempty"`
	HTTPStatus      int           `json:"http_status,omitempty"`
	PlatformEventID string        `json:"platform_event_id,omitempty"`
	EventName       string        `json:"event_name,omitempty"`
	TraceID         string        `json:"trace_id,omitempty"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration_ns,omitempty"`
	Err             error         `json:"-"`
}

type DispatchResult struct {
	EventID EventID          `json:"event_id"`
	Status  Status           `json:"status"`
	Results []PlatformResult `json:"results"`
}

// OK is true when at least one configured platform accepted the event.
func (r DispatchResult) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

func (r DispatchResult) Result(p Platform) (PlatformResult, bool) {
	for _, res := range r.Results {
		if res.Platform == p {
			return res, true
		}
	}
	return PlatformResult{}, false
}

// Aggregate derives the overall status; skipped platforms are not counted.
func Aggregate(results []PlatformResult) Status {
	var configured, succeeded int
	for _, r := range results {
		if r.Skipped {
			continue
		}
		configured++
		if r.Success {
			succeeded++
		}
	}
	switch {
	case configured == 0 || succeeded == 0:
		return StatusFailed
	case succeeded == configured:
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// DeliveryReport is the PII-free record of one dispatch kept for monitoring.
type DeliveryReport struct {
	ID         string           `json:"id"`
	EventID    EventID          `json:"event_id"`
	EventName  string           `json:"event_name"`
	Status     Status           `json:"status"`
	EventTime  time.Time        `json:"event_time"`
	ServerTime time.Time        `json:"server_time"`
	Platforms  []PlatformResult `json:"platforms"`
}

// ReportBatch groups the reports queued under one key, the event id.
type ReportBatch struct {
	ID      string           `json:"id"`
	Reports []DeliveryReport `json:"reports"`
}
