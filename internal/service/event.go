package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/identity"
	"github.com/leshachaplin/capirelay/internal/platform"
)

type Conversion interface {
	Track(ctx context.Context, action domain.UserAction, platforms ...domain.Platform) (domain.DispatchResult, error)
	Platforms() []PlatformStatus
}

type PlatformStatus struct {
	Platform domain.Platform `json:"platform"`
	Enabled  bool            `json:"enabled"`
	Missing  []string        `json:"missing,omitempty"`
}

// Track forwards one user action to the given platforms, or to all of them
// when none are named. A *domain.ValidationError means nothing was sent.
func (s *Service) Track(
	ctx context.Context,
	action domain.UserAction,
	platforms ...domain.Platform,
) (domain.DispatchResult, error) {
	if strings.TrimSpace(action.EventName) == "" {
		return domain.DispatchResult{Status: domain.StatusFailed}, &domain.ValidationError{
			Event:  action.EventName,
			Reason: "event name is required",
		}
	}
	if !action.UserData.HasDurableIdentifier() {
		return domain.DispatchResult{Status: domain.StatusFailed}, &domain.ValidationError{
			Event:  action.EventName,
			Reason: "at least one of email, phone, external_id or a click id is required",
		}
	}

	ts := action.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	var existingID *string
	if action.EventID != "" {
		existingID = &action.EventID
	}

	core := domain.ConversionEventCore{
		EventID:        s.ids.Generate(action.EventName, identity.SeedFor(ts, action.UserData), existingID),
		EventName:      strings.TrimSpace(action.EventName),
		UserData:       action.UserData,
		CustomData:     action.CustomData.Clone(),
		EventSourceURL: action.EventSourceURL,
		Referrer:       action.Referrer,
		Timestamp:      ts,
		TestMode:       action.TestMode,
	}

	res, err := s.dispatcher.Dispatch(ctx, core, s.selectAdapters(platforms))
	if err != nil {
		return res, err
	}

	s.logger.Info().
		Str("event_id", res.EventID.String()).
		Str("event_name", core.EventName).
		Str("status", string(res.Status)).
		Msg("Event dispatched.")

	batch := domain.ReportBatch{
		ID:      res.EventID.String(),
		Reports: []domain.DeliveryReport{newReport(core, res, s.now())},
	}
	go s.reportPool.Process(batch)

	return res, nil
}

func (s *Service) Platforms() []PlatformStatus {
	out := make([]PlatformStatus, 0, len(s.adapters))
	for _, a := range s.adapters {
		status := PlatformStatus{Platform: a.Platform(), Enabled: true}
		if err := a.Enabled(); err != nil {
			status.Enabled = false
			var cerr *domain.ConfigurationError
			if errors.As(err, &cerr) {
				status.Missing = cerr.Missing
			}
		}
		out = append(out, status)
	}
	return out
}

func (s *Service) selectAdapters(platforms []domain.Platform) []platform.Adapter {
	if len(platforms) == 0 {
		return s.adapters
	}
	want := make(map[domain.Platform]bool, len(platforms))
	for _, p := range platforms {
		want[p] = true
	}
	out := make([]platform.Adapter, 0, len(platforms))
	for _, a := range s.adapters {
		if want[a.Platform()] {
			out = append(out, a)
		}
	}
	return out
}

// newReport copies outcomes only; user data never reaches a report.
func newReport(core domain.ConversionEventCore, res domain.DispatchResult, serverTime time.Time) domain.DeliveryReport {
	platforms := make([]domain.PlatformResult, len(res.Results))
	copy(platforms, res.Results)
	for i := range platforms {
		platforms[i].Err = nil
	}
	return domain.DeliveryReport{
		ID:         uuid.NewString(),
		EventID:    res.EventID,
		EventName:  core.EventName,
		Status:     res.Status,
		EventTime:  core.Timestamp,
		ServerTime: serverTime,
		Platforms:  platforms,
	}
}
