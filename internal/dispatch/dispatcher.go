package dispatch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

const defaultTimeout = 8 * time.Second

type Config struct {
	Timeout time.Duration `envconfig:"TIMEOUT" default:"8s" validate:"gte=0"`
}

// Dispatcher fans one event out to every enabled platform and joins the outcomes.
type Dispatcher struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch returns a non-nil error only when every enabled platform rejected
// the event with a *domain.ValidationError; nothing is sent then. A platform
// that rejects an event its siblings accept is reported as failed inside the
// result, like every other per-platform failure.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	core domain.ConversionEventCore,
	adapters []platform.Adapter,
) (domain.DispatchResult, error) {
	results := make([]domain.PlatformResult, len(adapters))
	payloads := make([]*platform.Payload, len(adapters))

	var (
		enabled  int
		rejected []*domain.ValidationError
	)
	for i, a := range adapters {
		if err := a.Enabled(); err != nil {
			results[i] = domain.PlatformResult{
				Platform: a.Platform(),
				Skipped:  true,
				Error:    err.Error(),
				Err:      err,
			}
			d.logger.Debug().
				Str("platform", string(a.Platform())).
				Str("event_id", core.EventID.String()).
				Err(err).
				Msg("Platform skipped.")
			continue
		}
		enabled++

		p, err := a.Adapt(core)
		if err != nil {
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				verr = &domain.ValidationError{Platform: a.Platform(), Event: core.EventName, Reason: err.Error()}
			}
			d.logger.Warn().
				Str("platform", string(a.Platform())).
				Str("event_id", core.EventID.String()).
				Str("event_name", core.EventName).
				Err(verr).
				Msg("Event rejected before dispatch.")

			rejected = append(rejected, verr)
			results[i] = domain.PlatformResult{
				Platform:        a.Platform(),
				PlatformEventID: core.EventID.String(),
				Error:           verr.Error(),
				Err:             verr,
			}
			continue
		}
		payloads[i] = &p
	}

	// An event every enabled platform refuses is invalid as a whole.
	if enabled > 0 && len(rejected) == enabled {
		return domain.DispatchResult{EventID: core.EventID, Status: domain.StatusFailed}, rejected[0]
	}

	var group errgroup.Group
	for i := range adapters {
		if payloads[i] == nil {
			continue
		}
		i := i
		group.Go(func() error {
			results[i] = d.send(ctx, adapters[i], *payloads[i])
			return nil
		})
	}
	_ = group.Wait()

	return domain.DispatchResult{
		EventID: core.EventID,
		Status:  domain.Aggregate(results),
		Results: results,
	}, nil
}

func (d *Dispatcher) send(ctx context.Context, a platform.Adapter, p platform.Payload) domain.PlatformResult {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	delivery := a.Send(callCtx, p)

	res := domain.PlatformResult{
		Platform:        a.Platform(),
		Success:         delivery.Err == nil,
		HTTPStatus:      delivery.HTTPStatus,
		PlatformEventID: p.EventID.String(),
		EventName:       p.EventName,
		TraceID:         delivery.TraceID,
		Duration:        time.Since(start),
		Err:             delivery.Err,
	}
	if delivery.Err != nil {
		res.Error = delivery.Err.Error()
	}

	d.logCall(res, p.Presence)
	return res
}

// logCall writes the one entry per platform call. Only presence flags of
// user data are logged, never values or hashes.
func (d *Dispatcher) logCall(res domain.PlatformResult, presence domain.Presence) {
	event := d.logger.Info()
	if res.Err != nil {
		event = d.logger.Warn().Err(res.Err)
	}
	event.
		Str("platform", string(res.Platform)).
		Str("event_id", res.PlatformEventID).
		Str("event_name", res.EventName).
		Int("http_status", res.HTTPStatus).
		Dur("duration", res.Duration).
		Bool("success", res.Success).
		Bool("has_email", presence.Email).
		Bool("has_phone", presence.Phone).
		Bool("has_external_id", presence.ExternalID).
		Bool("has_click_id", presence.ClickID).
		Bool("has_ip", presence.IP).
		Bool("has_user_agent", presence.UserAgent).
		Str("trace_id", res.TraceID).
		Msg("Platform call finished.")
}
