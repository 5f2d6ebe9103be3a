package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leshachaplin/capirelay/internal/apierror"
	"github.com/leshachaplin/capirelay/internal/domain"
)

const maxBodySize = 64 << 10

const (
	// Values above this are read as unix milliseconds (Date.now()).
	millisThreshold = 1e12

	maxEventAge    = 7 * 24 * time.Hour
	maxEventSkew   = time.Hour
	eventTimeField = "eventTime"
)

type eventRequest struct {
	EventName      string            `json:"eventName" validate:"required,max=100"`
	EventID        string            `json:"eventId" validate:"omitempty,max=128"`
	EventSourceURL string            `json:"eventSourceUrl" validate:"omitempty,max=2048"`
	EventTime      int64             `json:"eventTime" validate:"gte=0"`
	TestMode       bool              `json:"testMode"`
	Platforms      []string          `json:"platforms" validate:"omitempty,max=3,dive,required"`
	UserData       userDataRequest   `json:"userData"`
	CustomData     domain.CustomData `json:"customData"`
}

// userDataRequest also accepts the field names older Snapchat pixel
// snippets post.
type userDataRequest struct {
	domain.RawUserData

	UserEmail       string `json:"user_email"`
	UserPhoneNumber string `json:"user_phone_number"`
	UUIDC1          string `json:"uuid_c1"`
}

func (u userDataRequest) toRaw() domain.RawUserData {
	raw := u.RawUserData
	if raw.Email == "" {
		raw.Email = u.UserEmail
	}
	if raw.Phone == "" {
		raw.Phone = u.UserPhoneNumber
	}
	if raw.ScCookie1 == "" {
		raw.ScCookie1 = u.UUIDC1
	}
	return raw
}

func (e eventRequest) toAction(now time.Time) (domain.UserAction, error) {
	action := domain.UserAction{
		EventName:      e.EventName,
		UserData:       e.UserData.toRaw(),
		CustomData:     e.CustomData,
		EventSourceURL: e.EventSourceURL,
		EventID:        e.EventID,
		TestMode:       e.TestMode,
	}
	if e.EventTime > 0 {
		ts, err := eventTimestamp(e.EventTime, now)
		if err != nil {
			return action, err
		}
		action.Timestamp = ts
	}
	return action, nil
}

// eventTimestamp accepts unix seconds or milliseconds and keeps the result
// inside the window the platforms accept.
func eventTimestamp(v int64, now time.Time) (time.Time, error) {
	ts := time.Unix(v, 0)
	if v > millisThreshold {
		ts = time.UnixMilli(v)
	}

	if ts.After(now.Add(maxEventSkew)) {
		return time.Time{}, apierror.NewAPIError("event time is in the future", http.StatusBadRequest).
			WithDetail(eventTimeField, ts.UTC().Format(time.RFC3339))
	}
	if ts.Before(now.Add(-maxEventAge)) {
		return time.Time{}, apierror.NewAPIError("event time is too old", http.StatusBadRequest).
			WithDetail(eventTimeField, ts.UTC().Format(time.RFC3339))
	}
	return ts, nil
}

// Events is the shared entry point; the body may narrow the platforms.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.track(w, r)
}

// PlatformEvents serves the single-platform routes.
func (h *Handler) PlatformEvents(p domain.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.track(w, r, p)
	}
}

func (h *Handler) Platforms(w http.ResponseWriter, r *http.Request) {
	if err := encodeJSONResponse(w, http.StatusOK, h.conversion.Platforms()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode platforms.")
	}
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request, fixed ...domain.Platform) {
	req, err := h.decodeEvent(w, r)
	if err != nil {
		h.error(err, w)
		return
	}

	platforms := fixed
	if len(platforms) == 0 {
		if platforms, err = parsePlatforms(req.Platforms); err != nil {
			h.error(err, w)
			return
		}
	}

	now := h.now()
	action, err := req.toAction(now)
	if err != nil {
		h.error(err, w)
		return
	}
	enrich(r, &action, now)

	res, err := h.conversion.Track(r.Context(), action, platforms...)
	if err != nil {
		h.error(err, w)
		return
	}

	if err = encodeJSONResponse(w, http.StatusOK, res); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode dispatch result.")
	}
}

func (h *Handler) decodeEvent(w http.ResponseWriter, r *http.Request) (eventRequest, error) {
	var req eventRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		return req, apierror.NewAPIError("malformed request body", http.StatusBadRequest).
			WithDetail("error", err.Error())
	}

	if err := h.validate.Struct(req); err != nil {
		apiErr := apierror.NewAPIError("invalid request", http.StatusBadRequest)
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				apiErr = apiErr.WithDetail(fe.Field(), fe.Tag())
			}
		}
		return req, apiErr
	}
	return req, nil
}

func parsePlatforms(names []string) ([]domain.Platform, error) {
	platforms := make([]domain.Platform, 0, len(names))
	for _, name := range names {
		p, ok := domain.ParsePlatform(name)
		if !ok {
			return nil, apierror.NewAPIError("unknown platform", http.StatusBadRequest).
				WithDetail("platform", name)
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}
