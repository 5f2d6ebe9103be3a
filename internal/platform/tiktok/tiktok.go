package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

const (
	defaultBaseURL = "https://business-api.tiktok.com"
	trackPath      = "/open_api/v1.3/event/track/"
)

type Config struct {
	PixelID       string `envconfig:"PIXEL_ID"`
	AccessToken   string `envconfig:"ACCESS_TOKEN"`
	TestEventCode string `envconfig:"TEST_EVENT_CODE"`
	BaseURL       string `envconfig:"BASE_URL" default:"https://business-api.tiktok.com" validate:"omitempty,url"`
}

type Adapter struct {
	cfg        Config
	normalizer platform.Normalizer
	client     *retryablehttp.Client
}

func New(cfg Config, normalizer platform.Normalizer, client *retryablehttp.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{
		cfg:        cfg,
		normalizer: normalizer,
		client:     client,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.TikTok
}

func (a *Adapter) Enabled() error {
	return platform.CheckCredentials(domain.TikTok, a.cfg.PixelID, a.cfg.AccessToken)
}

type request struct {
	PixelCode     string  `json:"pixel_code"`
	Data          []event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

type event struct {
	Event      string         `json:"event"`
	EventID    string         `json:"event_id"`
	Timestamp  string         `json:"timestamp"`
	Context    eventContext   `json:"context"`
	Properties map[string]any `json:"properties,omitempty"`
}

type eventContext struct {
	User      user   `json:"user"`
	Page      page   `json:"page"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type user struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	TTCLID     string `json:"ttclid,omitempty"`
	TTP        string `json:"ttp,omitempty"`
}

type page struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer,omitempty"`
}

func (a *Adapter) Adapt(core domain.ConversionEventCore) (platform.Payload, error) {
	name, err := eventNames.Lookup(core.EventName)
	if err != nil {
		return platform.Payload{}, err
	}

	u := a.normalizer.Normalize(core.UserData, domain.TikTok)
	if err = platform.RequireAny(domain.TikTok, core.EventName, u,
		domain.FieldEmail, domain.FieldPhone, domain.FieldExternalID, domain.FieldTTCLID, domain.FieldTTP,
	); err != nil {
		return platform.Payload{}, err
	}

	ip := u.Passthrough[domain.FieldIP]
	if ip == "127.0.0.1" {
		ip = ""
	}

	req := request{
		PixelCode: a.cfg.PixelID,
		Data: []event{{
			Event:     name,
			EventID:   core.EventID.String(),
			Timestamp: core.Timestamp.UTC().Format(time.RFC3339),
			Context: eventContext{
				User: user{
					Email:      u.Hashed[domain.FieldEmail],
					Phone:      u.Hashed[domain.FieldPhone],
					ExternalID: u.Hashed[domain.FieldExternalID],
					TTCLID:     u.Passthrough[domain.FieldTTCLID],
					TTP:        u.Passthrough[domain.FieldTTP],
				},
				Page: page{
					URL:      core.EventSourceURL,
					Referrer: core.Referrer,
				},
				UserAgent: u.Passthrough[domain.FieldUserAgent],
				IP:        ip,
			},
			Properties: properties(name, core.CustomData),
		}},
	}
	if a.cfg.TestEventCode != "" && (core.TestMode || core.IsLocal()) {
		req.TestEventCode = a.cfg.TestEventCode
	}

	body, err := json.Marshal(req)
	if err != nil {
		return platform.Payload{}, &domain.ValidationError{Platform: domain.TikTok, Event: core.EventName, Reason: "encode payload: " + err.Error()}
	}

	return platform.Payload{
		Platform:  domain.TikTok,
		EventID:   core.EventID,
		EventName: name,
		Presence:  u.Presence(),
		Body:      body,
	}, nil
}

func properties(eventName string, in domain.CustomData) map[string]any {
	out := make(map[string]any)

	copyFloat(out, in, "value")
	for _, key := range []string{"currency", "content_id", "content_type", "content_name"} {
		if v, ok := in.String(key); ok {
			out[key] = v
		}
	}

	switch eventName {
	case viewContent:
		copyString(out, in, "content_category")
	case search:
		copyString(out, in, "search_string")
	case lead:
		copyString(out, in, "content_category")
		copyFloat(out, in, "price")
		copyString(out, in, "description")
	case purchase:
		copyString(out, in, "order_id")
		if v, ok := in.Strings("content_ids"); ok {
			out["content_ids"] = v
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// copyFloat leaves out values that are not numbers rather than sending 0.
func copyFloat(dst map[string]any, src domain.CustomData, key string) {
	if v, ok := src.Float(key); ok {
		dst[key] = v
	}
}

func copyString(dst map[string]any, src domain.CustomData, key string) {
	if v, ok := src.String(key); ok {
		dst[key] = v
	}
}

type response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (a *Adapter) Send(ctx context.Context, payload platform.Payload) platform.Delivery {
	status, body, err := platform.Post(ctx, a.client, domain.TikTok, platform.Request{
		URL:    strings.TrimRight(a.cfg.BaseURL, "/") + trackPath,
		Header: http.Header{"Access-Token": []string{a.cfg.AccessToken}},
		Body:   payload.Body,
	})
	if err != nil {
		return platform.Delivery{HTTPStatus: status, Err: err}
	}

	var resp response
	decodeErr := json.Unmarshal(body, &resp)

	d := platform.Delivery{HTTPStatus: status, TraceID: resp.RequestID}
	switch {
	case status < 200 || status > 299:
		d.Err = &domain.PlatformRejection{Platform: domain.TikTok, StatusCode: status, Detail: platform.Snippet(body)}
	case decodeErr != nil:
		d.Err = &domain.PlatformRejection{Platform: domain.TikTok, StatusCode: status, Detail: "undecodable response: " + platform.Snippet(body)}
	// TikTok answers 200 with a non-zero business code on rejection.
	case resp.Code != 0:
		d.Err = &domain.PlatformRejection{Platform: domain.TikTok, StatusCode: status, Detail: fmt.Sprintf("code %d: %s", resp.Code, resp.Message)}
	}
	return d
}
