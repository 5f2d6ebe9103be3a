package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v17.0"
)

type Config struct {
	PixelID           string `envconfig:"PIXEL_ID"`
	AccessToken       string `envconfig:"ACCESS_TOKEN"`
	APIVersion        string `envconfig:"API_VERSION" default:"v17.0"`
	TestEventCode     string `envconfig:"TEST_EVENT_CODE"`
	BaseURL           string `envconfig:"BASE_URL" default:"https://graph.facebook.com" validate:"omitempty,url"`
	AllowCustomEvents bool   `envconfig:"ALLOW_CUSTOM_EVENTS"`
	DefaultCurrency   string `envconfig:"DEFAULT_CURRENCY" validate:"omitempty,len=3,alpha"`
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
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	return &Adapter{
		cfg:        cfg,
		normalizer: normalizer,
		client:     client,
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.Meta
}

func (a *Adapter) Enabled() error {
	return platform.CheckCredentials(domain.Meta, a.cfg.PixelID, a.cfg.AccessToken)
}

type request struct {
	Data          []event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

type event struct {
	EventName      string            `json:"event_name"`
	EventTime      int64             `json:"event_time"`
	EventSourceURL string            `json:"event_source_url,omitempty"`
	ActionSource   string            `json:"action_source"`
	UserData       map[string]string `json:"user_data"`
	CustomData     map[string]any    `json:"custom_data,omitempty"`
	EventID        string            `json:"event_id"`
	OptOut         bool              `json:"opt_out"`
}

// wire names of normalized fields inside user_data.
var userDataKeys = map[domain.Field]string{
	domain.FieldEmail:       "em",
	domain.FieldPhone:       "ph",
	domain.FieldFirstName:   "fn",
	domain.FieldLastName:    "ln",
	domain.FieldExternalID:  "external_id",
	domain.FieldCity:        "ct",
	domain.FieldState:       "st",
	domain.FieldZip:         "zp",
	domain.FieldCountry:     "country",
	domain.FieldGender:      "ge",
	domain.FieldDateOfBirth: "db",
	domain.FieldIP:          "client_ip_address",
	domain.FieldUserAgent:   "client_user_agent",
	domain.FieldFBC:         "fbc",
	domain.FieldFBP:         "fbp",
}

func (a *Adapter) Adapt(core domain.ConversionEventCore) (platform.Payload, error) {
	name, err := mapEventName(core.EventName, a.cfg.AllowCustomEvents)
	if err != nil {
		return platform.Payload{}, err
	}

	user := a.normalizer.Normalize(core.UserData, domain.Meta)
	if err = platform.RequireAny(domain.Meta, core.EventName, user,
		domain.FieldEmail, domain.FieldPhone, domain.FieldExternalID, domain.FieldFBC, domain.FieldFBP,
	); err != nil {
		return platform.Payload{}, err
	}

	userData := make(map[string]string, len(userDataKeys))
	for f, key := range userDataKeys {
		if v, ok := user.Get(f); ok {
			userData[key] = v
		}
	}

	req := request{
		Data: []event{{
			EventName:      name,
			EventTime:      core.Timestamp.Unix(),
			EventSourceURL: core.EventSourceURL,
			ActionSource:   "website",
			UserData:       userData,
			CustomData:     a.customData(core.CustomData),
			EventID:        core.EventID.String(),
		}},
	}
	if a.cfg.TestEventCode != "" && (core.TestMode || core.IsLocal()) {
		req.TestEventCode = a.cfg.TestEventCode
	}

	body, err := json.Marshal(req)
	if err != nil {
		return platform.Payload{}, &domain.ValidationError{Platform: domain.Meta, Event: core.EventName, Reason: "encode payload: " + err.Error()}
	}

	return platform.Payload{
		Platform:  domain.Meta,
		EventID:   core.EventID,
		EventName: name,
		Presence:  user.Presence(),
		Body:      body,
	}, nil
}

// customData forwards the producer's attributes as they are, adding the
// default currency when a value has none.
func (a *Adapter) customData(in domain.CustomData) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := in.Clone()
	if _, hasValue := out["value"]; hasValue && a.cfg.DefaultCurrency != "" {
		if _, ok := out.String("currency"); !ok {
			out["currency"] = strings.ToUpper(a.cfg.DefaultCurrency)
		}
	}
	return out
}

type response struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
	Error          *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (a *Adapter) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		strings.TrimRight(a.cfg.BaseURL, "/"),
		a.cfg.APIVersion,
		url.PathEscape(a.cfg.PixelID),
		url.QueryEscape(a.cfg.AccessToken),
	)
}

func (a *Adapter) Send(ctx context.Context, payload platform.Payload) platform.Delivery {
	status, body, err := platform.Post(ctx, a.client, domain.Meta, platform.Request{
		URL:  a.endpoint(),
		Body: payload.Body,
	})
	if err != nil {
		return platform.Delivery{HTTPStatus: status, Err: err}
	}

	var resp response
	_ = json.Unmarshal(body, &resp)

	d := platform.Delivery{HTTPStatus: status, TraceID: resp.FBTraceID}
	switch {
	case resp.Error != nil:
		if d.TraceID == "" {
			d.TraceID = resp.Error.FBTraceID
		}
		d.Err = &domain.PlatformRejection{
			Platform:   domain.Meta,
			StatusCode: status,
			Detail:     fmt.Sprintf("%s (%s, code %d)", resp.Error.Message, resp.Error.Type, resp.Error.Code),
		}
	case status < 200 || status > 299:
		d.Err = &domain.PlatformRejection{Platform: domain.Meta, StatusCode: status, Detail: platform.Snippet(body)}
	}
	return d
}
