package snapchat

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

const defaultBaseURL = "https://tr.snapchat.com"

type Config struct {
	PixelID     string `envconfig:"PIXEL_ID"`
	AccessToken string `envconfig:"ACCESS_TOKEN"`
	BaseURL     string `envconfig:"BASE_URL" default:"https://tr.snapchat.com" validate:"omitempty,url"`
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
	return domain.Snapchat
}

func (a *Adapter) Enabled() error {
	return platform.CheckCredentials(domain.Snapchat, a.cfg.PixelID, a.cfg.AccessToken)
}

type request struct {
	Data []event `json:"data"`
}

type event struct {
	EventName      string         `json:"event_name"`
	ActionSource   string         `json:"action_source"`
	EventTime      int64          `json:"event_time"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       userData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
	EventID        string         `json:"event_id"`
}

// Identity hashes travel as single-element lists, geo hashes as plain strings.
type userData struct {
	Em              []string `json:"em,omitempty"`
	Ph              []string `json:"ph,omitempty"`
	Fn              []string `json:"fn,omitempty"`
	Ln              []string `json:"ln,omitempty"`
	ExternalID      []string `json:"external_id,omitempty"`
	Country         string   `json:"country,omitempty"`
	St              string   `json:"st,omitempty"`
	Ct              string   `json:"ct,omitempty"`
	Zp              string   `json:"zp,omitempty"`
	Ge              string   `json:"ge,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	UserAgent       string   `json:"user_agent,omitempty"`
	ScClickID       string   `json:"sc_click_id,omitempty"`
	ScCookie1       string   `json:"sc_cookie1,omitempty"`
}

func list(u domain.NormalizedUserData, f domain.Field) []string {
	if v, ok := u.Hashed[f]; ok {
		return []string{v}
	}
	return nil
}

func (a *Adapter) Adapt(core domain.ConversionEventCore) (platform.Payload, error) {
	name, err := eventNames.Lookup(core.EventName)
	if err != nil {
		return platform.Payload{}, err
	}

	user := a.normalizer.Normalize(core.UserData, domain.Snapchat)
	if err = platform.RequireAny(domain.Snapchat, core.EventName, user,
		domain.FieldEmail, domain.FieldPhone, domain.FieldExternalID, domain.FieldScCookie1,
	); err != nil {
		return platform.Payload{}, err
	}

	req := request{
		Data: []event{{
			EventName:      name,
			ActionSource:   "website",
			EventTime:      core.Timestamp.Unix(),
			EventSourceURL: core.EventSourceURL,
			UserData: userData{
				Em:              list(user, domain.FieldEmail),
				Ph:              list(user, domain.FieldPhone),
				Fn:              list(user, domain.FieldFirstName),
				Ln:              list(user, domain.FieldLastName),
				ExternalID:      list(user, domain.FieldExternalID),
				Country:         user.Hashed[domain.FieldCountry],
				St:              user.Hashed[domain.FieldState],
				Ct:              user.Hashed[domain.FieldCity],
				Zp:              user.Hashed[domain.FieldZip],
				Ge:              user.Hashed[domain.FieldGender],
				ClientIPAddress: user.Passthrough[domain.FieldIP],
				UserAgent:       user.Passthrough[domain.FieldUserAgent],
				ScClickID:       user.Passthrough[domain.FieldScClickID],
				ScCookie1:       user.Passthrough[domain.FieldScCookie1],
			},
			CustomData: customData(core.CustomData),
			EventID:    core.EventID.String(),
		}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return platform.Payload{}, &domain.ValidationError{Platform: domain.Snapchat, Event: core.EventName, Reason: "encode payload: " + err.Error()}
	}

	return platform.Payload{
		Platform:  domain.Snapchat,
		EventID:   core.EventID,
		EventName: name,
		Presence:  user.Presence(),
		Body:      body,
	}, nil
}

func customData(in domain.CustomData) map[string]any {
	out := make(map[string]any)

	if v, ok := in.String("value"); ok {
		out["value"] = v
	} else if v, ok = in.String("price"); ok {
		out["value"] = v
	}
	if v, ok := in.String("currency"); ok {
		out["currency"] = strings.ToUpper(v)
	}
	if v, ok := in.Strings("content_ids"); ok {
		out["content_ids"] = v
	} else if v, ok = in.Strings("item_ids"); ok {
		out["content_ids"] = v
	}
	if v, ok := in.String("content_category"); ok {
		out["content_category"] = []string{v}
	} else if v, ok = in.String("item_category"); ok {
		out["content_category"] = []string{v}
	}
	if v, ok := in.Strings("number_items"); ok {
		out["number_items"] = v
	} else if v, ok := in.String("quantity"); ok {
		out["number_items"] = []string{v}
	}
	if v, ok := in.String("order_id"); ok {
		out["order_id"] = v
	} else if v, ok = in.String("transaction_id"); ok {
		out["order_id"] = v
	}
	if v, ok := in.String("content_name"); ok {
		out["content_name"] = v
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

type response struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id"`
}

func (a *Adapter) endpoint() string {
	return fmt.Sprintf("%s/v3/%s/events?access_token=%s",
		strings.TrimRight(a.cfg.BaseURL, "/"),
		url.PathEscape(a.cfg.PixelID),
		url.QueryEscape(a.cfg.AccessToken),
	)
}

func (a *Adapter) Send(ctx context.Context, payload platform.Payload) platform.Delivery {
	status, body, err := platform.Post(ctx, a.client, domain.Snapchat, platform.Request{
		URL:  a.endpoint(),
		Body: payload.Body,
	})
	if err != nil {
		return platform.Delivery{HTTPStatus: status, Err: err}
	}

	var resp response
	_ = json.Unmarshal(body, &resp)

	d := platform.Delivery{HTTPStatus: status, TraceID: resp.RequestID}
	switch {
	case status < 200 || status > 299:
		d.Err = &domain.PlatformRejection{Platform: domain.Snapchat, StatusCode: status, Detail: platform.Snippet(body)}
	case strings.EqualFold(resp.Status, "FAILED") || strings.EqualFold(resp.Status, "INVALID"):
		d.Err = &domain.PlatformRejection{Platform: domain.Snapchat, StatusCode: status, Detail: resp.Reason}
	}
	return d
}
