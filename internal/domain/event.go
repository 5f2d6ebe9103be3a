package domain

import (
	"strconv"
	"strings"
	"time"
)

type Platform string

const (
	Meta     Platform = "meta"
	Snapchat Platform = "snapchat"
	TikTok   Platform = "tiktok"
)

// Platforms lists every supported sink in dispatch order.
var Platforms = []Platform{Meta, Snapchat, TikTok}

func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Meta, Snapchat, TikTok:
		return p, true
	case "facebook", "fb":
		return Meta, true
	}
	return "", false
}

// EventID is shared by the pixel fire and the server fire of one user action.
type EventID string

func (id EventID) String() string {
	return string(id)
}

// RawUserData is the unvalidated visitor data handed over by a producer.
// It lives only for the duration of one pipeline invocation.
type RawUserData struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Name        string `json:"name,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zipCode,omitempty"`
	Country     string `json:"country,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`

	FBC       string `json:"fbc,omitempty"`
	FBP       string `json:"fbp,omitempty"`
	ScClickID string `json:"sc_click_id,omitempty"`
	ScCookie1 string `json:"sc_cookie1,omitempty"`
	TTCLID    string `json:"ttclid,omitempty"`
	TTP       string `json:"ttp,omitempty"`

	IP        string `json:"client_ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// HasDurableIdentifier reports whether the visitor can be matched at all:
// an email, a phone, an external id or any platform click/cookie id.
func (u RawUserData) HasDurableIdentifier() bool {
	for _, v := range []string{
		u.Email, u.Phone, u.ExternalID,
		u.FBC, u.FBP, u.ScClickID, u.ScCookie1, u.TTCLID, u.TTP,
	} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// CustomData holds free-form business attributes (value, currency, content ids...).
type CustomData map[string]any

func (c CustomData) Clone() CustomData {
	out := make(CustomData, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c CustomData) String(key string) (string, bool) {
	return scalarString(c[key])
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func (c CustomData) Float(key string) (float64, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Strings returns the value under key as a list, wrapping scalars.
func (c CustomData) Strings(key string) ([]string, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, false
	}
	switch t := v.(type) {
	case []string:
		return t, len(t) > 0
	case []any:
		out := make([]string, 0, len(t))
		for i := range t {
			if s, ok := scalarString(t[i]); ok {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	}
	if s, ok := c.String(key); ok {
		return []string{s}, true
	}
	return nil, false
}

// UserAction is what a page or form producer hands to the pipeline.
type UserAction struct {
	EventName      string
	UserData       RawUserData
	CustomData     CustomData
	EventSourceURL string
	Referrer       string
	Timestamp      time.Time
	// EventID is set when the browser already generated one for its pixel call.
	EventID  string
	TestMode bool
}

// ConversionEventCore is the immutable snapshot every adapter transforms.
type ConversionEventCore struct {
	EventID        EventID
	EventName      string
	UserData       RawUserData
	CustomData     CustomData
	EventSourceURL string
	Referrer       string
	Timestamp      time.Time
	TestMode       bool
}

// IsLocal reports whether the event originates from a development host.
func (c ConversionEventCore) IsLocal() bool {
	return strings.Contains(c.EventSourceURL, "localhost") || strings.Contains(c.EventSourceURL, "127.0.0.1")
}

// ConversionEvent is the per-platform view of one core event.
type ConversionEvent struct {
	EventID           EventID
	PlatformEventName string
	UserData          NormalizedUserData
	CustomData        CustomData
	Timestamp         time.Time
}
