package platform

import (
	"context"
	"strings"

	"github.com/leshachaplin/capirelay/internal/domain"
)

// Normalizer turns raw visitor data into the per-platform hashed record.
type Normalizer interface {
	Normalize(raw domain.RawUserData, platform domain.Platform) domain.NormalizedUserData
}

// Payload is one adapted, encoded request body ready to be sent.
type Payload struct {
	Platform  domain.Platform
	EventID   domain.EventID
	EventName string
	Presence  domain.Presence
	Body      []byte
}

// Delivery is what a single platform call produced.
type Delivery struct {
	HTTPStatus int
	TraceID    string
	Err        error
}

// Adapter maps the canonical event onto one platform's wire schema. Adapt
// must be a pure transform of core: no shared mutable state between calls.
type Adapter interface {
	Platform() domain.Platform
	// Enabled returns a *domain.ConfigurationError when credentials are missing.
	Enabled() error
	Adapt(core domain.ConversionEventCore) (Payload, error)
	Send(ctx context.Context, payload Payload) Delivery
}

// Table is the closed event-name vocabulary of one platform, keyed by the
// trimmed upper-cased internal name or synonym.
type Table struct {
	platform domain.Platform
	names    map[string]string
}

func NewTable(platform domain.Platform, names map[string]string) Table {
	t := Table{
		platform: platform,
		names:    make(map[string]string, len(names)),
	}
	for k, v := range names {
		t.names[tableKey(k)] = v
	}
	return t
}

func (t Table) Lookup(eventName string) (string, error) {
	if name, ok := t.names[tableKey(eventName)]; ok {
		return name, nil
	}
	return "", &domain.ValidationError{
		Platform: t.platform,
		Event:    eventName,
		Reason:   "unsupported event name",
	}
}

func tableKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// RequireAny fails with a ValidationError unless one of fields is present.
func RequireAny(p domain.Platform, eventName string, u domain.NormalizedUserData, fields ...domain.Field) error {
	if u.HasAny(fields...) {
		return nil
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return &domain.ValidationError{
		Platform: p,
		Event:    eventName,
		Reason:   "at least one of " + strings.Join(names, ", ") + " is required",
	}
}

// CheckCredentials reports a ConfigurationError naming every empty credential.
func CheckCredentials(p domain.Platform, pixelID, accessToken string) error {
	var missing []string
	if strings.TrimSpace(pixelID) == "" {
		missing = append(missing, "pixel_id")
	}
	if strings.TrimSpace(accessToken) == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{Platform: p, Missing: missing}
	}
	return nil
}
