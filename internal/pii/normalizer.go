package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/leshachaplin/capirelay/internal/domain"
)

type Config struct {
	Phone PhoneRule `envconfig:"PHONE"`
	// LocalPhonePlatforms receive phone digits without the country-code rule.
	LocalPhonePlatforms []string `envconfig:"PHONE_LOCAL_PLATFORMS"`
}

type Normalizer struct {
	phone      PhoneRule
	localPhone map[domain.Platform]bool
	logger     zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Normalizer {
	local := make(map[domain.Platform]bool, len(cfg.LocalPhonePlatforms))
	for _, name := range cfg.LocalPhonePlatforms {
		if p, ok := domain.ParsePlatform(name); ok {
			local[p] = true
		}
	}
	return &Normalizer{
		phone:      cfg.Phone,
		localPhone: local,
		logger:     logger.With().Str("component", "pii").Logger(),
	}
}

// Hash is SHA-256 over the UTF-8 bytes, hex-encoded lower case.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

type field struct {
	name      domain.Field
	raw       string
	normalize func(string) string
}

// Normalize builds the per-platform record. Every field is processed on its
// own: empty input is omitted and a field that cannot be encoded is dropped
// with a warning without touching its siblings.
func (n *Normalizer) Normalize(raw domain.RawUserData, platform domain.Platform) domain.NormalizedUserData {
	first, last := raw.FirstName, raw.LastName
	if strings.TrimSpace(first) == "" && strings.TrimSpace(last) == "" && raw.Name != "" {
		first, last = splitName(raw.Name)
	}

	hashed := []field{
		{domain.FieldEmail, raw.Email, lower},
		{domain.FieldPhone, raw.Phone, n.phoneFor(platform)},
		{domain.FieldFirstName, first, lower},
		{domain.FieldLastName, last, lower},
		{domain.FieldExternalID, raw.ExternalID, lower},
		{domain.FieldCity, raw.City, compact},
		{domain.FieldState, raw.State, lower},
		{domain.FieldZip, raw.Zip, compact},
		{domain.FieldCountry, raw.Country, lower},
		{domain.FieldGender, raw.Gender, gender},
		{domain.FieldDateOfBirth, raw.DateOfBirth, dateOfBirth},
	}
	passthrough := []field{
		{domain.FieldFBC, raw.FBC, strings.TrimSpace},
		{domain.FieldFBP, raw.FBP, strings.TrimSpace},
		{domain.FieldScClickID, raw.ScClickID, strings.TrimSpace},
		{domain.FieldScCookie1, raw.ScCookie1, strings.TrimSpace},
		{domain.FieldTTCLID, raw.TTCLID, strings.TrimSpace},
		{domain.FieldTTP, raw.TTP, strings.TrimSpace},
		{domain.FieldIP, raw.IP, strings.TrimSpace},
		{domain.FieldUserAgent, raw.UserAgent, strings.TrimSpace},
	}

	out := domain.NormalizedUserData{
		Hashed:      make(map[domain.Field]string, len(hashed)),
		Passthrough: make(map[domain.Field]string, len(passthrough)),
	}
	for _, f := range hashed {
		if v, ok := n.value(platform, f); ok {
			out.Hashed[f.name] = Hash(v)
		}
	}
	for _, f := range passthrough {
		if v, ok := n.value(platform, f); ok {
			out.Passthrough[f.name] = v
		}
	}
	return out
}

func (n *Normalizer) value(platform domain.Platform, f field) (string, bool) {
	if f.raw == "" {
		return "", false
	}
	if !utf8.ValidString(f.raw) {
		n.logger.Warn().
			Str("platform", string(platform)).
			Str("field", string(f.name)).
			Msg("Dropping user data field: invalid UTF-8.")
		return "", false
	}
	v := f.normalize(f.raw)
	return v, v != ""
}

func (n *Normalizer) phoneFor(platform domain.Platform) func(string) string {
	if n.localPhone[platform] {
		return digitsOnly
	}
	return func(s string) string {
		return n.phone.Apply(digitsOnly(s))
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func compact(s string) string {
	return stripSpaces(lower(s))
}

func gender(s string) string {
	switch g := lower(s); {
	case strings.HasPrefix(g, "m"):
		return "m"
	case strings.HasPrefix(g, "f"):
		return "f"
	}
	return ""
}

// dateOfBirth keeps YYYYMMDD only.
func dateOfBirth(s string) string {
	d := digitsOnly(s)
	if len(d) != 8 {
		return ""
	}
	return d
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
