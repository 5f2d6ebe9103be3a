package pii

import (
	"strings"
	"unicode"
)

// PhoneRule describes one deployment's mobile numbering plan. A bare local
// mobile number (optionally led by the trunk digit) gets the country code
// prepended so that "0555123456" and "+966555123456" hash identically.
type PhoneRule struct {
	CountryCode      string `envconfig:"COUNTRY_CODE" validate:"omitempty,numeric"`
	TrunkPrefix      string `envconfig:"TRUNK_PREFIX" default:"0" validate:"omitempty,numeric"`
	MobilePrefix     string `envconfig:"MOBILE_PREFIX" validate:"omitempty,numeric"`
	SubscriberLength int    `envconfig:"SUBSCRIBER_LENGTH" validate:"gte=0,lte=15"`
}

// Enabled is false when no country code is configured; digits then pass as is.
func (r PhoneRule) Enabled() bool {
	return r.CountryCode != "" && r.SubscriberLength > 0
}

// Apply expects a digit-only string.
func (r PhoneRule) Apply(digits string) string {
	if !r.Enabled() || digits == "" {
		return digits
	}

	if intl := "00" + r.CountryCode; strings.HasPrefix(digits, intl) {
		return digits[2:]
	}

	national := digits
	if r.TrunkPrefix != "" && len(digits) == len(r.TrunkPrefix)+r.SubscriberLength &&
		strings.HasPrefix(digits, r.TrunkPrefix) {
		national = digits[len(r.TrunkPrefix):]
	}

	if len(national) == r.SubscriberLength && strings.HasPrefix(national, r.MobilePrefix) {
		return r.CountryCode + national
	}
	return digits
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
