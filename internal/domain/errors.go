package domain

import (
	"fmt"
	"strings"
)

// ValidationError is the caller's fault and is never retried. It aborts the
// whole dispatch before any payload leaves the process.
type ValidationError struct {
	Platform Platform
	Event    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("invalid event %q: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("%s: invalid event %q: %s", e.Platform, e.Event, e.Reason)
}

// ConfigurationError marks a platform whose credentials are absent; the
// platform is skipped and the others proceed.
type ConfigurationError struct {
	Platform Platform
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: not configured, missing %s", e.Platform, strings.Join(e.Missing, ", "))
}

// TransportError covers network failures and deadlines.
type TransportError struct {
	Platform Platform
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Platform, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PlatformRejection is a reachable platform refusing the event.
type PlatformRejection struct {
	Platform   Platform
	StatusCode int
	Detail     string
}

func (e *PlatformRejection) Error() string {
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Platform, e.StatusCode, e.Detail)
}
