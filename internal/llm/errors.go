package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable means the provider could not be reached or
	// answered with a non-success status.
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")
	// ErrUpstreamMalformed means the provider answered but the reply had
	// no usable body.
	ErrUpstreamMalformed = errors.New("upstream model returned no usable reply")
)

// UpstreamError is a non-success HTTP status from a provider. Message
// is the provider's own error text when the body carried one.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap makes every UpstreamError match [ErrUpstreamUnavailable].
func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamUnavailable
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%s request failed: %w: %w", provider, ErrUpstreamUnavailable, err)
}

func malformed(provider, detail string) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrUpstreamMalformed, detail)
}
