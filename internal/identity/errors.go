package identity

import (
	"errors"
	"fmt"
)

// ProviderError is returned for every handshake failure: transport errors,
// invalid or expired codes, provider-side rejections and unusable profiles.
type ProviderError struct {
	Provider    string
	Op          string // "exchange", "profile", "verify"
	Status      int    // HTTP status from the provider, 0 when not applicable
	Code        string // OAuth error code, e.g. "bad_verification_code"
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	scope := e.Provider
	if e.Op != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Op)
	}
	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s failed: status %d", scope, e.Status)
	}
	return scope + " failed"
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err for the given provider and operation. An err
// that already is a *ProviderError is returned unchanged.
func NewProviderError(provider, op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// IsProviderError reports whether err came from an identity provider.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
