package adapters

import (
	"errors"
	"fmt"
)

type Kind string

const (
	ServiceUnavailable  Kind = "service_unavailable"
	RateLimited         Kind = "rate_limited"
	InvalidResponse     Kind = "invalid_response"
	NotFound            Kind = "not_found"
	IOError             Kind = "io_error"
	ConstraintViolation Kind = "constraint_violation"
	NoResults           Kind = "no_results"
	Unsupported         Kind = "unsupported"
	NotConfigured       Kind = "not_configured"
)

// Error is the failure type every adapter returns. The step executor asks
// Transient() to decide whether to retry.
type Error struct {
	Service string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool {
	switch e.Kind {
	case ServiceUnavailable, RateLimited, IOError:
		return true
	default:
		return false
	}
}

func Errorf(service string, kind Kind, format string, args ...any) error {
	return &Error{Service: service, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func Wrap(service string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Service: service, Kind: kind, Err: err}
}

// KindOf returns the adapter error kind in err's chain, or "".
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// FromHTTPStatus maps an upstream status code to an error kind.
func FromHTTPStatus(code int) Kind {
	switch {
	case code == 429:
		return RateLimited
	case code == 404:
		return NotFound
	case code == 408 || code >= 500:
		return ServiceUnavailable
	default:
		return InvalidResponse
	}
}

// Missing reports an unconfigured adapter.
func Missing(service string) error {
	return &Error{Service: service, Kind: NotConfigured, Err: errors.New("adapter not configured")}
}
