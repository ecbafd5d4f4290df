package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
)

type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// TransientError marks a failure worth retrying (timeouts, rate limits,
// temporary unavailability).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + errString(e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + errString(e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

type OutputNotSerializableError struct {
	Step string
	Err  error
}

func (e *OutputNotSerializableError) Error() string {
	return fmt.Sprintf("step %q output not serializable: %s", e.Step, errString(e.Err))
}
func (e *OutputNotSerializableError) Unwrap() error { return e.Err }

// ValidationError is returned by the event bus for unknown event names and
// payloads that fail the registered schema.
type ValidationError struct {
	Event  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event %q: %s", e.Event, e.Reason)
}

type DuplicatePipelineIDError struct {
	ID string
}

func (e *DuplicatePipelineIDError) Error() string {
	return fmt.Sprintf("pipeline already registered: id=%s", e.ID)
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// transientReporter is implemented by adapter errors that know their own
// retry semantics.
type transientReporter interface {
	Transient() bool
}

// Classify decides whether a step failure may be retried. Explicit markers
// win over adapter hints, adapter hints win over transport heuristics, and
// anything unrecognized is a logic error and therefore permanent.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return KindPermanent
	}
	var ns *OutputNotSerializableError
	if errors.As(err, &ns) {
		return KindPermanent
	}
	var te *TransientError
	if errors.As(err, &te) {
		return KindTransient
	}
	var tr transientReporter
	if errors.As(err, &tr) {
		if tr.Transient() {
			return KindTransient
		}
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || httpx.IsRetryableError(err) {
		return KindTransient
	}
	return KindPermanent
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
