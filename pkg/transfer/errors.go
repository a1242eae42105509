package transfer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// ErrClosed is returned by Get/Put after the connector was closed.
var ErrClosed = xerrors.New("connector closed")

// ErrCancelled finalizes descriptors left behind when a batch is
// interrupted before their workers reach a terminal state.
var ErrCancelled = xerrors.New("transfer cancelled")

// NoConnectorError is returned at construction time for endpoints the
// connector cannot serve (wrong content type or scheme).
type NoConnectorError struct {
	URL    string
	Reason string
}

func (e *NoConnectorError) Error() string {
	return fmt.Sprintf("no connector available for %s: %s", e.URL, e.Reason)
}

// NotFoundError reports a 404 for the requested resource.
type NotFoundError struct {
	Kind Kind
	URL  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: unable to locate resource %s", e.Kind, e.URL)
}

// AuthError reports a 401, 403 or 407 response.
type AuthError struct {
	Kind   Kind
	URL    string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("access denied to %s (status %d)", e.URL, e.Status)
}

// Error is the generic transfer failure: unexpected response codes,
// network and filesystem trouble.
type Error struct {
	Kind Kind
	URL  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to transfer %s %s: %s: %v", e.Kind, e.URL, e.Msg, e.Err)
	}
	return fmt.Sprintf("failed to transfer %s %s: %s", e.Kind, e.URL, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ChecksumError reports a sidecar digest mismatch, or — with both hex
// fields empty — that no sidecar was available at all.
type ChecksumError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	if e.Unavailable() {
		return fmt.Sprintf("checksum validation failed for %s, no checksums available from the repository", e.URL)
	}
	return fmt.Sprintf("checksum validation failed for %s, expected %s but is %s", e.URL, e.Expected, e.Actual)
}

// Unavailable reports whether the failure is a missing sidecar rather
// than a mismatch.
func (e *ChecksumError) Unavailable() bool {
	return e.Expected == "" && e.Actual == ""
}

// outcomeFor classifies a terminal error into the descriptor outcome.
func outcomeFor(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return OutcomeNotFound
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return OutcomeAuthDenied
	}
	var ce *ChecksumError
	if errors.As(err, &ce) {
		if ce.Unavailable() {
			return OutcomeChecksumUnavailable
		}
		return OutcomeChecksumMismatch
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	return OutcomeIOError
}
