// Package apperrors provides the sentinel errors and error-kind taxonomy
// used throughout the sync core.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure per spec.md §7, so callers can react without
// string-matching error messages.
type Kind string

const (
	// KindUnauthorized means the provider's token is missing or rejected.
	KindUnauthorized Kind = "unauthorized"
	// KindTransport means an HTTP/network failure while talking to a provider.
	KindTransport Kind = "transport"
	// KindDecode means a JSON or payload decoding failure.
	KindDecode Kind = "decode"
	// KindFatal means a reconciler apply pass produced errors; the sync failed.
	KindFatal Kind = "fatal"
)

// Error wraps an underlying error with a Kind so errors.As can recover the
// classification alongside errors.Is/errors.Unwrap reaching the cause.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a Kind. Returns nil if err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPError represents an HTTP error with a status code, returned by
// providers and the reference git provider's transport shims.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// Common static errors used throughout the sync core.
var (
	// ErrProviderNotFound is returned when a lookup by service name misses.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNoCurrentProvider is returned when an operation needs a current
	// provider but sync.current is unset.
	ErrNoCurrentProvider = errors.New("no current provider configured")

	// ErrSyncInProgress reports that a sync is already running. No code in
	// this module returns it; the work chain queues syncs instead.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotAuthorized is returned by SyncManager.Authorize for a service
	// whose provider has no Authenticator.
	ErrNotAuthorized = errors.New("provider is not authorized")

	// ErrNotCurrent is returned by SyncManager.TriggerSync when the named
	// service is not the current one.
	ErrNotCurrent = errors.New("provider is no longer current")

	// ErrInvalidStateValue names a state value outside a cell's allowed
	// set. statecell.Cell.Set does not return it: a rejected set is a
	// logged no-op.
	ErrInvalidStateValue = errors.New("invalid state value")

	// ErrAlreadyRegistered is returned when a provider factory is
	// registered twice under the same name.
	ErrAlreadyRegistered = errors.New("provider already registered")

	// ErrNoRemoteMeta reports a missing remote meta file. No code in this
	// module returns it; the git provider reads a missing meta file as an
	// empty meta.
	ErrNoRemoteMeta = errors.New("remote meta file not found")

	// ErrMaxRetriesExceeded reports exhausted retries against a provider
	// transport. No code in this module retries or returns it.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrRemoteNotConfigured reports a missing git remote URL. No code in
	// this module returns it; without a remote the git provider commits
	// locally and does not push.
	ErrRemoteNotConfigured = errors.New("no remote configured")

	// ErrHTTPSPasswordRequired is returned when an HTTPS git URL is used
	// without a password/token.
	ErrHTTPSPasswordRequired = errors.New("git password required for HTTPS URLs")

	// ErrProviderNameRequired is returned by CLI commands that require a
	// provider name argument.
	ErrProviderNameRequired = errors.New("provider name is required")

	// ErrURIAndFileRequired is returned by the CLI's add command when
	// either argument is missing.
	ErrURIAndFileRequired = errors.New("uri and file arguments are required")
)
