package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedOperation = errors.New("operation not supported by provider")
	ErrCancelled            = errors.New("request cancelled")
	ErrStreamConsumed       = errors.New("stream already consumed")
	ErrStructuredOutput     = errors.New("structured output required but invalid")
)

// ConfigurationError reports that no usable auth mode could be resolved or that
// the selected mode is missing required values. Vars lists the environment
// variables that would fix it.
type ConfigurationError struct {
	Reason string
	Vars   []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Vars) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (set one of: %s)", e.Reason, strings.Join(e.Vars, ", "))
}

// AuthMismatchError means the administrator-enforced auth type differs from the
// one detected in the environment. The operator must re-authenticate.
type AuthMismatchError struct {
	Enforced string
	Detected string
}

func (e *AuthMismatchError) Error() string {
	return fmt.Sprintf("the configured auth type is %s, but the current auth type is %s; please re-authenticate with the correct type", e.Enforced, e.Detected)
}

// UnsupportedAuthTypeError is returned by the generator factory for auth types
// it has no constructor for.
type UnsupportedAuthTypeError struct {
	AuthType string
}

func (e *UnsupportedAuthTypeError) Error() string {
	return fmt.Sprintf("unsupported auth type %q", e.AuthType)
}

// UpstreamError wraps a non-2xx HTTP status or a malformed upstream payload.
type UpstreamError struct {
	Provider   string `json:"provider"`
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
	Body       string `json:"body,omitempty"`
	Err        error  `json:"-"`
}

// NewUpstreamError creates an UpstreamError for an HTTP status response.
func NewUpstreamError(provider string, status int, statusText, body string) *UpstreamError {
	return &UpstreamError{Provider: provider, Status: status, StatusText: statusText, Body: body}
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s http %s: %s", e.Provider, e.StatusText, truncate(e.Body, 512))
	default:
		return fmt.Sprintf("%s http %s", e.Provider, e.StatusText)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Cancelled wraps a context error so callers can match both ErrCancelled and
// the underlying context.Canceled / context.DeadlineExceeded.
func Cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// FromContext returns a Cancelled error when ctx is done, otherwise err unchanged.
func FromContext(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Cancelled(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(err)
	}
	return err
}

// Class returns a short stable name for the error kind, used in telemetry.
func Class(err error) string {
	var (
		cfgErr      *ConfigurationError
		mismatchErr *AuthMismatchError
		authErr     *UnsupportedAuthTypeError
		upErr       *UpstreamError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrUnsupportedOperation):
		return "unsupported_operation"
	case errors.As(err, &upErr):
		return "upstream"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &mismatchErr):
		return "auth_mismatch"
	case errors.As(err, &authErr):
		return "unsupported_auth_type"
	default:
		return "other"
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
