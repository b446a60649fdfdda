package upstream

import "fmt"

// Kind classifies an upstream failure so callers can dispatch on a tag
// instead of sniffing error strings (spec.md §9 design note).
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthCredentialsRequired
	KindAuthTokenExpired
	KindAuthDeviceKeyExpired
	KindRateLimited
	KindForbidden
	KindServerUnavailable
	KindHTTP
)

// sentinel strings the front-end and matrix engine compare against
// exactly (spec.md §4.A/§7) — kept because the external HTTP contract
// surfaces them verbatim, even though internal dispatch uses Kind.
const (
	SentinelAuthCredentialsRequired = "AUTH_CREDENTIALS_REQUIRED"
	SentinelAuthTokenExpired        = "AUTH_TOKEN_EXPIRED"
	SentinelAuthDeviceKeyExpired    = "AUTH_DEVICE_KEY_EXPIRED"
)

// Error is the tagged variant every upstream call returns on failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError unwraps err into an *Error, if it is one.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// IsRetryable reports whether the scheduler's retry envelope (spec.md
// §4.D) should retry the call that produced err: rate limits and the
// generic 403 "high traffic" response, nothing else.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Kind == KindRateLimited || e.Kind == KindForbidden
}

func errAuthCredentialsRequired() error {
	return newError(KindAuthCredentialsRequired, SentinelAuthCredentialsRequired)
}

func errAuthTokenExpired() error {
	return newError(KindAuthTokenExpired, SentinelAuthTokenExpired)
}

func errAuthDeviceKeyExpired() error {
	return newError(KindAuthDeviceKeyExpired, SentinelAuthDeviceKeyExpired)
}

func errRateLimited(message string) error {
	if message == "" {
		message = "Too many requests. Please slow down."
	}
	return newError(KindRateLimited, message)
}

func errForbidden() error {
	return newError(KindForbidden, "Currently we are experiencing high traffic. Please try again after some time.")
}

func errServerUnavailable() error {
	return newError(KindServerUnavailable, "We're unable to connect to the railway reservation service right now. Please try again in a few minutes.")
}

func errHTTP(statusCode int, underlying error) error {
	return newError(KindHTTP, fmt.Sprintf("upstream request failed with status %d: %v", statusCode, underlying))
}
