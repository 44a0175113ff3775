package upstream

import (
	"github.com/pkg/errors"
)

var (
	ErrConfigMissing       = errors.New("upstream configuration missing")
	ErrAuthentication      = errors.New("upstream authentication failed")
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")
)

// Kind names a failure class for API payloads.
type Kind string

const (
	KindConfigMissing       Kind = "config_missing"
	KindAuthFailed          Kind = "auth_failed"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// kindError tags cause with one of the sentinel errors.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

func tag(kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

// KindOf classifies err. Nil and untagged errors report KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrConfigMissing):
		return KindConfigMissing
	case errors.Is(err, ErrAuthentication):
		return KindAuthFailed
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	default:
		return KindInternal
	}
}

// SafeMessage is a user facing description of kind that never includes credentials or upstream payloads.
func SafeMessage(kind Kind) string {
	switch kind {
	case KindConfigMissing:
		return "Upstream model endpoint is not configured"
	case KindAuthFailed:
		return "Could not acquire credentials for the upstream model"
	case KindUpstreamUnavailable:
		return "Upstream model did not answer the probe"
	default:
		return "Authentication test failed"
	}
}
