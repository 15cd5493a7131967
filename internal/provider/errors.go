package provider

import (
	"errors"
	"fmt"
)

// Kind classifies translation failures. Only RateLimited, Transient and
// ChannelUnavailable are worth retrying; everything else propagates to the
// caller as a terminal failure for this attempt.
type Kind int

const (
	KindAuth Kind = iota
	KindRateLimited
	KindUnsupported
	KindNetwork
	KindTransient
	KindCacheInvalid
	KindChannelUnavailable
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AuthError"
	case KindRateLimited:
		return "RateLimited"
	case KindUnsupported:
		return "Unsupported"
	case KindNetwork:
		return "NetworkError"
	case KindTransient:
		return "Transient"
	case KindCacheInvalid:
		return "CacheInvalid"
	case KindChannelUnavailable:
		return "ChannelUnavailable"
	default:
		return "Unknown"
	}
}

// Retryable reports whether a local retry with backoff can help.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTransient, KindChannelUnavailable:
		return true
	default:
		return false
	}
}

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the failure kind from an error chain, defaulting to
// KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error chain carries a retryable kind.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// classifyStatus maps an HTTP status code to a failure kind. Every adapter
// shares this mapping so callers see one taxonomy regardless of provider.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 200 && status < 300:
		return KindUnknown
	default:
		return KindTransient
	}
}
