package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a closed classification of authentication failures. Provider
// errors are mapped onto it by substring matching against the error
// text, which is fragile against upstream wording changes; the mapping
// is pinned by tests and unmapped errors always land in KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindSmsQuotaExceeded
	KindTooManyRequests
	KindMfaInvalidCode
	KindMfaExpired
	KindRefreshRejected
	KindUpstreamUnavailable
	KindMalformedResponse
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindSmsQuotaExceeded:
		return "sms_quota_exceeded"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindMfaInvalidCode:
		return "mfa_invalid_code"
	case KindMfaExpired:
		return "mfa_expired"
	case KindRefreshRejected:
		return "refresh_rejected"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is an authentication failure carrying its classification and
// the original provider message for diagnostics.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindUnknown when err is
// not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// ClassifyLogin maps a provider error raised during the SRP login steps
// to a Kind. Unmapped errors fall back to KindInvalidCredentials, which
// matches how the vendor app presents them.
func ClassifyLogin(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(strings.ToUpper(msg), "SMS QUOTA"),
		strings.Contains(msg, "UserLambdaValidationException"):
		return KindSmsQuotaExceeded
	case strings.Contains(msg, "NotAuthorizedException"),
		strings.Contains(msg, "UserNotFoundException"),
		strings.Contains(msg, "InvalidPasswordException"):
		return KindInvalidCredentials
	case strings.Contains(msg, "TooManyRequestsException"),
		strings.Contains(msg, "LimitExceededException"):
		return KindTooManyRequests
	default:
		return KindInvalidCredentials
	}
}

// ClassifyMFA maps a provider error raised while submitting an MFA code
// to a Kind. Unmapped errors fall back to KindUnknown with the original
// message preserved by the surrounding *Error.
func ClassifyMFA(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "CodeMismatchException"),
		strings.Contains(msg, "Invalid"):
		return KindMfaInvalidCode
	case strings.Contains(msg, "ExpiredCodeException"),
		strings.Contains(strings.ToLower(msg), "expired"):
		return KindMfaExpired
	case strings.Contains(strings.ToUpper(msg), "SMS QUOTA"),
		strings.Contains(msg, "UserLambdaValidationException"):
		return KindSmsQuotaExceeded
	case strings.Contains(msg, "TooManyRequestsException"),
		strings.Contains(msg, "LimitExceededException"):
		return KindTooManyRequests
	default:
		return KindUnknown
	}
}
