// Package autherr holds the tagged error kinds shared by the engine and its
// subpackages. The root package re-exports everything here.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an authentication failure.
type Kind uint8

const (
	Internal Kind = iota
	InvalidCredentials
	EmailInUse
	AccountLocked
	InvalidSession
	InvalidCsrf
	InvalidOrExpiredToken
	SamePassword
	MissingSecret
	InvalidToken
	PasswordPolicy
	PasswordResetRequired
	RateLimited
	UnknownProvider
	NotFound
	InvalidInput
)

var kindNames = [...]string{
	Internal:              "internal_error",
	InvalidCredentials:    "invalid_credentials",
	EmailInUse:            "email_in_use",
	AccountLocked:         "account_locked",
	InvalidSession:        "invalid_session",
	InvalidCsrf:           "invalid_csrf",
	InvalidOrExpiredToken: "invalid_or_expired_token",
	SamePassword:          "same_password",
	MissingSecret:         "missing_secret",
	InvalidToken:          "invalid_token",
	PasswordPolicy:        "password_policy",
	PasswordResetRequired: "password_reset_required",
	RateLimited:           "rate_limited",
	UnknownProvider:       "unknown_provider",
	NotFound:              "not_found",
	InvalidInput:          "invalid_input",
}

// String returns the stable wire code of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[Internal]
}

// HTTPStatus maps a kind to its response status. This is the only place that decision
// is made.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidCredentials, InvalidSession, InvalidToken:
		return http.StatusUnauthorized
	case AccountLocked, InvalidCsrf, PasswordResetRequired:
		return http.StatusForbidden
	case EmailInUse:
		return http.StatusConflict
	case InvalidOrExpiredToken, SamePassword, PasswordPolicy, InvalidInput:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case UnknownProvider, NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Two Errors match under errors.Is when their kinds are
// equal, so a locked error carrying a specific RetryAfter still matches the sentinel.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter.Round(time.Second))
	}
	return e.Message
}

// Is implements kind equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New returns an Error of kind with message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Locked returns an AccountLocked error carrying the remaining lock duration. A zero
// duration means the lock has no scheduled expiry.
func Locked(remaining time.Duration) *Error {
	if remaining < 0 {
		remaining = 0
	}
	return &Error{Kind: AccountLocked, Message: "account is locked", RetryAfter: remaining}
}

// KindOf classifies err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinels, one per kind.
var (
	ErrInternal              = New(Internal, "internal error")
	ErrInvalidCredentials    = New(InvalidCredentials, "invalid email or password")
	ErrEmailInUse            = New(EmailInUse, "email is already registered")
	ErrAccountLocked         = New(AccountLocked, "account is locked")
	ErrInvalidSession        = New(InvalidSession, "invalid or expired session")
	ErrInvalidCsrf           = New(InvalidCsrf, "invalid csrf token")
	ErrInvalidOrExpiredToken = New(InvalidOrExpiredToken, "invalid or expired token")
	ErrSamePassword          = New(SamePassword, "new password must differ from the current password")
	ErrMissingSecret         = New(MissingSecret, "access token signing secret is not configured")
	ErrInvalidToken          = New(InvalidToken, "invalid access token")
	ErrPasswordPolicy        = New(PasswordPolicy, "password does not meet policy")
	ErrPasswordResetRequired = New(PasswordResetRequired, "password reset required")
	ErrRateLimited           = New(RateLimited, "too many requests")
	ErrUnknownProvider       = New(UnknownProvider, "unknown oauth provider")
	ErrNotFound              = New(NotFound, "not found")
	ErrInvalidInput          = New(InvalidInput, "invalid input")
)
