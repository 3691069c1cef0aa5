package jobAuth

import (
	"errors"

	"github.com/MrEthical07/jobAuth/internal/autherr"
)

// ErrorKind classifies every error the engine returns to callers.
type ErrorKind = autherr.Kind

// AuthError is a classified error. Use errors.Is against the sentinels below or
// [KindOf] to branch on it.
type AuthError = autherr.Error

const (
	KindInternal              = autherr.Internal
	KindInvalidCredentials    = autherr.InvalidCredentials
	KindEmailInUse            = autherr.EmailInUse
	KindAccountLocked         = autherr.AccountLocked
	KindInvalidSession        = autherr.InvalidSession
	KindInvalidCsrf           = autherr.InvalidCsrf
	KindInvalidOrExpiredToken = autherr.InvalidOrExpiredToken
	KindSamePassword          = autherr.SamePassword
	KindMissingSecret         = autherr.MissingSecret
	KindInvalidToken          = autherr.InvalidToken
	KindPasswordPolicy        = autherr.PasswordPolicy
	KindPasswordResetRequired = autherr.PasswordResetRequired
	KindRateLimited           = autherr.RateLimited
	KindUnknownProvider       = autherr.UnknownProvider
	KindNotFound              = autherr.NotFound
	KindInvalidInput          = autherr.InvalidInput
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = autherr.ErrInvalidCredentials
	ErrEmailInUse         = autherr.ErrEmailInUse
	// ErrAccountLocked matches every locked error; the returned value carries RetryAfter.
	ErrAccountLocked = autherr.ErrAccountLocked
	// ErrInvalidSession covers missing, revoked, expired and lost-race sessions.
	ErrInvalidSession = autherr.ErrInvalidSession
	ErrInvalidCsrf    = autherr.ErrInvalidCsrf
	// ErrInvalidOrExpiredToken covers missing, expired and consumed single-use tokens.
	ErrInvalidOrExpiredToken = autherr.ErrInvalidOrExpiredToken
	ErrSamePassword          = autherr.ErrSamePassword
	ErrMissingSecret         = autherr.ErrMissingSecret
	ErrInvalidToken          = autherr.ErrInvalidToken
	ErrPasswordPolicy        = autherr.ErrPasswordPolicy
	ErrPasswordResetRequired = autherr.ErrPasswordResetRequired
	ErrRateLimited           = autherr.ErrRateLimited
	ErrUnknownProvider       = autherr.ErrUnknownProvider
	ErrUserNotFound          = autherr.ErrNotFound
	ErrInvalidInput          = autherr.ErrInvalidInput
	ErrInternal              = autherr.ErrInternal

	// ErrStoreUnavailable wraps credential store failures. It classifies as Internal.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// KindOf classifies err. Anything that is not an [AuthError] is KindInternal.
func KindOf(err error) ErrorKind {
	return autherr.KindOf(err)
}

// HTTPStatus is shorthand for KindOf(err).HTTPStatus().
func HTTPStatus(err error) int {
	return autherr.KindOf(err).HTTPStatus()
}
