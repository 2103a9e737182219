package registration

import (
	"github.com/goliatone/go-errors"
)

// Text codes let controllers keep user-facing failure modes distinguishable:
// "please register first" and "check your token" must never collapse into a
// single generic message.
const (
	TextCodeNotRegistered      = "REGISTER_FIRST"
	TextCodeTokenMismatch      = "CHECK_TOKEN"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeRecordNotFound     = "RECORD_NOT_FOUND"
	TextCodeKeyNotFound        = "KEY_NOT_FOUND"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeLoginNotAvailable  = "LOGIN_NOT_AVAILABLE"
	TextCodeEmailNotAvailable  = "EMAIL_NOT_AVAILABLE"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeReadOnlyTx         = "READ_ONLY_TX"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionDecodeError = "SESSION_DECODE_ERROR"
)

// ErrNotRegistered means an operation referenced an e-mail with no pending
// signup. Callers should prompt the user to register, not to re-check a token.
var ErrNotRegistered = errors.New("no pending registration for that e-mail", errors.CategoryNotFound).
	WithTextCode(TextCodeNotRegistered)

// ErrTokenMismatch means a supplied token did not match the stored one. The
// underlying record is preserved; the caller may retry with the right token.
var ErrTokenMismatch = errors.New("the token provided does not match", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMismatch)

// ErrTokenExpired is returned only when an optional TTL policy is configured
// on the Registrar; the legacy protocol never expires tokens.
var ErrTokenExpired = errors.New("the token provided has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrRecordNotFound is the index-maintainer-level failure for a primary key
// that does not exist. It should not surface to end users as distinct from
// ErrNotRegistered.
var ErrRecordNotFound = errors.New("registration record not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound)

// ErrKeyNotFound is the record-store-level absence marker.
var ErrKeyNotFound = errors.New("key not found", errors.CategoryNotFound).
	WithTextCode(TextCodeKeyNotFound)

// ErrIdentityNotFound is returned for lookups that resolve no confirmed record.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound)

// ErrLoginNotAvailable is the business-rule uniqueness conflict for logins.
// The index maintainer never raises it; account-edit validation does.
var ErrLoginNotAvailable = errors.New("login name not available", errors.CategoryConflict).
	WithTextCode(TextCodeLoginNotAvailable)

// ErrEmailNotAvailable is the business-rule uniqueness conflict for e-mails.
var ErrEmailNotAvailable = errors.New("e-mail address not available", errors.CategoryConflict).
	WithTextCode(TextCodeEmailNotAvailable)

// ErrMismatchedHashAndPassword covers both unknown logins and wrong passwords
// so authentication failures do not reveal account existence.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrTooManyLoginAttempts enforces the sign-in cooldown window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrNoEmptyString rejects empty passwords before they reach the hasher.
var ErrNoEmptyString = errors.New("value must not be an empty string", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrReadOnlyTx rejects writes attempted through a read-only view.
var ErrReadOnlyTx = errors.New("write attempted on a read-only transaction", errors.CategoryOperation).
	WithTextCode(TextCodeReadOnlyTx)

// ErrUnableToFindSession is the error when the request carries no session.
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound)

// ErrUnableToDecodeSession means the session token could not be decoded.
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionDecodeError)

// hasTextCode matches a failure mode across wrapping: errors.Wrap clones a
// rich error instead of chaining it, so sentinel identity is lost but the
// text code survives.
func hasTextCode(err error, codes ...string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	for _, code := range codes {
		if richErr.TextCode == code {
			return true
		}
	}
	return false
}

// IsNotRegistered checks for the missing-pending-registration failure mode.
func IsNotRegistered(err error) bool {
	return hasTextCode(err, TextCodeNotRegistered)
}

// IsTokenMismatch checks for the wrong-token failure mode.
func IsTokenMismatch(err error) bool {
	return hasTextCode(err, TextCodeTokenMismatch)
}

// IsKeyNotFound checks for record-store-level absence.
func IsKeyNotFound(err error) bool {
	return hasTextCode(err, TextCodeKeyNotFound)
}

// IsUniquenessConflict checks for either of the business-rule conflicts.
func IsUniquenessConflict(err error) bool {
	return hasTextCode(err, TextCodeLoginNotAvailable, TextCodeEmailNotAvailable)
}
