package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeKeySetFetch         = "KEY_SET_FETCH"
	TextCodeKeySetParse         = "KEY_SET_PARSE"
	TextCodeUnknownSigningKey   = "UNKNOWN_SIGNING_KEY"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodePermissionFetch     = "PERMISSION_FETCH"
	TextCodeEmailDomainRejected = "EMAIL_DOMAIN_REJECTED"
	TextCodeIdentityNotFound    = "IDENTITY_NOT_FOUND"
)

// ErrKeySetFetch is returned when the signing key set could not be downloaded
// after all retry attempts.
var ErrKeySetFetch = goerrors.New("unable to fetch signing key set", goerrors.CategoryOperation).
	WithTextCode(TextCodeKeySetFetch).
	WithCode(http.StatusBadGateway)

// ErrKeySetParse is returned when the signing key set document is malformed
// or one of its keys carries no usable certificate.
var ErrKeySetParse = goerrors.New("unable to parse signing key set", goerrors.CategoryOperation).
	WithTextCode(TextCodeKeySetParse).
	WithCode(http.StatusBadGateway)

// ErrUnknownSigningKey is returned when a token references a kid that is not
// part of the published key set.
var ErrUnknownSigningKey = goerrors.New("unknown signing key", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnknownSigningKey).
	WithCode(http.StatusUnauthorized)

// ErrTokenInvalid is the uniform authentication failure.
var ErrTokenInvalid = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(http.StatusUnauthorized)

// ErrPermissionFetch is returned when the management API could not provide the
// caller permissions.
var ErrPermissionFetch = goerrors.New("unable to fetch permissions", goerrors.CategoryOperation).
	WithTextCode(TextCodePermissionFetch).
	WithCode(http.StatusServiceUnavailable)

// ErrEmailDomainRejected is returned when a caller email is outside the
// configured allowlist or inside the blocklist.
var ErrEmailDomainRejected = goerrors.New("email domain not allowed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailDomainRejected).
	WithCode(http.StatusForbidden)

// ErrIdentityNotFound is returned by binders when a bound identity is missing.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(http.StatusNotFound)

// WrapError clones base and attaches cause and metadata to the clone, leaving
// the sentinel untouched.
func WrapError(base *goerrors.Error, cause error, metadata map[string]any) *goerrors.Error {
	if base == nil {
		return nil
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if cause != nil {
		clone.Source = cause
	}
	if len(metadata) > 0 {
		clone.WithMetadata(metadata)
	}
	return clone
}

// TextCode returns the text code of the outermost rich error in err.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return richErr.TextCode
	}
	return ""
}

// HasTextCode reports whether err, or any rich error it wraps as a source,
// carries the given text code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr == nil {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = richErr.Source
	}
	return false
}

// IsTokenInvalid reports whether err is an authentication failure.
func IsTokenInvalid(err error) bool {
	return HasTextCode(err, TextCodeTokenInvalid)
}

// IsPermissionFetchError reports whether err is a management API failure.
func IsPermissionFetchError(err error) bool {
	return HasTextCode(err, TextCodePermissionFetch)
}

// IsKeySetError reports whether err originates from fetching or parsing the
// signing key set.
func IsKeySetError(err error) bool {
	return HasTextCode(err, TextCodeKeySetFetch) || HasTextCode(err, TextCodeKeySetParse)
}
