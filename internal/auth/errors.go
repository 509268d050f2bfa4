package auth

import "errors"

// The four failure classes every protected operation can produce. They all
// collapse to an opaque denial or an opaque generic failure at the HTTP
// boundary; the distinction exists for logging and for callers that must
// fail closed.
var (
	// ErrUnauthorized means the session tokens were missing, invalid, or
	// expired according to the auth service.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the identity is authenticated but no ownership,
	// role, or permission grant allows the action.
	ErrForbidden = errors.New("forbidden")

	// ErrInfrastructure means a store or network failure prevented the
	// decision from being evaluated. Access-wise equivalent to a denial.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrConfiguration means key material or a required endpoint is
	// missing or malformed. Fatal at startup, never recoverable per request.
	ErrConfiguration = errors.New("configuration error")
)
