package auth

import "errors"

// Denial taxonomy shared by every endpoint. Callers only ever see the
// generic kind; the failing step is logged, never returned to the client.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrBackend         = errors.New("authorization backend unavailable")
)
