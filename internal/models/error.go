package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	ErrRateLimitExceeded = errors.New("rate limit exceeded, try again later")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrUnknownProvider   = errors.New("unknown webhook provider")
	ErrStoreUnavailable  = errors.New("attempt store unavailable")
)
