package common

import "errors"

var (
	// repository errors
	ErrorNotFound = errors.New("not found")

	// service errors
	ErrorInternal   = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRow   = errors.New("invalid row")
	ErrUnknownTable = errors.New("unknown table")

	// transport errors
	ErrUnavailable = errors.New("remote unavailable")
)
