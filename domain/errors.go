package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrExhausted    = errors.New("usage limit reached")
	ErrRevoked      = errors.New("revoked")
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// StatusFromErr is the inverse of TokenStatus.Err for the token sentinels.
// ok is false for errors that do not describe a token state.
func StatusFromErr(err error) (status TokenStatus, ok bool) {
	switch {
	case err == nil:
		return StatusValid, true
	case errors.Is(err, ErrExpired):
		return StatusExpired, true
	case errors.Is(err, ErrExhausted):
		return StatusExhausted, true
	case errors.Is(err, ErrRevoked):
		return StatusRevoked, true
	case errors.Is(err, ErrNotFound):
		return StatusNotFound, true
	}
	return "", false
}
