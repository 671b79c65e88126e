package mandelmpi

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrTooFewParticipants = errors.New("blockmaster strategy needs at least two participants")
)
