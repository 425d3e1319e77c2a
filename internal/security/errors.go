package security

import "errors"

var (
	ErrInvalidInput = errors.New("security: invalid input")
	ErrNotFound     = errors.New("security: not found")
	ErrConflict     = errors.New("security: already exists")
)
