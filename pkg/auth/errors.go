package auth

import (
	"errors"
)

var (
	ErrKeysMissing = errors.New("missing API key or secret key")
)
