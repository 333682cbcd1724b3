package client

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotRegistered = errors.New("installation is not registered")
	ErrNotFound      = errors.New("not found")
)
