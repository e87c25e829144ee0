package binder

import "errors"

// Common binding errors
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrRequestTooLarge      = errors.New("request body too large")
	ErrInvalidPath          = errors.New("invalid path parameter")
)
