package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook signature configuration")
	ErrMissingSignature     = errors.New("webhook signature is missing")
	ErrSignatureMismatch    = errors.New("webhook signature mismatch")
	ErrInvalidTimestamp     = errors.New("invalid webhook signature timestamp")
	ErrTimestampOutOfRange  = errors.New("webhook signature timestamp out of range")
)
