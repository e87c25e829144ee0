package restclient

import (
	"errors"
	"fmt"
)

var (
	ErrBuildRequest     = errors.New("failed to build request")
	ErrTransport        = errors.New("request failed")
	ErrDecodeBody       = errors.New("failed to decode response body")
	ErrUnexpectedEnd    = errors.New("empty response body")
	ErrResponseTooLarge = errors.New("response body too large")
)

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Body       []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// IsHTTPError returns the *Error in err's chain, if any.
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
