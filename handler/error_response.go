package handler

import "net/http"

// errorResponse hands its error to the configured ErrorHandler.
type errorResponse struct {
	err error
}

func (e errorResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}

// Error returns a Response that writes nothing and reports err, so the error
// reaches the ErrorHandler set with WithErrorHandler.
//
// Example:
//
//	active, err := svc.Status(ctx, req.UserID)
//	if err != nil {
//		return handler.Error(err)
//	}
func Error(err error) Response {
	if err == nil {
		err = ErrNilResponse
	}
	return errorResponse{err: err}
}
