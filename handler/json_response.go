package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/subrelay/pkg/validator"
)

// ErrorBody is the JSON document written for failed requests.
type ErrorBody struct {
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// jsonResponse implements Response for JSON rendering
type jsonResponse struct {
	status int
	body   any
	detail *ErrorDetail
}

func (j *jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	if j.detail != nil {
		return json.NewEncoder(w).Encode(ErrorBody{Error: j.detail})
	}
	return json.NewEncoder(w).Encode(j.body)
}

func (j *jsonResponse) StatusCode() int { return j.status }

// JSONOption configures JSON response
type JSONOption func(*jsonResponse)

// WithJSONStatus sets custom HTTP status code
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithErrorMessage replaces the message of an error response.
func WithErrorMessage(msg string) JSONOption {
	return func(r *jsonResponse) {
		if r.detail != nil && msg != "" {
			r.detail.Message = msg
		}
	}
}

// WithErrorDetails attaches details to an error response.
func WithErrorDetails(details any) JSONOption {
	return func(r *jsonResponse) {
		if r.detail != nil && details != nil {
			r.detail.Details = details
		}
	}
}

// JSON renders v as the response body with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{
		status: http.StatusOK,
		body:   v,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err as {"error":{"code","message","details"}}.
// The status comes from a HTTPError or ValidationErrors in err's chain,
// otherwise 500.
func JSONError(err error, opts ...JSONOption) Response {
	r := &jsonResponse{
		status: http.StatusInternalServerError,
	}
	r.detail = errorToDetail(err, &r.status)

	// Options may override status, message or details
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// errorToDetail converts error to ErrorDetail and sets appropriate status
func errorToDetail(err error, status *int) *ErrorDetail {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		*status = http.StatusUnprocessableEntity
		detail := &ErrorDetail{
			Code:    ErrUnprocessableEntity.Key,
			Message: ve.Error(),
		}
		if len(ve) > 0 {
			detail.Details = ve.Fields()
		}
		return detail
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		*status = httpErr.Code
		return &ErrorDetail{
			Code:    httpErr.Key,
			Message: http.StatusText(httpErr.Code),
		}
	}

	// Unclassified errors never leak their text
	*status = http.StatusInternalServerError
	return &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
