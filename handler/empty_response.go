package handler

import "net/http"

// emptyResponse represents an empty HTTP response with only a status code
type emptyResponse struct {
	status int
}

// Render writes the status code without any body content
func (e emptyResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

func (e emptyResponse) StatusCode() int { return e.status }

// Empty creates an empty response with status 204 (No Content).
func Empty() Response {
	return emptyResponse{
		status: http.StatusNoContent,
	}
}

// EmptyWithStatus creates an empty response with a custom status code.
// Providers that only look at the status code get an empty 200:
//
//	return handler.EmptyWithStatus(http.StatusOK)
func EmptyWithStatus(status int) Response {
	return emptyResponse{
		status: status,
	}
}
