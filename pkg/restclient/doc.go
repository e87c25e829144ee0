// Package restclient is a small JSON-over-HTTP client for provider REST APIs.
//
// Requests go through hashicorp/go-retryablehttp. Writes (POST, PUT, PATCH,
// DELETE) are sent exactly once so a provider object is never created twice;
// reads are retried on connection errors, 429 and 5xx responses.
//
// Non-2xx responses are returned as *Error carrying the status code and the
// raw response body.
package restclient
