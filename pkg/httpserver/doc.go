// Package httpserver runs an http.Handler with graceful shutdown.
//
// Run blocks until the context is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests within the shutdown timeout and runs the
// registered shutdown hooks, typically closing database clients.
// LivenessHandler and ReadinessHandler back the health endpoints.
package httpserver
