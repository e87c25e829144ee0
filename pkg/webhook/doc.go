// Package webhook provides HMAC-SHA256 helpers for authenticating inbound
// provider notifications.
//
// Providers that sign deliveries put one or more key=value pairs in a
// header, e.g. "ts=1704908010,v1=618c...". ParseHeader splits such headers,
// CheckTimestamp bounds replay, and Verify compares a hex signature against
// the HMAC of the provider-defined message in constant time.
package webhook
