// Package redis connects go-redis clients configured from the environment
// and exposes a readiness probe for them.
package redis
