// Package ratelimit provides per-client token-bucket rate limiting middleware
// for Gin servers, with automatic stale-entry cleanup.
package ratelimit
