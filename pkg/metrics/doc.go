// Package metrics defines Prometheus metrics for codegrant authorization
// flows, callback requests and token endpoint exchanges.
package metrics
