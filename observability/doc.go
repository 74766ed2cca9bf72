// Package observability exports block cache and page allocator events as
// Prometheus metrics.
package observability
