// Package resilience holds the failure-handling primitives shared by
// the outbound clients: a three-state circuit breaker and exponential
// backoff retries.
//
// The breaker trips open after repeated failures, rejects calls for a
// timeout, then lets a bounded trial through (half-open) before
// closing again.
package resilience
