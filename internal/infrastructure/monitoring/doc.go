// Package monitoring provides Prometheus metrics for the subsystem
// integration layer: external tool invocations, installs, inventory
// refreshes, connection attempts, and the HTTP/websocket surface.
//
// Metrics are registered with the default registry via promauto and
// exposed on /metrics by the HTTP server.
package monitoring
