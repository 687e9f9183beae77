// Package server provides HTTP server setup for the subsystem backend.
//
// This package wires the transport surface:
//   - HTTP routing with Gin framework
//   - Middleware stack (CORS, rate limiting, metrics, tracing, recovery)
//   - REST handlers over the integration facade
//   - WebSocket event streaming
//   - Prometheus metrics exposition
//
// Server Lifecycle:
//  1. Build router and middleware from configuration
//  2. Register REST, stream, and metrics routes
//  3. Serve until Shutdown drains in-flight requests
//
// Example Usage:
//
//	srv := server.New(cfg, facade, bus, metrics, logger)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
