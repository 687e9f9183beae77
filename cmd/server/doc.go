// Package main is the entry point for the subsystem backend server.
//
// This daemon sits between the desktop UI and a virtualized Android
// subsystem, coordinating the debug bridge, package installs, and the
// installed-app inventory.
//
// Architecture:
//
//	UI (REST/WebSocket) → Go Backend → adb/aapt → Android subsystem
//	                                 → Catalog service (stored packages)
//
// The server provides:
//   - REST API for subsystem status, installs, and package management
//   - WebSocket streaming of connection, install, and inventory events
//   - Prometheus metrics
//   - Lifecycle management (preload, idle stop, low-memory stop)
//
// Configuration:
//   - Environment variables (12-factor)
//   - Defaults for development
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
