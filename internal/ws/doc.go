// Package ws streams subsystem events to WebSocket clients.
//
// Every event published on the in-process bus - connection status,
// install progress, inventory changes - is relayed to each connected
// client as a JSON envelope carrying its topic and timestamp.
//
// Message Types (Server → Client):
//   - stream.connected: handshake with the assigned connection id
//   - connection: bridge connect/disconnect transitions
//   - install: install pipeline stage updates
//   - inventory: package installed/updated/uninstalled
//
// Clients do not send application messages; the read loop exists for
// pings and disconnect detection.
//
// Example Usage:
//
//	handler := ws.NewHandler(bus, metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
