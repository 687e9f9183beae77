// Package types provides shared data structures for the backend.
//
// This package defines the core domain types used across components:
// package metadata, install outcomes, inventory entries, and the event
// payloads published on the internal bus. Keeping them here avoids
// dependency cycles between the managers that produce and consume them.
package types
