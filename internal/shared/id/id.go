// Package id generates ULID-based identifiers. ULIDs sort
// lexicographically by creation time, which keeps request traces and
// connection logs readable without extra timestamps.
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one API request or trace.
type RequestID string

// SpanID identifies one operation within a trace.
type SpanID string

// ConnectionID identifies one websocket subscriber.
type ConnectionID string

func (id RequestID) String() string    { return string(id) }
func (id SpanID) String() string       { return string(id) }
func (id ConnectionID) String() string { return string(id) }

const (
	requestPrefix    = "req"
	spanPrefix       = "span"
	connectionPrefix = "conn"
)

// Generator produces ULIDs from a single entropy source.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source, for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

func (g *Generator) withPrefix(prefix string) string {
	return prefix + "_" + g.GenerateString()
}

// NewRequestID generates a prefixed request identifier.
func NewRequestID() RequestID {
	return RequestID(Default().withPrefix(requestPrefix))
}

// NewSpanID generates a prefixed span identifier.
func NewSpanID() SpanID {
	return SpanID(Default().withPrefix(spanPrefix))
}

// NewConnectionID generates a prefixed connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().withPrefix(connectionPrefix))
}

// IsValid reports whether s parses as a bare ULID.
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time from a bare ULID string.
func Timestamp(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
