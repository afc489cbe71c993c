// Package utils provides ID generation, retry, and time helpers shared by the
// automation core.
package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// NewID returns a collision-resistant identifier suitable for triggers and
// integration instances
func NewID() string {
	return cuid.New()
}

// NewUUID returns a random RFC 4122 UUID string
func NewUUID() string {
	return uuid.NewString()
}

// GenerateEventID generates a unique event ID in the form
// "prefix-scope-timestampNanos"
func GenerateEventID(prefix, scope string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, scope, time.Now().UnixNano())
}
