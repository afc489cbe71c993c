// Package storage defines the persistence port for trigger configuration and
// its file and SQLite adapters. Persistence is a full-snapshot overwrite on
// every mutation: the registry is the single owner of the data and the last
// writer wins.
package storage

import (
	"github.com/jeffkos/form-ease-sub004/internal/triggers"
)

// Store is the persistence port injected into the trigger registry
type Store interface {
	// Load returns all persisted triggers. An empty (not yet written)
	// store returns an empty slice and no error.
	Load() ([]*triggers.Trigger, error)

	// Save overwrites the persisted snapshot with the given trigger set
	Save(set []*triggers.Trigger) error

	Close() error
	Health() error
}

// SnapshotKey names the persisted trigger collection in both adapters
const SnapshotKey = "formease-triggers"
