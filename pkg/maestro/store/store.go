// Package store persists workflow documents as JSON.
//
// Workflows are addressed by name. Names carry the "maestro_" prefix and a
// ".json" extension; Save and Load normalize bare names so callers can use
// either form.
package store

import (
	"errors"
	"strings"
	"time"
)

// Prefix marks files managed by maestro inside a shared directory.
const Prefix = "maestro_"

// Ext is the workflow file extension.
const Ext = ".json"

// Store persists workflow documents.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a workflow document under a name.
	// Overwrites if the name already exists.
	Save(name string, data []byte) error

	// Load retrieves a workflow document.
	// Returns ErrNotFound if the workflow doesn't exist.
	Load(name string) ([]byte, error)

	// List returns all stored workflows, ordered by name.
	// Returns empty slice (not error) when the store is empty.
	List() ([]Info, error)

	// Delete removes a workflow.
	// Returns nil if the workflow doesn't exist.
	Delete(name string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the full document.
type Info struct {
	Name      string
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a workflow doesn't exist.
	ErrNotFound = errors.New("workflow not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("workflow store closed")
)

// CanonicalName normalizes a workflow name: adds the maestro_ prefix and
// the .json extension when missing.
func CanonicalName(name string) string {
	if !strings.HasPrefix(name, Prefix) {
		name = Prefix + name
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return name
}
