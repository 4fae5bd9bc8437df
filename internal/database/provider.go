package database

import (
	"context"
	"errors"
)

// HNSWRebuilder is implemented by repositories that keep an in-memory HNSW index
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index from the datastore
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
}

// Backend bundles the stores a process works with. It is built once at startup
// and handed to the components that need it.
type Backend struct {
	Biometrics BiometricWriter
	Attendance AttendanceStore
	Classes    ClassStore
	Stats      StatsStore

	closer func() error
}

// NewBackend wires the stores together. closer may be nil.
func NewBackend(biometrics BiometricWriter, attendance AttendanceStore, classes ClassStore, stats StatsStore, closer func() error) *Backend {
	return &Backend{
		Biometrics: biometrics,
		Attendance: attendance,
		Classes:    classes,
		Stats:      stats,
		closer:     closer,
	}
}

// Validate fails when a store is missing.
func (b *Backend) Validate() error {
	if b.Biometrics == nil || b.Attendance == nil || b.Classes == nil || b.Stats == nil {
		return errors.New("backend is missing a store")
	}
	return nil
}

// HNSW returns the biometric store's index controls, or nil when it has none.
func (b *Backend) HNSW() HNSWRebuilder {
	if r, ok := b.Biometrics.(HNSWRebuilder); ok {
		return r
	}
	return nil
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
