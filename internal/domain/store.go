package domain

import "context"

// Store opens the transactional scope a backfill run works in.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one run's view of the relational store. Everything happens on a
// single connection inside one transaction; Close releases the connection
// and must be called on every exit path, after Commit or Rollback.
type Tx interface {
	// SelectPending returns up to limit rows lacking coordinates, ordered by id.
	SelectPending(ctx context.Context, limit int) ([]AddressRecord, error)

	// LoadCache reads every fingerprint cache entry. Negative entries map
	// to nil.
	LoadCache(ctx context.Context) (map[string]*Coordinates, error)

	// UpsertCache writes entries, overwriting existing keys wholesale.
	UpsertCache(ctx context.Context, entries []CacheEntry) error

	// UpdateCoordinates writes resolved pairs back to their rows by id.
	UpdateCoordinates(ctx context.Context, updates []CoordinateUpdate) error

	Commit() error
	Rollback() error
	Close() error
}
