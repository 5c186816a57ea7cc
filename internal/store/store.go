// Package store persists the set of (user_id, client_id) login records
// the processor uses to compute fan-out targets.
package store

import "context"

// Store is the Datastore port. Implementations must make StoreLogin an
// idempotent upsert and FetchClientIDs duplicate-free; the processor
// depends only on this interface, never a concrete backend, so it can
// be exercised in tests with the in-memory implementation.
type Store interface {
	// StoreLogin records that uid has authenticated to clientID. Calling
	// it twice for the same pair must not error and must not create a
	// second logical record.
	StoreLogin(ctx context.Context, userID, clientID string) error

	// FetchClientIDs returns every client_id userID has logged into, in
	// unspecified order, with no duplicates.
	FetchClientIDs(ctx context.Context, userID string) ([]string, error)

	// Close releases any resources held by the store.
	Close()
}
