// Package database holds the standard per-operation timeouts shared by
// every datastore call, so handlers never block on a stalled query or
// write indefinitely.
package database

import (
	"context"
	"time"
)

// Standard timeout durations for database operations.
const (
	// DefaultQueryTimeout is the timeout for read queries (fetchClientIds).
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout is the timeout for write operations (storeLogin).
	DefaultWriteTimeout = 10 * time.Second
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
