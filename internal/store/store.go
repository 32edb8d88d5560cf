// Package store keeps normalized analysis results. Stores are append-only:
// a record is never updated or removed once appended.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("result not found")

// ResultStore is the append-only collection of results.
type ResultStore interface {
	// Append validates and stores r. Invalid records are rejected and the
	// store is left unchanged.
	Append(ctx context.Context, r core.NormalizedResult) error

	// List returns every record, oldest first.
	List(ctx context.Context) ([]core.NormalizedResult, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (core.NormalizedResult, error)
}
