package audit

import (
	"context"
)

// Store is the persistence abstraction for the priority audit log.
//
// Append must be cheap and must never be allowed to fail a recompute: the
// queue engine logs and drops append errors.
type Store interface {
	// Append persists a Record, assigning ID/CreatedAt when unset.
	Append(ctx context.Context, rec *Record) error

	// QueryRecords retrieves records matching q, newest first.
	QueryRecords(ctx context.Context, q Query) ([]Record, error)

	// Ping validates the store is reachable/healthy.
	Ping(ctx context.Context) error
}
