// Package tx defines the transaction boundary contract. Domain services
// depend on Manager; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import "context"

// Manager runs a function inside a database transaction: commit on nil,
// rollback on error. A call made while a transaction is already active in
// ctx joins it rather than opening a new one, so services can compose
// (movement insert + lot decrement + period event) into one atomic unit.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
