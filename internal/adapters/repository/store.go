// Package repository persists player ratings and the inbound message journal.
package repository

import (
	"context"

	"github.com/okian/skillboard/internal/domain/model"
)

// Store provides transactional access to the rating table.
type Store interface {
	// List returns every player rating ordered by player id.
	List(ctx context.Context) ([]model.PlayerRating, error)

	// Count returns the number of stored players.
	Count(ctx context.Context) (int, error)

	// WithTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Reset drops and recreates the rating table.
	Reset(ctx context.Context) error
}

// Tx is the write side of a rating transaction. Journal writes made
// through it commit or roll back with the rating writes.
type Tx interface {
	List(ctx context.Context) ([]model.PlayerRating, error)
	Insert(ctx context.Context, ratings ...model.PlayerRating) error
	Update(ctx context.Context, ratings ...model.PlayerRating) error

	Append(ctx context.Context, msg model.Message) (bool, error)
	Has(ctx context.Context, id string) (bool, error)
}

// Journal records inbound report messages so history can be replayed
// without the chat platform.
type Journal interface {
	// Append stores msg. It reports false when a message with the same id exists.
	Append(ctx context.Context, msg model.Message) (bool, error)
	// Has reports whether a message with id was journaled.
	Has(ctx context.Context, id string) (bool, error)
	// Messages returns every journaled message, oldest first.
	Messages(ctx context.Context) ([]model.Message, error)
}
