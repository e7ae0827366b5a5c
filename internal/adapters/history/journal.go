package history

import (
	"context"

	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/model"
)

// Journal reads history from the message journal kept by the store.
type Journal struct {
	journal repository.Journal
	filter  filter
}

// NewJournal creates a journal-backed Source.
func NewJournal(j repository.Journal, opts ...Option) *Journal {
	return &Journal{journal: j, filter: newFilter(opts)}
}

// Messages implements Source.
func (j *Journal) Messages(ctx context.Context) ([]model.Message, error) {
	msgs, err := j.journal.Messages(ctx)
	if err != nil {
		return nil, err
	}
	return j.filter.apply(msgs), nil
}
