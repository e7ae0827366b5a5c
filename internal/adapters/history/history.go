// Package history provides message-history sources for rebuilding ratings.
package history

import (
	"context"
	"sort"

	"github.com/okian/skillboard/internal/domain/model"
)

// Source yields historical messages oldest first.
type Source interface {
	Messages(ctx context.Context) ([]model.Message, error)
}

// Option filters the messages a source yields.
type Option func(*filter)

type filter struct {
	channelID string
}

// WithChannel restricts a source to one channel.
func WithChannel(id string) Option {
	return func(f *filter) { f.channelID = id }
}

func newFilter(opts []Option) filter {
	var f filter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f filter) apply(msgs []model.Message) []model.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if f.channelID != "" && m.ChannelID != f.channelID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PostedAt.Before(out[j].PostedAt)
	})
	return out
}
