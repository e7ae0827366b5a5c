// Package replay rebuilds the rating store by replaying every historical
// report through the engine, oldest first.
package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/skillboard/internal/domain/engine"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

// Source yields historical messages oldest first.
type Source interface {
	Messages(ctx context.Context) ([]model.Message, error)
}

// Resetter empties the rating store.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Processor applies one report as of a calendar day.
type Processor interface {
	Process(ctx context.Context, lines []string, today time.Time) (engine.Outcome, error)
}

// Summary describes a finished rebuild.
type Summary struct {
	Messages int           `json:"messages"`
	Reports  int           `json:"reports"`
	Applied  int           `json:"applied"`
	Noop     int           `json:"noop"`
	Rejected int           `json:"rejected"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Replayer resets the store and replays history. It must own the store for
// the whole run.
type Replayer struct {
	store      Resetter
	engine     Processor
	classifier *report.Classifier
	logger     logger.Logger
}

// New creates a Replayer.
func New(store Resetter, e Processor, opts ...Option) *Replayer {
	r := &Replayer{
		store:      store,
		engine:     e,
		classifier: report.NewClassifier(),
		logger:     logger.Get().Named("replay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rebuild discards every stored rating and replays src. Each report is
// processed with its posting day, so the result depends only on src.
func (r *Replayer) Rebuild(ctx context.Context, src Source) (Summary, error) {
	start := time.Now()
	sum, err := r.rebuild(ctx, src)
	sum.Duration = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		r.logger.Error(ctx, "rebuild failed", logger.Error(err), logger.Int("applied", sum.Applied))
	} else {
		r.logger.Info(ctx, "rebuild finished",
			logger.Int("messages", sum.Messages),
			logger.Int("reports", sum.Reports),
			logger.Int("rejected", sum.Rejected),
			logger.Any("duration", sum.Duration),
		)
	}
	metrics.RecordRebuild(outcome, sum.Duration.Seconds(), sum.Applied)
	return sum, err
}

func (r *Replayer) rebuild(ctx context.Context, src Source) (Summary, error) {
	var sum Summary

	msgs, err := src.Messages(ctx)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrHistory, err)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].PostedAt.Before(msgs[j].PostedAt)
	})
	sum.Messages = len(msgs)

	if err := r.store.Reset(ctx); err != nil {
		return sum, fmt.Errorf("%w: %w", ErrReset, err)
	}

	for _, msg := range msgs {
		switch r.classifier.Historical(msg) {
		case report.NotReport:
			sum.Skipped++
			continue
		case report.Rejected:
			sum.Rejected++
			r.logger.Warn(ctx, "history report rejected", logger.String("message_id", msg.ID))
			continue
		}
		sum.Reports++
		out, err := r.engine.Process(ctx, report.Lines(msg.Content), model.Day(msg.PostedAt))
		if err != nil {
			return sum, fmt.Errorf("%w %s: %w", ErrReplay, msg.ID, err)
		}
		if out.Noop {
			sum.Noop++
		} else {
			sum.Applied++
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}
	return sum, nil
}
