// Package engine applies one result report to the rating store.
//
// Process is a load-modify-commit sequence and is not safe under
// interleaving; callers serialize it (the app runs it on a single worker).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/rating"
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

// Decay defaults.
const (
	DefaultDecayAmount = 1.0
	MinMu              = 1.0
)

// Outcome summarizes what one Process call changed.
type Outcome struct {
	Tiers   int
	New     int
	Updated int
	Decayed int
	Noop    bool
}

// Engine turns report lines into committed rating changes.
type Engine struct {
	store  repository.Store
	model  rating.Model
	parser report.Parser
	logger logger.Logger
	decay  float64
	minMu  float64
}

// New creates an Engine.
func New(store repository.Store, m rating.Model, p report.Parser, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		model:  m,
		parser: p,
		logger: logger.Get().Named("engine"),
		decay:  DefaultDecayAmount,
		minMu:  MinMu,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TxFunc runs inside the report transaction after the rating writes. An
// error rolls the whole report back.
type TxFunc func(ctx context.Context, tx repository.Tx, out Outcome) error

// Process applies the report given by lines as of the calendar day today.
// All writes commit together or not at all.
func (e *Engine) Process(ctx context.Context, lines []string, today time.Time) (Outcome, error) {
	return e.ProcessWith(ctx, lines, today, nil)
}

// ProcessWith is Process with then joined to the same transaction.
func (e *Engine) ProcessWith(ctx context.Context, lines []string, today time.Time, then TxFunc) (Outcome, error) {
	start := time.Now()
	// a report is atomic; once started it is not abandoned halfway
	ctx = context.WithoutCancel(ctx)
	today = model.Day(today)

	var out Outcome
	err := e.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = e.apply(ctx, tx, lines, today)
		if err != nil || then == nil {
			return err
		}
		return then(ctx, tx, out)
	})
	if err != nil {
		metrics.RecordReportFailed()
		e.logger.Error(ctx, "report rolled back", logger.Error(err))
		return Outcome{}, fmt.Errorf("%w: %w", ErrProcess, err)
	}

	if out.Noop {
		metrics.RecordReportNoop()
		e.logger.Debug(ctx, "no-op report", logger.Int("lines", len(lines)))
		return out, nil
	}
	metrics.RecordReportProcessed(float64(time.Since(start).Milliseconds()))
	metrics.RecordPlayersCreated(out.New)
	metrics.RecordPlayersDecayed(out.Decayed)
	e.logger.Info(ctx, "report applied",
		logger.String("day", today.Format(model.DateLayout)),
		logger.Int("tiers", out.Tiers),
		logger.Int("new", out.New),
		logger.Int("updated", out.Updated),
		logger.Int("decayed", out.Decayed),
	)
	return out, nil
}

func (e *Engine) apply(ctx context.Context, tx repository.Tx, lines []string, today time.Time) (Outcome, error) {
	known, err := tx.List(ctx)
	if err != nil {
		return Outcome{}, err
	}
	byID := make(map[int64]model.PlayerRating, len(known))
	for _, r := range known {
		byID[r.PlayerID] = r
	}

	res := e.parser.Parse(lines)

	var fresh []int64
	for _, id := range res.Seen {
		if _, ok := byID[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	if res.Empty() {
		return Outcome{Noop: true}, nil
	}

	prior := e.model.Default()
	input := make([][]rating.Rating, len(res.Tiers))
	for i, tier := range res.Tiers {
		input[i] = make([]rating.Rating, len(tier))
		for j, id := range tier {
			if r, ok := byID[id]; ok {
				input[i][j] = rating.Rating{Mu: r.Mu, Sigma: r.Sigma}
			} else {
				input[i][j] = prior
			}
		}
	}

	rated, err := e.model.Rate(input)
	if err != nil {
		return Outcome{}, fmt.Errorf("rate %d tiers: %w", len(input), err)
	}
	if len(rated) != len(input) {
		return Outcome{}, ErrShape
	}

	var inserts, updates []model.PlayerRating
	isNew := make(map[int64]bool, len(fresh))
	for _, id := range fresh {
		isNew[id] = true
	}
	for i, tier := range res.Tiers {
		if len(rated[i]) != len(tier) {
			return Outcome{}, fmt.Errorf("%w: tier %d", ErrShape, i)
		}
		for j, id := range tier {
			pr := model.PlayerRating{
				PlayerID:   id,
				Mu:         rated[i][j].Mu,
				Sigma:      rated[i][j].Sigma,
				LastActive: today,
			}
			if isNew[id] {
				inserts = append(inserts, pr)
			} else {
				updates = append(updates, pr)
			}
		}
	}

	var decayed []model.PlayerRating
	for _, r := range known {
		if res.Contains(r.PlayerID) {
			continue
		}
		r.Mu = max(r.Mu-e.decay, e.minMu)
		decayed = append(decayed, r)
	}

	if err := tx.Insert(ctx, inserts...); err != nil {
		return Outcome{}, err
	}
	if err := tx.Update(ctx, updates...); err != nil {
		return Outcome{}, err
	}
	if err := tx.Update(ctx, decayed...); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Tiers:   len(res.Tiers),
		New:     len(inserts),
		Updated: len(updates),
		Decayed: len(decayed),
	}, nil
}
