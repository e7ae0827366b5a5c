// Package service wires the rating engine, replayer and projector behind the
// single-writer mailbox and exposes the operations used by the transports.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skillboard/internal/adapters/history"
	"github.com/okian/skillboard/internal/adapters/mq/queue"
	"github.com/okian/skillboard/internal/adapters/mq/worker"
	"github.com/okian/skillboard/internal/adapters/notify"
	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/dedupe"
	"github.com/okian/skillboard/internal/domain/engine"
	"github.com/okian/skillboard/internal/domain/leaderboard"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/rating"
	"github.com/okian/skillboard/internal/domain/replay"
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

// Chat acknowledgements for a rebuild.
const (
	RebuildStartedText  = "Recalculating leaderboard from history..."
	RebuildFinishedText = "Leaderboard rebuilt."
	RebuildFailedText   = "Leaderboard rebuild failed."
)

// Storage is the persistence the service needs.
type Storage interface {
	repository.Store
	repository.Journal
}

// Service implements the API and CLI dependencies.
type Service struct {
	mu sync.RWMutex

	store      Storage
	classifier *report.Classifier
	engine     *engine.Engine
	replayer   *replay.Replayer
	projector  *leaderboard.Projector
	deduper    dedupe.Deduper
	queue      *queue.InMemoryQueue
	worker     *worker.Worker
	notifier   notify.Notifier
	history    replay.Source
	jobs       *jobRegistry

	queueSize   int
	dedupeSize  int
	decayAmount float64
	minMu       float64
	reply       bool
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the mailbox capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many message ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDecayAmount sets the per-report decay of absent players.
func WithDecayAmount(amount float64) Option {
	return func(s *Service) {
		if amount >= 0 {
			s.decayAmount = amount
		}
	}
}

// WithMinMu sets the floor decay never pushes mu below.
func WithMinMu(floor float64) Option {
	return func(s *Service) {
		if floor >= 0 {
			s.minMu = floor
		}
	}
}

// WithClassifier sets the report classifier.
func WithClassifier(c *report.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithNotifier sets where acknowledgements and replies go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithHistorySource sets the history replayed by a rebuild. The message
// journal is used by default.
func WithHistorySource(src replay.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.history = src
		}
	}
}

// WithReplyWithLeaderboard posts the leaderboard after every applied report.
func WithReplyWithLeaderboard(enabled bool) Option {
	return func(s *Service) { s.reply = enabled }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service over store using the given model and parser.
func New(store Storage, m rating.Model, p report.Parser, opts ...Option) *Service {
	s := &Service{
		store:       store,
		classifier:  report.NewClassifier(),
		queueSize:   1024,
		dedupeSize:  10000,
		decayAmount: engine.DefaultDecayAmount,
		minMu:       engine.MinMu,
		now:         time.Now,
		jobs:        newJobRegistry(0),
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(s.logger.Named("notify"))
	}
	if s.history == nil {
		s.history = history.NewJournal(store)
	}

	s.engine = engine.New(store, m, p, engine.WithDecayAmount(s.decayAmount), engine.WithMinMu(s.minMu))
	s.replayer = replay.New(store, s.engine, replay.WithClassifier(s.classifier))
	s.projector = leaderboard.New(store, m)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.worker = worker.NewWorker(s.queue, worker.HandlerFunc(s.handle), worker.WithName("writer"))
	return s
}

// Start launches the single writer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
	go s.worker.Run(context.WithoutCancel(ctx))
	s.started = true
	s.logger.Info(ctx, "skillboard service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("decayAmount", s.decayAmount),
	)
	return nil
}

// Stop closes the mailbox and waits for pending jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.queue.Close()
	if !s.started {
		return nil
	}
	err := s.worker.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "skillboard service stopped")
	return err
}

// Submit offers an inbound chat message. Reports are queued for the writer;
// anything else is ignored.
func (s *Service) Submit(ctx context.Context, msg model.Message) (model.Submission, error) {
	if msg.ID == "" {
		return model.Submission{}, fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if msg.PostedAt.IsZero() {
		msg.PostedAt = s.now().UTC()
	}
	if s.classifier.Live(msg) != report.Report {
		metrics.RecordMessageIgnored("not_report")
		return model.Submission{Status: model.SubmitIgnored, Reason: "not a report"}, nil
	}
	if s.deduper.SeenAndRecord(ctx, msg.ID) {
		metrics.RecordMessageDuplicate()
		return model.Submission{Status: model.SubmitDuplicate}, nil
	}

	job := model.Job{ID: uuid.NewString(), Kind: model.JobReport, ChannelID: msg.ChannelID, Message: msg}
	if err := s.enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, msg.ID)
		return model.Submission{}, err
	}
	s.logger.Debug(ctx, "report queued", logger.String("message_id", msg.ID), logger.String("job_id", job.ID))
	return model.Submission{Status: model.SubmitAccepted, JobID: job.ID}, nil
}

// RequestRebuild queues a full rebuild. Only one rebuild may be pending.
func (s *Service) RequestRebuild(ctx context.Context, channelID string) (model.JobStatus, error) {
	job := model.Job{ID: uuid.NewString(), Kind: model.JobRebuild, ChannelID: channelID}
	if !s.jobs.addExclusive(job.ID, job.Kind, s.now()) {
		return model.JobStatus{}, ErrRebuildInProgress
	}
	if err := s.push(ctx, job); err != nil {
		return model.JobStatus{}, err
	}
	st, _ := s.jobs.get(job.ID)
	return st, nil
}

func (s *Service) enqueue(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	s.jobs.add(job.ID, job.Kind, s.now())
	return s.push(ctx, job)
}

// push hands a registered job to the writer, forgetting it when refused.
func (s *Service) push(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.jobs.remove(job.ID)
		if errors.Is(err, queue.ErrFull) {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Job returns the status of a queued job.
func (s *Service) Job(_ context.Context, id string) (model.JobStatus, error) {
	st, ok := s.jobs.get(id)
	if !ok {
		return model.JobStatus{}, ErrJobNotFound
	}
	return st, nil
}

// Leaderboard projects the current ratings.
func (s *Service) Leaderboard(ctx context.Context) (leaderboard.Board, error) {
	return s.projector.Project(ctx)
}

// handle runs on the single writer.
func (s *Service) handle(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	s.jobs.running(job.ID)

	var (
		detail string
		err    error
	)
	switch job.Kind {
	case model.JobReport:
		detail, err = s.applyReport(ctx, job)
	case model.JobRebuild:
		detail, err = s.rebuild(ctx, job)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind)
	}
	s.jobs.finish(job.ID, detail, err, s.now())
	return err
}

func (s *Service) applyReport(ctx context.Context, job model.Job) (string, error) { //nolint:gocritic // hugeParam: jobs travel by value
	msg := job.Message

	seen, err := s.store.Has(ctx, msg.ID)
	if err != nil {
		s.deduper.Unrecord(ctx, msg.ID)
		return "", err
	}
	if seen {
		metrics.RecordMessageDuplicate()
		return "already applied", nil
	}

	out, err := s.engine.ProcessWith(ctx, report.Lines(msg.Content), msg.PostedAt,
		func(ctx context.Context, tx repository.Tx, _ engine.Outcome) error {
			added, err := tx.Append(ctx, msg)
			if err != nil {
				return err
			}
			if !added {
				return fmt.Errorf("%w: %s", ErrAlreadyApplied, msg.ID)
			}
			return nil
		})
	if errors.Is(err, ErrAlreadyApplied) {
		metrics.RecordMessageDuplicate()
		return "already applied", nil
	}
	if err != nil {
		s.deduper.Unrecord(ctx, msg.ID)
		return "", err
	}
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}

	if out.Noop {
		return "no-op report", nil
	}
	if s.reply {
		s.replyLeaderboard(ctx, job.ChannelID)
	}
	return fmt.Sprintf("tiers=%d new=%d updated=%d decayed=%d", out.Tiers, out.New, out.Updated, out.Decayed), nil
}

func (s *Service) rebuild(ctx context.Context, job model.Job) (string, error) { //nolint:gocritic // hugeParam: jobs travel by value
	s.notify(ctx, job.ChannelID, RebuildStartedText)

	sum, err := s.replayer.Rebuild(ctx, s.history)
	if n, cerr := s.store.Count(ctx); cerr == nil {
		metrics.UpdatePlayersTotal(n)
	}
	if err != nil {
		s.notify(ctx, job.ChannelID, RebuildFailedText)
		return "", err
	}
	s.notify(ctx, job.ChannelID, RebuildFinishedText)
	return fmt.Sprintf("messages=%d reports=%d applied=%d rejected=%d", sum.Messages, sum.Reports, sum.Applied, sum.Rejected), nil
}

func (s *Service) replyLeaderboard(ctx context.Context, channelID string) {
	board, err := s.projector.Project(ctx)
	if err != nil {
		s.logger.Error(ctx, "leaderboard projection failed", logger.Error(err))
		return
	}
	s.notify(ctx, channelID, board.Render(leaderboard.UpdatedTitle))
}

func (s *Service) notify(ctx context.Context, channelID, text string) {
	if err := s.notifier.Notify(ctx, channelID, text); err != nil {
		s.logger.Warn(ctx, "notification failed", logger.String("channel_id", channelID), logger.Error(err))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"queueLength":   s.queue.Len(),
		"queueCapacity": s.queueSize,
		"dedupeEntries": s.deduper.Size(),
		"rebuilding":    s.jobs.active(model.JobRebuild),
	}
	if n, err := s.store.Count(context.Background()); err == nil {
		stats["players"] = n
		metrics.UpdatePlayersTotal(n)
	}
	return stats
}
