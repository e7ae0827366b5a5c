package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/skillboard/internal/adapters/history"
	"github.com/okian/skillboard/internal/adapters/http/api"
	"github.com/okian/skillboard/internal/adapters/http/client"
	"github.com/okian/skillboard/internal/adapters/http/swagger"
	"github.com/okian/skillboard/internal/adapters/mq/natsub"
	"github.com/okian/skillboard/internal/adapters/notify"
	"github.com/okian/skillboard/internal/adapters/repository"
	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/config"
	"github.com/okian/skillboard/internal/domain/leaderboard"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/rating"
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
	ingestBackoff          = 20 * time.Millisecond
	jobPollInterval        = 50 * time.Millisecond
)

// wired is a service and the store it owns.
type wired struct {
	svc   *service.Service
	store *repository.SQLStore
}

// close stops the writer, waiting for queued jobs, then closes the store.
func (w *wired) close(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(w.svc.Stop(stopCtx), w.store.Close())
}

// newService opens the store and builds the service from cfg. Only serve
// starts the writer.
func newService(ctx context.Context, cfg *config.Config) (*wired, error) {
	log := logger.Get()

	m, err := rating.New(cfg.Model)
	if err != nil {
		return nil, err
	}
	p, err := report.NewParser(report.Mode(cfg.ParseMode))
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	classifier := report.NewClassifier(
		report.WithAuthorID(cfg.ReportAuthorID),
		report.WithAuthorName(cfg.ReportAuthorName),
		report.WithMarker(cfg.ReportMarker),
	)

	var notifier notify.Notifier = notify.NewLog(log.Named("notify"))
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL,
			notify.WithRate(cfg.WebhookRatePerSec, 1),
			notify.WithWebhookLogger(log.Named("notify.webhook")),
		)
	}

	var src history.Source = history.NewJournal(store)
	if cfg.HistoryFile != "" {
		src = history.NewFile(cfg.HistoryFile)
	}

	svc := service.New(store, m, p,
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDecayAmount(cfg.DecayAmount),
		service.WithMinMu(cfg.MinMu),
		service.WithClassifier(classifier),
		service.WithNotifier(notifier),
		service.WithHistorySource(src),
		service.WithReplyWithLeaderboard(cfg.ReplyWithLeaderboard),
		service.WithLogger(log.Named("service")),
	)
	log.Debug(ctx, "service wired",
		logger.String("db_driver", cfg.DBDriver),
		logger.String("model", cfg.Model),
		logger.String("parse_mode", cfg.ParseMode),
	)
	return &wired{svc: svc, store: store}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and optional NATS subscriber",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			w, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := w.close(ctx); err != nil {
					logger.Get().Error(ctx, "service shutdown failed", logger.Error(err))
				}
			}()
			if err := w.svc.Start(ctx); err != nil {
				return err
			}

			if cfg.NATSURL != "" {
				sub := natsub.New(cfg.NATSURL, w.svc,
					natsub.WithSubject(cfg.NATSSubject),
					natsub.WithQueueGroup(cfg.NATSQueueGroup),
				)
				if err := sub.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = sub.Close() }()
			}

			go startServiceMetricsUpdater(ctx, w.svc)

			return serveHTTP(ctx, cfg.Addr, newMux(ctx, w.svc))
		},
	}
}

// newMux routes the API and its docs to svc.
func newMux(ctx context.Context, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	log := logger.Get()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info(ctx, "server stopped")
	return nil
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "print the current leaderboard",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print as JSON"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			w, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = w.close(ctx) }()

			board, err := w.svc.Leaderboard(ctx)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(board)
			}
			_, err = fmt.Fprintln(c.App.Writer, board.Render(leaderboard.DefaultTitle))
			return err
		},
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "ask the running server to reset ratings and replay the message history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "channel", Usage: "channel id that receives the acknowledgements"},
			serverFlag(),
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cl, err := serverClient(c)
			if err != nil {
				return err
			}

			st, err := cl.RequestRebuild(ctx, c.String("channel"))
			if err != nil {
				return err
			}
			// An interrupt stops waiting; the server keeps the job.
			st, err = cl.WaitJob(ctx, st.ID, jobPollInterval)
			if err != nil {
				return err
			}
			return printJob(c, st)
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "post messages from a JSON-lines export to the running server as live deliveries",
		ArgsUsage: "<file>",
		Flags:     []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			if c.NArg() != 1 {
				return errors.New("ingest needs exactly one file argument")
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			msgs, err := history.Decode(ctx, f)
			if err != nil {
				return err
			}

			cl, err := serverClient(c)
			if err != nil {
				return err
			}
			counts, last, err := submitAll(ctx, cl, msgs)
			if err != nil {
				return err
			}
			// The writer applies jobs in order, so the last one finishing
			// means every accepted report has been applied.
			if last != "" {
				if _, err := cl.WaitJob(ctx, last, jobPollInterval); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(c.App.Writer, "accepted=%d ignored=%d duplicate=%d\n",
				counts[model.SubmitAccepted], counts[model.SubmitIgnored], counts[model.SubmitDuplicate])
			return err
		},
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{Name: "server", Usage: "base URL of the running server (default: server_url)"}
}

// serverClient returns a client for the server named by --server or the
// server_url setting.
func serverClient(c *cli.Context) (*client.Client, error) {
	cfg, err := loadConfig(c.Context)
	if err != nil {
		return nil, err
	}
	addr := cfg.ServerURL
	if v := c.String("server"); v != "" {
		addr = v
	}
	return client.New(addr), nil
}

// submitAll offers msgs in order and tallies the outcomes. A full mailbox
// is waited out. It returns the id of the last accepted job.
func submitAll(ctx context.Context, cl *client.Client, msgs []model.Message) (map[model.SubmitStatus]int, string, error) {
	counts := make(map[model.SubmitStatus]int)
	var last string
	for _, msg := range msgs {
		res, err := cl.Submit(ctx, msg)
		for errors.Is(err, service.ErrBusy) {
			select {
			case <-ctx.Done():
				return counts, last, ctx.Err()
			case <-time.After(ingestBackoff):
			}
			res, err = cl.Submit(ctx, msg)
		}
		if err != nil {
			return counts, last, fmt.Errorf("submit %s: %w", msg.ID, err)
		}
		counts[res.Status]++
		if res.Status == model.SubmitAccepted {
			last = res.JobID
		}
	}
	return counts, last, nil
}

func printJob(c *cli.Context, st model.JobStatus) error { //nolint:gocritic // hugeParam: status is printed once
	if st.State == model.JobFailed {
		return fmt.Errorf("job %s failed: %s", st.ID, st.Error)
	}
	_, err := fmt.Fprintf(c.App.Writer, "%s %s: %s\n", st.Kind, st.State, st.Detail)
	return err
}

// startServiceMetricsUpdater refreshes queue and player gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if capacity, ok := stats["queueCapacity"].(int); ok {
		metrics.UpdateQueueCapacity(capacity)
	}
}
