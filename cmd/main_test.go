package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/config"
	"github.com/okian/skillboard/internal/domain/leaderboard"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const exportLines = `{"id":"m1","channel_id":"c1","author_id":"269715475410190346","author_name":"Wordle","content":"Here are yesterday's results:\n<@1>\n<@2>","posted_at":"2024-01-01T09:00:00Z"}
{"id":"m2","channel_id":"c1","author_id":"42","author_name":"someone","content":"nice results: everyone","posted_at":"2024-01-01T10:00:00Z"}
{"id":"m3","channel_id":"c1","author_id":"269715475410190346","author_name":"Wordle","content":"Here are yesterday's results:\n<@2>\n<@1> <@3>","posted_at":"2024-01-02T09:00:00Z"}
`

func runCLI(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.RunContext(ctx, append([]string{"skillboard"}, args...))
	return out.String(), err
}

// startServer runs the API over the configured store, the way serve does,
// and points the CLI at it.
func startServer(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w, err := newService(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(newMux(ctx, w.svc))
	t.Cleanup(func() {
		srv.Close()
		_ = w.close(ctx)
	})
	t.Setenv("SKILLBOARD_SERVER_URL", srv.URL)
}

func TestCommands(t *testing.T) {
	convey.Convey("Given a running server over a file backed store and a channel export", t, func() {
		convey.So(logger.InitWithWriter(io.Discard), convey.ShouldBeNil)
		ctx := context.Background()
		dir := t.TempDir()
		t.Setenv("SKILLBOARD_CONFIG", "")
		t.Setenv("SKILLBOARD_DB_DRIVER", "sqlite")
		t.Setenv("SKILLBOARD_PARSE_MODE", "line")
		t.Setenv("SKILLBOARD_DB_DSN", "file:"+filepath.Join(dir, "skillboard.db")+"?_pragma=busy_timeout(5000)")
		startServer(t)

		export := filepath.Join(dir, "export.jsonl")
		convey.So(os.WriteFile(export, []byte(exportLines), 0o600), convey.ShouldBeNil)

		convey.Convey("When the leaderboard is printed before any report", func() {
			out, err := runCLI(ctx, "leaderboard")
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.TrimSpace(out), convey.ShouldEqual, leaderboard.EmptyText)
		})

		convey.Convey("When the export is ingested", func() {
			out, err := runCLI(ctx, "ingest", export)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldEqual, "accepted=2 ignored=1 duplicate=0\n")

			boardJSON, err := runCLI(ctx, "leaderboard", "--json")
			convey.So(err, convey.ShouldBeNil)
			var before leaderboard.Board
			convey.So(json.Unmarshal([]byte(boardJSON), &before), convey.ShouldBeNil)
			convey.So(len(before.Entries), convey.ShouldEqual, 3)

			convey.Convey("Then a rebuild from the journal reproduces the board", func() {
				out, err := runCLI(ctx, "rebuild")
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldStartWith, "rebuild done:")
				convey.So(out, convey.ShouldContainSubstring, "applied=2")

				again, err := runCLI(ctx, "leaderboard", "--json")
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldEqual, boardJSON)
			})

			convey.Convey("Then ingesting again applies nothing twice", func() {
				_, err := runCLI(ctx, "ingest", export)
				convey.So(err, convey.ShouldBeNil)

				again, err := runCLI(ctx, "leaderboard", "--json")
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldEqual, boardJSON)
			})
		})

		convey.Convey("When ingest is called without a file", func() {
			_, err := runCLI(ctx, "ingest")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a rebuild runs over an empty journal", func() {
			out, err := runCLI(ctx, "rebuild", "--channel", "c1")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldStartWith, "rebuild done:")
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("SKILLBOARD_PARSE_MODE", "points")
			_, err := runCLI(ctx, "leaderboard")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestCommands_NoServer(t *testing.T) {
	convey.Convey("Given no server listening", t, func() {
		convey.So(logger.InitWithWriter(io.Discard), convey.ShouldBeNil)
		ctx := context.Background()
		dir := t.TempDir()
		t.Setenv("SKILLBOARD_CONFIG", "")
		t.Setenv("SKILLBOARD_DB_DSN", "file:"+filepath.Join(dir, "skillboard.db"))
		export := filepath.Join(dir, "export.jsonl")
		convey.So(os.WriteFile(export, []byte(exportLines), 0o600), convey.ShouldBeNil)

		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		convey.Convey("Then rebuild and ingest fail without touching the store", func() {
			_, err := runCLI(ctx, "rebuild", "--server", addr)
			convey.So(errors.Is(err, service.ErrUnavailable), convey.ShouldBeTrue)
			_, err = runCLI(ctx, "ingest", "--server", addr, export)
			convey.So(errors.Is(err, service.ErrUnavailable), convey.ShouldBeTrue)

			_, err = os.Stat(filepath.Join(dir, "skillboard.db"))
			convey.So(errors.Is(err, os.ErrNotExist), convey.ShouldBeTrue)
		})
	})
}

func TestNewApp(t *testing.T) {
	convey.Convey("Given the CLI app", t, func() {
		app := newApp()

		convey.Convey("Then every command is registered", func() {
			var names []string
			for _, c := range app.Commands {
				names = append(names, c.Name)
			}
			convey.So(names, convey.ShouldResemble, []string{"serve", "leaderboard", "rebuild", "ingest"})
		})
	})
}
