package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/skillboard/internal/adapters/http/api"
	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/domain/leaderboard"
	"github.com/okian/skillboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDependencies struct {
	submitted  []model.Message
	submission model.Submission
	submitErr  error

	board    leaderboard.Board
	boardErr error

	rebuildChannel string
	rebuildErr     error
	jobs           map[string]model.JobStatus
}

func (m *mockDependencies) Submit(_ context.Context, msg model.Message) (model.Submission, error) {
	m.submitted = append(m.submitted, msg)
	return m.submission, m.submitErr
}

func (m *mockDependencies) Leaderboard(context.Context) (leaderboard.Board, error) {
	return m.board, m.boardErr
}

func (m *mockDependencies) RequestRebuild(_ context.Context, channelID string) (model.JobStatus, error) {
	m.rebuildChannel = channelID
	if m.rebuildErr != nil {
		return model.JobStatus{}, m.rebuildErr
	}
	return model.JobStatus{ID: "job-1", Kind: model.JobRebuild, State: model.JobPending}, nil
}

func (m *mockDependencies) Job(_ context.Context, id string) (model.JobStatus, error) {
	st, ok := m.jobs[id]
	if !ok {
		return model.JobStatus{}, service.ErrJobNotFound
	}
	return st, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any { return m.stats }

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then health and metrics are served", func() {
			So(do(mux, "GET", "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then unknown paths and wrong methods are refused", func() {
			So(do(mux, "GET", "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, "GET", "/messages", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestMessagesHandler(t *testing.T) {
	Convey("Given the messages endpoint", t, func() {
		deps := &mockDependencies{submission: model.Submission{Status: model.SubmitAccepted, JobID: "j1"}}
		mux := newMux(deps)
		body := `{"id":"m1","channel_id":"c1","author_id":"269715475410190346","content":"results:\n<@1>","posted_at":"2024-01-01T10:00:00Z"}`

		Convey("When a report is posted", func() {
			w := do(mux, "POST", "/messages", body)

			Convey("Then it is accepted for processing", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var res model.Submission
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.JobID, ShouldEqual, "j1")
				So(deps.submitted[0].PostedAt.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the message is ignored or a duplicate", func() {
			deps.submission = model.Submission{Status: model.SubmitDuplicate}
			w := do(mux, "POST", "/messages", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate"`)
		})

		Convey("When the body is malformed", func() {
			So(do(mux, "POST", "/messages", "{").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, "POST", "/messages", `{"content":"x"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("When the service pushes back", func() {
			cases := []struct {
				err  error
				code int
			}{
				{err: fmt.Errorf("%w: full", service.ErrBusy), code: http.StatusTooManyRequests},
				{err: fmt.Errorf("%w: x", service.ErrUnavailable), code: http.StatusServiceUnavailable},
				{err: service.ErrInvalidMessage, code: http.StatusBadRequest},
				{err: errors.New("disk on fire"), code: http.StatusInternalServerError},
			}
			for _, tc := range cases {
				deps.submitErr = tc.err
				So(do(mux, "POST", "/messages", body).Code, ShouldEqual, tc.code)
			}
		})
	})
}

func TestLeaderboardHandler(t *testing.T) {
	Convey("Given the leaderboard endpoint", t, func() {
		deps := &mockDependencies{board: leaderboard.Board{Entries: []leaderboard.Entry{
			{Rank: 1, PlayerID: 2, Mu: 26, Sigma: 1, Score: 23},
		}}}
		mux := newMux(deps)

		Convey("When JSON is requested", func() {
			w := do(mux, "GET", "/leaderboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var b leaderboard.Board
			So(json.Unmarshal(w.Body.Bytes(), &b), ShouldBeNil)
			So(b.Entries[0].PlayerID, ShouldEqual, 2)
			So(w.Body.String(), ShouldContainSubstring, `"player_id":"2"`)
		})

		Convey("When text is requested", func() {
			w := do(mux, "GET", "/leaderboard?format=text", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "**Leaderboard**\n1. <@2> — score: 23.0 | μ: 26.0, σ: 1.00")

			w = do(mux, "GET", "/leaderboard", "", "Accept", "text/plain")
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/plain")
		})

		Convey("When the board is empty", func() {
			deps.board = leaderboard.Board{Entries: []leaderboard.Entry{}, Empty: true}
			So(do(mux, "GET", "/leaderboard?format=text", "").Body.String(), ShouldEqual, leaderboard.EmptyText)
			So(do(mux, "GET", "/leaderboard", "").Body.String(), ShouldContainSubstring, `"empty":true`)
		})

		Convey("When the store fails", func() {
			deps.boardErr = errors.New("boom")
			So(do(mux, "GET", "/leaderboard", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestRebuildHandler(t *testing.T) {
	Convey("Given the rebuild endpoints", t, func() {
		deps := &mockDependencies{jobs: map[string]model.JobStatus{
			"job-1": {ID: "job-1", Kind: model.JobRebuild, State: model.JobDone, Detail: "reports=3"},
		}}
		mux := newMux(deps)

		Convey("When a rebuild is requested", func() {
			w := do(mux, "POST", "/rebuild", `{"channel_id":"c9"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Header().Get("Location"), ShouldEqual, "/jobs/job-1")
			So(deps.rebuildChannel, ShouldEqual, "c9")
		})

		Convey("When the body is omitted", func() {
			So(do(mux, "POST", "/rebuild", "").Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("When a rebuild is already queued", func() {
			deps.rebuildErr = service.ErrRebuildInProgress
			So(do(mux, "POST", "/rebuild", "").Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When a job is looked up", func() {
			w := do(mux, "GET", "/jobs/job-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"state":"done"`)
			So(do(mux, "GET", "/jobs/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: bad request: eof")
		So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
	})
}
