package replay_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/engine"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/rating"
	"github.com/okian/skillboard/internal/domain/replay"
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type sliceSource []model.Message

func (s sliceSource) Messages(context.Context) ([]model.Message, error) {
	out := make([]model.Message, len(s))
	copy(out, s)
	return out, nil
}

type failingSource struct{ err error }

func (f failingSource) Messages(context.Context) ([]model.Message, error) { return nil, f.err }

func newReplayer(t *testing.T) (*repository.SQLStore, *replay.Replayer) {
	t.Helper()
	if err := logger.InitWithWriter(io.Discard); err != nil {
		t.Fatal(err)
	}
	s, err := repository.Open(context.Background(), repository.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	e := engine.New(s, rating.NewPlackettLuce(), report.LineGrouped{})
	return s, replay.New(s, e, replay.WithClassifier(report.NewClassifier(report.WithAuthorID("bot"))))
}

// fakeHistory builds n daily reports over a small pool of players.
func fakeHistory(seed uint64, n int) sliceSource {
	f := gofakeit.New(seed)
	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	var out sliceSource
	for i := range n {
		var b strings.Builder
		b.WriteString("Here are yesterday's results:")
		for tier := range f.Number(1, 4) {
			b.WriteString(fmt.Sprintf("\n%d/6:", tier+2))
			for range f.Number(1, 3) {
				b.WriteString(fmt.Sprintf(" <@%d>", f.Number(1, 12)))
			}
		}
		out = append(out, model.Message{
			ID:       fmt.Sprintf("m%03d", i),
			AuthorID: "bot",
			Content:  b.String(),
			PostedAt: start.AddDate(0, 0, i),
		})
		if f.Bool() {
			out = append(out, model.Message{
				ID:       fmt.Sprintf("chat%03d", i),
				AuthorID: fmt.Sprint(f.Number(100, 200)),
				Content:  f.Sentence(f.Number(3, 8)),
				PostedAt: start.AddDate(0, 0, i).Add(time.Hour),
			})
		}
	}
	return out
}

func TestReplayer_Rebuild(t *testing.T) {
	Convey("Given a seeded history", t, func() {
		ctx := context.Background()
		s, r := newReplayer(t)
		history := fakeHistory(42, 30)

		Convey("When it is rebuilt twice", func() {
			sum, err := r.Rebuild(ctx, history)
			So(err, ShouldBeNil)
			So(sum.Reports, ShouldEqual, 30)
			So(sum.Applied, ShouldEqual, 30)
			first, err := s.List(ctx)
			So(err, ShouldBeNil)

			_, err = r.Rebuild(ctx, history)
			So(err, ShouldBeNil)
			second, err := s.List(ctx)
			So(err, ShouldBeNil)

			Convey("Then both runs produce the identical store", func() {
				So(len(first), ShouldBeGreaterThan, 0)
				So(cmp.Diff(first, second), ShouldBeEmpty)
			})
		})

		Convey("When live state drifted before the rebuild", func() {
			_, err := r.Rebuild(ctx, history)
			So(err, ShouldBeNil)
			clean, err := s.List(ctx)
			So(err, ShouldBeNil)

			e := engine.New(s, rating.NewBradleyTerry(), report.LineGrouped{})
			_, err = e.Process(ctx, []string{"<@500>", "<@1>"}, time.Now())
			So(err, ShouldBeNil)

			_, err = r.Rebuild(ctx, history)
			So(err, ShouldBeNil)
			again, err := s.List(ctx)
			So(err, ShouldBeNil)

			Convey("Then the drift is discarded", func() {
				So(cmp.Diff(clean, again), ShouldBeEmpty)
			})
		})

		Convey("When the history arrives shuffled", func() {
			_, err := r.Rebuild(ctx, history)
			So(err, ShouldBeNil)
			ordered, err := s.List(ctx)
			So(err, ShouldBeNil)

			reversed := make(sliceSource, len(history))
			for i, m := range history {
				reversed[len(history)-1-i] = m
			}
			_, err = r.Rebuild(ctx, reversed)
			So(err, ShouldBeNil)
			got, err := s.List(ctx)
			So(err, ShouldBeNil)

			Convey("Then posting time still decides the order", func() {
				So(cmp.Diff(ordered, got), ShouldBeEmpty)
			})
		})
	})
}

func TestReplayer_Rejection(t *testing.T) {
	Convey("Given history with a broken mention", t, func() {
		ctx := context.Background()
		s, r := newReplayer(t)
		t0 := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
		history := sliceSource{
			{ID: "1", AuthorID: "bot", Content: "results:\n3/6: <@1>\n4/6: <@2>", PostedAt: t0},
			{ID: "2", AuthorID: "bot", Content: "results:\n3/6: <@3> @someone\n4/6: <@1>", PostedAt: t0.AddDate(0, 0, 1)},
			{ID: "3", AuthorName: "Wordle", Content: "results:\n<@2>", PostedAt: t0.AddDate(0, 0, 2)},
			{ID: "4", AuthorID: "user", Content: "results: <@9>", PostedAt: t0.AddDate(0, 0, 3)},
		}

		sum, err := r.Rebuild(ctx, history)
		So(err, ShouldBeNil)

		Convey("Then the whole report is dropped", func() {
			So(sum.Rejected, ShouldEqual, 1)
			So(sum.Skipped, ShouldEqual, 1)
			So(sum.Reports, ShouldEqual, 2)

			list, err := s.List(ctx)
			So(err, ShouldBeNil)
			ids := make([]int64, len(list))
			for i, p := range list {
				ids[i] = p.PlayerID
			}
			So(ids, ShouldResemble, []int64{1, 2})
		})

		Convey("Then reports use their posting day", func() {
			list, err := s.List(ctx)
			So(err, ShouldBeNil)
			So(list[0].LastActive.Equal(model.Day(t0)), ShouldBeTrue)
			So(list[1].LastActive.Equal(model.Day(t0.AddDate(0, 0, 2))), ShouldBeTrue)
		})
	})
}

func TestReplayer_HistoryFailure(t *testing.T) {
	Convey("Given a rebuilt store", t, func() {
		ctx := context.Background()
		s, r := newReplayer(t)
		_, err := r.Rebuild(ctx, fakeHistory(7, 5))
		So(err, ShouldBeNil)
		before, err := s.List(ctx)
		So(err, ShouldBeNil)

		Convey("When history cannot be read", func() {
			boom := errors.New("boom")
			_, err := r.Rebuild(ctx, failingSource{err: boom})

			Convey("Then the store is left as it was", func() {
				So(errors.Is(err, replay.ErrHistory), ShouldBeTrue)
				So(errors.Is(err, boom), ShouldBeTrue)
				after, err := s.List(ctx)
				So(err, ShouldBeNil)
				So(cmp.Diff(before, after), ShouldBeEmpty)
			})
		})
	})
}
