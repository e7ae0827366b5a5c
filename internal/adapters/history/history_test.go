package history_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/skillboard/internal/adapters/history"
	"github.com/okian/skillboard/internal/adapters/repository"
	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const export = `{"id":"2","channel_id":"c1","author_id":"bot","content":"results:\n<@2>","posted_at":"2024-01-02T09:00:00Z"}

{"id":"1","channel_id":"c1","author_id":"bot","content":"results:\n<@1>","posted_at":"2024-01-01T09:00:00Z"}
{"id":"3","channel_id":"c2","author_id":"bot","content":"results:\n<@3>","posted_at":"2024-01-03T09:00:00Z"}
`

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestFile(t *testing.T) {
	Convey("Given a JSON-lines export", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "history.jsonl")
		So(os.WriteFile(path, []byte(export), 0o600), ShouldBeNil)

		Convey("Then messages come back oldest first", func() {
			msgs, err := history.NewFile(path).Messages(ctx)
			So(err, ShouldBeNil)
			So(ids(msgs), ShouldResemble, []string{"1", "2", "3"})
			So(msgs[0].Content, ShouldEqual, "results:\n<@1>")
		})

		Convey("Then a channel filter narrows them", func() {
			msgs, err := history.NewFile(path, history.WithChannel("c1")).Messages(ctx)
			So(err, ShouldBeNil)
			So(ids(msgs), ShouldResemble, []string{"1", "2"})
		})

		Convey("Then a missing file is reported", func() {
			_, err := history.NewFile(filepath.Join(t.TempDir(), "nope")).Messages(ctx)
			So(errors.Is(err, history.ErrOpen), ShouldBeTrue)
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given malformed exports", t, func() {
		ctx := context.Background()

		_, err := history.Decode(ctx, strings.NewReader("{\"id\":\"1\"}\nnot json\n"))
		So(errors.Is(err, history.ErrDecode), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "line 2")

		_, err = history.Decode(ctx, strings.NewReader(`{"content":"results:"}`))
		So(errors.Is(err, history.ErrDecode), ShouldBeTrue)
	})
}

func TestJournal(t *testing.T) {
	Convey("Given a store journal", t, func() {
		ctx := context.Background()
		So(logger.InitWithWriter(io.Discard), ShouldBeNil)
		s, err := repository.Open(ctx, repository.DriverSQLite, ":memory:")
		So(err, ShouldBeNil)
		defer s.Close()

		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		for i, ch := range []string{"c1", "c2", "c1"} {
			_, err := s.Append(ctx, model.Message{ID: string(rune('a' + i)), ChannelID: ch, Content: "results:", PostedAt: t0.Add(time.Duration(i) * time.Hour)})
			So(err, ShouldBeNil)
		}

		msgs, err := history.NewJournal(s, history.WithChannel("c1")).Messages(ctx)
		So(err, ShouldBeNil)
		So(ids(msgs), ShouldResemble, []string{"a", "c"})
	})
}
