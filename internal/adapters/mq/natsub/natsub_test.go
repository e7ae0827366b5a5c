package natsub

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type captureSubmitter struct {
	got []model.Message
	err error
}

func (c *captureSubmitter) Submit(_ context.Context, msg model.Message) (model.Submission, error) {
	c.got = append(c.got, msg)
	return model.Submission{Status: model.SubmitAccepted}, c.err
}

func TestSubscriber_Handle(t *testing.T) {
	Convey("Given a subscriber", t, func() {
		So(logger.InitWithWriter(io.Discard), ShouldBeNil)
		ctx := context.Background()
		sub := &captureSubmitter{}
		s := New("nats://127.0.0.1:4222", sub, WithSubject("chat.in"), WithQueueGroup("raters"))
		So(s.subject, ShouldEqual, "chat.in")
		So(s.queue, ShouldEqual, "raters")

		Convey("When a well-formed message arrives", func() {
			err := s.handle(ctx, []byte(`{"id":"m1","author_id":"269715475410190346","content":"results:\n<@1>","posted_at":"2024-01-01T10:00:00Z"}`))
			So(err, ShouldBeNil)
			So(len(sub.got), ShouldEqual, 1)
			So(sub.got[0].Content, ShouldEqual, "results:\n<@1>")
		})

		Convey("When the posting time is missing it is stamped", func() {
			So(s.handle(ctx, []byte(`{"id":"m2"}`)), ShouldBeNil)
			So(sub.got[0].PostedAt.IsZero(), ShouldBeFalse)
		})

		Convey("When the payload is garbage", func() {
			So(errors.Is(s.handle(ctx, []byte("nope")), ErrDecode), ShouldBeTrue)
			So(errors.Is(s.handle(ctx, []byte(`{"content":"x"}`)), ErrDecode), ShouldBeTrue)
			So(sub.got, ShouldBeEmpty)
		})

		Convey("When the service refuses", func() {
			sub.err = errors.New("queue full")
			So(s.handle(ctx, []byte(`{"id":"m3"}`)), ShouldNotBeNil)
		})

		Convey("Then closing before start is a no-op", func() {
			So(s.Close(), ShouldBeNil)
		})
	})
}
