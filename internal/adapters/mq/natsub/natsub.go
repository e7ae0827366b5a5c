// Package natsub feeds chat messages published on a NATS subject into the
// service.
package natsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/pkg/logger"
)

// DefaultSubject carries JSON-encoded chat messages.
const DefaultSubject = "skillboard.messages"

// ErrDecode is returned for payloads that are not a chat message.
var ErrDecode = errors.New("decode nats message")

// Submitter accepts inbound chat messages.
type Submitter interface {
	Submit(ctx context.Context, msg model.Message) (model.Submission, error)
}

// Subscriber consumes one subject.
type Subscriber struct {
	url       string
	subject   string
	queue     string
	submitter Submitter
	logger    logger.Logger

	conn *nats.Conn
	sub  *nats.Subscription
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithSubject sets the subject to subscribe to.
func WithSubject(subject string) Option {
	return func(s *Subscriber) {
		if subject != "" {
			s.subject = subject
		}
	}
}

// WithQueueGroup subscribes as a member of a queue group.
func WithQueueGroup(group string) Option {
	return func(s *Subscriber) { s.queue = group }
}

// WithLogger sets the subscriber logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Subscriber for the server at url.
func New(url string, submitter Submitter, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:       url,
		subject:   DefaultSubject,
		submitter: submitter,
		logger:    logger.Get().Named("natsub"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects and subscribes. Messages are handled until Close.
func (s *Subscriber) Start(ctx context.Context) error {
	conn, err := nats.Connect(s.url,
		nats.Name("skillboard"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info(ctx, "nats reconnected", logger.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}

	handler := func(m *nats.Msg) {
		if err := s.handle(ctx, m.Data); err != nil {
			s.logger.Warn(ctx, "nats message dropped", logger.String("subject", m.Subject), logger.Error(err))
		}
	}
	var sub *nats.Subscription
	if s.queue != "" {
		sub, err = conn.QueueSubscribe(s.subject, s.queue, handler)
	} else {
		sub, err = conn.Subscribe(s.subject, handler)
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	s.conn, s.sub = conn, sub
	s.logger.Info(ctx, "nats subscriber started", logger.String("subject", s.subject))
	return nil
}

func (s *Subscriber) handle(ctx context.Context, data []byte) error {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if msg.ID == "" {
		return fmt.Errorf("%w: missing id", ErrDecode)
	}
	if msg.PostedAt.IsZero() {
		msg.PostedAt = time.Now().UTC()
	}
	res, err := s.submitter.Submit(ctx, msg)
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "nats message submitted", logger.String("message_id", msg.ID), logger.String("status", string(res.Status)))
	return nil
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn = nil
	return err
}
