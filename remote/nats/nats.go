// Package nats provides a NATS transport for nats:// DSNs.
//
// Each command is published on "<subject>.<command type>" and Receive
// subscribes to "<subject>.>", optionally as part of a queue group so that
// several workers share the load.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/internal/options"
	"github.com/bjaus/commandbus/remote"
)

// Header keys reserved by the transport.
const (
	HeaderID   = "Commandbus-Id"
	HeaderType = "Commandbus-Type"
)

// Options configures subjects and connection behavior.
type Options struct {
	// Subject is the subject prefix. Default "commandbus".
	Subject string `mapstructure:"subject"`

	// Queue is the queue group for Receive. Empty means every receiver gets
	// every command.
	Queue string `mapstructure:"queue"`

	// ConnectTimeout bounds the initial connection. Default 2s.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Name identifies the connection to the server. Default "commandbus".
	Name string `mapstructure:"name"`
}

func defaultOptions() Options {
	return Options{
		Subject:        "commandbus",
		ConnectTimeout: 2 * time.Second,
		Name:           "commandbus",
	}
}

// Transport sends and receives commands through a NATS server.
type Transport struct {
	dsn    string
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	sub    *nats.Subscription
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// New creates a transport for dsn. No connection is made until first use.
func New(dsn string, raw map[string]any, opts ...Option) (*Transport, error) {
	if !strings.HasPrefix(dsn, "nats://") && !strings.HasPrefix(dsn, "tls://") {
		return nil, fmt.Errorf("nats dsn %q: scheme must be nats or tls", dsn)
	}

	o := defaultOptions()
	if err := options.Decode(raw, &o); err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	if o.Subject == "" {
		return nil, fmt.Errorf("nats: subject must not be empty")
	}

	t := &Transport{dsn: dsn, opts: o}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "nats", "subject", o.Subject)
	return t, nil
}

// Options returns the decoded options.
func (t *Transport) Options() Options {
	return t.opts
}

// Subject returns the subject a command type is published on.
func (t *Transport) Subject(commandType string) string {
	return t.opts.Subject + "." + commandType
}

// connect opens the connection. Callers hold t.mu.
func (t *Transport) connect() (*nats.Conn, error) {
	if t.closed {
		return nil, remote.ErrClosed
	}
	if t.conn != nil && !t.conn.IsClosed() {
		return t.conn, nil
	}

	conn, err := nats.Connect(
		t.dsn,
		nats.Name(t.opts.Name),
		nats.Timeout(t.opts.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			t.logger.Info("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	t.conn, t.sub = conn, nil
	return conn, nil
}

// Send publishes the envelope and flushes the connection.
func (t *Transport) Send(ctx context.Context, env remote.Envelope) error {
	t.mu.Lock()
	conn, err := t.connect()
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("nats send: %w", err)
	}

	msg := nats.NewMsg(t.Subject(env.Type))
	msg.Data = env.Payload
	for k, v := range env.Headers {
		msg.Header[k] = []string{v}
	}
	msg.Header[HeaderID] = []string{env.ID}
	msg.Header[HeaderType] = []string{env.Type}

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Receive waits for the next command on the subject tree.
func (t *Transport) Receive(ctx context.Context) (remote.Envelope, error) {
	sub, err := t.subscribe()
	if err != nil {
		return remote.Envelope{}, fmt.Errorf("nats receive: %w", err)
	}

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return remote.Envelope{}, err
	}
	return envelope(msg), nil
}

func (t *Transport) subscribe() (*nats.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.connect()
	if err != nil {
		return nil, err
	}
	if t.sub != nil && t.sub.IsValid() {
		return t.sub, nil
	}

	subject := t.opts.Subject + ".>"
	var sub *nats.Subscription
	if t.opts.Queue != "" {
		sub, err = conn.QueueSubscribeSync(subject, t.opts.Queue)
	} else {
		sub, err = conn.SubscribeSync(subject)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	t.logger.Info("subscribed", "queue", t.opts.Queue)
	t.sub = sub
	return sub, nil
}

func envelope(msg *nats.Msg) remote.Envelope {
	env := remote.Envelope{
		Payload: msg.Data,
		Headers: make(commandbus.Headers, len(msg.Header)),
	}
	for k, vs := range msg.Header {
		if len(vs) == 0 {
			continue
		}
		switch k {
		case HeaderID:
			env.ID = vs[0]
		case HeaderType:
			env.Type = vs[0]
		default:
			env.Headers[k] = vs[0]
		}
	}
	return env
}

// Close closes the connection. The transport cannot be reused.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn != nil {
		t.conn.Close()
		t.conn, t.sub = nil, nil
	}
	return nil
}

var _ remote.Transport = (*Transport)(nil)
