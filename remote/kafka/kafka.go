// Package kafka provides a Kafka transport for kafka:// DSNs.
//
// The DSN host lists the seed brokers, comma separated:
//
//	kafka://broker-1:9092,broker-2:9092
//
// All commands share one topic and are keyed by command type, so commands of
// the same type stay ordered within a partition. Receive reads as a member of
// a consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/internal/options"
	"github.com/bjaus/commandbus/remote"
)

// Header keys reserved by the transport.
const (
	HeaderID   = "commandbus-id"
	HeaderType = "commandbus-type"
)

// Options configures the topic and consumer group.
type Options struct {
	// Brokers overrides the brokers from the DSN.
	Brokers []string `mapstructure:"brokers"`

	// Topic carries every command. Default "commandbus".
	Topic string `mapstructure:"topic"`

	// GroupID is the consumer group used by Receive. Default "commandbus".
	GroupID string `mapstructure:"group_id"`

	// BatchTimeout bounds how long the writer waits to fill a batch.
	// Default 10ms.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// MaxAttempts limits delivery attempts per write. Default 3.
	MaxAttempts int `mapstructure:"max_attempts"`
}

func defaultOptions() Options {
	return Options{
		Topic:        "commandbus",
		GroupID:      "commandbus",
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}
}

// Transport sends and receives commands through Kafka.
type Transport struct {
	opts   Options
	writer *kafka.Writer
	logger *slog.Logger

	mu     sync.Mutex
	reader *kafka.Reader
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

// New creates a transport for dsn. The writer connects on first Send and the
// reader joins the consumer group on first Receive.
func New(dsn string, raw map[string]any, opts ...Option) (*Transport, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("kafka dsn: %w", err)
	}
	if u.Scheme != "kafka" {
		return nil, fmt.Errorf("kafka dsn %q: scheme must be kafka", dsn)
	}

	o := defaultOptions()
	if err := options.Decode(raw, &o); err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	if len(o.Brokers) == 0 && u.Host != "" {
		o.Brokers = strings.Split(u.Host, ",")
	}
	if len(o.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}

	t := &Transport{
		opts: o,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(o.Brokers...),
			Topic:        o.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: o.BatchTimeout,
			MaxAttempts:  o.MaxAttempts,
			RequiredAcks: kafka.RequireAll,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "kafka", "topic", o.Topic)
	return t, nil
}

// Options returns the decoded options.
func (t *Transport) Options() Options {
	return t.opts
}

// Send writes the envelope keyed by its command type.
func (t *Transport) Send(ctx context.Context, env remote.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("kafka send: %w", remote.ErrClosed)
	}

	if err := t.writer.WriteMessages(ctx, message(env)); err != nil {
		return fmt.Errorf("kafka write %s: %w", env.Type, err)
	}
	return nil
}

// Receive reads the next message for the consumer group. Offsets are
// committed as messages are read.
func (t *Transport) Receive(ctx context.Context) (remote.Envelope, error) {
	r, err := t.consumer()
	if err != nil {
		return remote.Envelope{}, fmt.Errorf("kafka receive: %w", err)
	}

	m, err := r.ReadMessage(ctx)
	if err != nil {
		return remote.Envelope{}, fmt.Errorf("kafka receive: %w", err)
	}
	return envelope(m), nil
}

func (t *Transport) consumer() (*kafka.Reader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, remote.ErrClosed
	}
	if t.reader == nil {
		t.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers: t.opts.Brokers,
			Topic:   t.opts.Topic,
			GroupID: t.opts.GroupID,
		})
		t.logger.Info("consumer started", "group", t.opts.GroupID)
	}
	return t.reader, nil
}

func message(env remote.Envelope) kafka.Message {
	headers := make([]kafka.Header, 0, len(env.Headers)+2)
	headers = append(headers,
		kafka.Header{Key: HeaderID, Value: []byte(env.ID)},
		kafka.Header{Key: HeaderType, Value: []byte(env.Type)},
	)
	for k, v := range env.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(env.Type),
		Value:   env.Payload,
		Headers: headers,
	}
}

func envelope(m kafka.Message) remote.Envelope {
	env := remote.Envelope{
		Payload: m.Value,
		Headers: make(commandbus.Headers, len(m.Headers)),
	}
	for _, h := range m.Headers {
		switch h.Key {
		case HeaderID:
			env.ID = string(h.Value)
		case HeaderType:
			env.Type = string(h.Value)
		default:
			env.Headers[h.Key] = string(h.Value)
		}
	}
	if env.Type == "" {
		env.Type = string(m.Key)
	}
	return env
}

// Close flushes pending writes and leaves the consumer group.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	errs := []error{t.writer.Close()}
	if t.reader != nil {
		errs = append(errs, t.reader.Close())
		t.reader = nil
	}
	return errors.Join(errs...)
}

var _ remote.Transport = (*Transport)(nil)
