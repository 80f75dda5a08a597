package remote_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/remote"
	"github.com/bjaus/commandbus/remote/memory"
)

type placeOrder struct {
	ID string
}

func (placeOrder) CommandType() string { return "orders.place" }

type auditOrder struct{}

func (auditOrder) CommandType() string { return "orders.audit" }

// stringSerializer encodes placeOrder IDs as the raw payload.
type stringSerializer struct {
	err error
}

func (s stringSerializer) Serialize(msg commandbus.Message) (remote.Envelope, error) {
	if s.err != nil {
		return remote.Envelope{}, s.err
	}
	cmd := msg.Command.(placeOrder)
	return remote.NewEnvelope(msg.Type, []byte(cmd.ID), msg.Headers), nil
}

func (s stringSerializer) Deserialize(env remote.Envelope) (commandbus.Message, error) {
	if s.err != nil {
		return commandbus.Message{}, s.err
	}
	return commandbus.Message{
		Type:    env.Type,
		Command: placeOrder{ID: string(env.Payload)},
		Headers: env.Headers.Clone(),
	}, nil
}

type failingTransport struct {
	memory.Transport
}

func (failingTransport) Send(ctx context.Context, env remote.Envelope) error {
	return errors.New("broker down")
}

type ExtensionSuite struct {
	suite.Suite
	transport *memory.Transport
	handled   []commandbus.Message
}

func TestExtensionSuite(t *testing.T) {
	suite.Run(t, new(ExtensionSuite))
}

func (s *ExtensionSuite) SetupTest() {
	s.transport = memory.New()
	s.handled = nil
}

func (s *ExtensionSuite) build(ext *remote.Extension) *commandbus.Dispatcher {
	record := commandbus.HandlerFunc(func(ctx context.Context, msg commandbus.Message) error {
		s.handled = append(s.handled, msg)
		return nil
	})
	d, err := commandbus.NewBuilder().
		Handle("orders.place", record).
		Handle("orders.audit", record).
		Use(ext).
		Build()
	s.Require().NoError(err)
	return d
}

func (s *ExtensionSuite) TestSendsRemoteCommands() {
	d := s.build(remote.NewExtension(s.transport, stringSerializer{}))

	err := d.Dispatch(context.Background(), placeOrder{ID: "42"})

	s.Require().NoError(err)
	s.Assert().Empty(s.handled)
	s.Require().Equal(1, s.transport.Len())

	env, err := s.transport.Receive(context.Background())
	s.Require().NoError(err)
	s.Assert().Equal("orders.place", env.Type)
	s.Assert().Equal([]byte("42"), env.Payload)
	s.Assert().NotEmpty(env.ID)
}

func (s *ExtensionSuite) TestLocalCommandsStayLocal() {
	ext := remote.NewExtension(s.transport, stringSerializer{}, remote.WithLocal("orders.audit"))
	d := s.build(ext)

	err := d.Dispatch(context.Background(), auditOrder{})

	s.Require().NoError(err)
	s.Assert().True(ext.IsLocal("orders.audit"))
	s.Assert().False(ext.IsLocal("orders.place"))
	s.Assert().Len(s.handled, 1)
	s.Assert().Zero(s.transport.Len())
}

func (s *ExtensionSuite) TestReceiveDispatchesLocally() {
	ext := remote.NewExtension(s.transport, stringSerializer{})
	d := s.build(ext)

	s.Require().NoError(d.Dispatch(context.Background(), placeOrder{ID: "7"}))
	env, err := s.transport.Receive(context.Background())
	s.Require().NoError(err)

	err = ext.Receive(context.Background(), d, env)

	s.Require().NoError(err)
	s.Require().Len(s.handled, 1)
	s.Assert().Equal(placeOrder{ID: "7"}, s.handled[0].Command)
	s.Assert().Equal("true", s.handled[0].Headers.Get(remote.HeaderReceived))
	s.Assert().Equal(env.ID, s.handled[0].Headers.Get(remote.HeaderEnvelopeID))
	s.Assert().Zero(s.transport.Len(), "received command must not be sent again")
}

func (s *ExtensionSuite) TestSerializeErrorFailsDispatch() {
	boom := errors.New("boom")
	d := s.build(remote.NewExtension(s.transport, stringSerializer{err: boom}))

	err := d.Dispatch(context.Background(), placeOrder{ID: "1"})

	s.Assert().ErrorIs(err, boom)
	s.Assert().Zero(s.transport.Len())
}

func (s *ExtensionSuite) TestSendErrorFailsDispatch() {
	d := s.build(remote.NewExtension(&failingTransport{}, stringSerializer{}))

	err := d.Dispatch(context.Background(), placeOrder{ID: "1"})

	s.Assert().ErrorContains(err, "broker down")
	s.Assert().Empty(s.handled)
}

func (s *ExtensionSuite) TestReceiveDeserializeError() {
	boom := errors.New("bad payload")
	ext := remote.NewExtension(s.transport, stringSerializer{err: boom})
	d := s.build(ext)

	err := ext.Receive(context.Background(), d, remote.Envelope{Type: "orders.place"})

	s.Assert().ErrorIs(err, boom)
	s.Assert().Empty(s.handled)
}
