package commandbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type contextKey string

// extensionWithHooks implements the optional hook interfaces for testing.
type extensionWithHooks struct {
	onDispatchCalled bool
	onSuccessCalled  bool
	onFailureCalled  bool
}

func (e *extensionWithHooks) Setup(p *Pipeline) {}

func (e *extensionWithHooks) OnDispatch(ctx context.Context, commandType string) context.Context {
	e.onDispatchCalled = true
	return context.WithValue(ctx, contextKey("extension-hook"), "called")
}

func (e *extensionWithHooks) OnSuccess(ctx context.Context, commandType string, d time.Duration) {
	e.onSuccessCalled = true
}

func (e *extensionWithHooks) OnFailure(ctx context.Context, commandType string, err error, d time.Duration) {
	e.onFailureCalled = true
}

// Verify interface implementations
var (
	_ Extension      = (*extensionWithHooks)(nil)
	_ OnDispatchHook = (*extensionWithHooks)(nil)
	_ OnSuccessHook  = (*extensionWithHooks)(nil)
	_ OnFailureHook  = (*extensionWithHooks)(nil)
)

type HooksSuite struct {
	suite.Suite
}

func TestHooksSuite(t *testing.T) {
	suite.Run(t, new(HooksSuite))
}

func (s *HooksSuite) build(b *Builder) *Dispatcher {
	d, err := b.Build()
	s.Require().NoError(err)
	return d
}

func (s *HooksSuite) TestOnDispatchCalledBeforeExtension() {
	var order []string
	ext := &extensionWithHooks{}

	d := s.build(NewBuilder(WithOnDispatch(func(ctx context.Context, commandType string) context.Context {
		order = append(order, "global:"+commandType)
		return ctx
	})).Use(ext).Handle("commandbus.testCommand", &testHandler{}))

	err := d.Dispatch(context.Background(), testCommand{})

	s.NoError(err)
	s.Assert().True(ext.onDispatchCalled)
	s.Require().Len(order, 1)
	s.Assert().Equal("global:commandbus.testCommand", order[0])
}

func (s *HooksSuite) TestOnSuccessCalled() {
	var durations []time.Duration
	ext := &extensionWithHooks{}

	d := s.build(NewBuilder(WithOnSuccess(func(ctx context.Context, commandType string, d time.Duration) {
		durations = append(durations, d)
	})).Use(ext).Handle("commandbus.testCommand", &testHandler{}))

	err := d.Dispatch(context.Background(), testCommand{})

	s.NoError(err)
	s.Assert().True(ext.onSuccessCalled)
	s.Assert().False(ext.onFailureCalled)
	s.Assert().Len(durations, 1)
}

func (s *HooksSuite) TestOnFailureReceivesHandlerError() {
	wantErr := errors.New("fail")
	var got error
	ext := &extensionWithHooks{}

	d := s.build(NewBuilder(WithOnFailure(func(ctx context.Context, commandType string, err error, d time.Duration) {
		got = err
	})).Use(ext).Handle("commandbus.testCommand", &testHandler{err: wantErr}))

	err := d.Dispatch(context.Background(), testCommand{})

	s.Assert().ErrorIs(err, wantErr)
	s.Assert().ErrorIs(got, wantErr)
	s.Assert().True(ext.onFailureCalled)
	s.Assert().False(ext.onSuccessCalled)
}

func (s *HooksSuite) TestOnNoHandlerCanSkip() {
	d := s.build(NewBuilder(WithOnNoHandler(func(ctx context.Context, commandType string) error {
		return nil
	})))

	err := d.Dispatch(context.Background(), testCommand{})

	s.Assert().NoError(err)
}

func (s *HooksSuite) TestOnNoHandlerFirstErrorWins() {
	first := errors.New("first")
	second := errors.New("second")

	d := s.build(NewBuilder(
		WithOnNoHandler(func(ctx context.Context, commandType string) error { return first }),
		WithOnNoHandler(func(ctx context.Context, commandType string) error { return second }),
	))

	err := d.Dispatch(context.Background(), testCommand{})

	s.Assert().ErrorIs(err, first)
	s.Assert().NotErrorIs(err, second)
}

func (s *HooksSuite) TestExtensionContextAvailableToHandler() {
	var handlerCtx context.Context

	d := s.build(NewBuilder().
		Use(&extensionWithHooks{}).
		Handle("commandbus.testCommand", HandleFunc(func(ctx context.Context, cmd testCommand) error {
			handlerCtx = ctx
			return nil
		})))

	err := d.Dispatch(context.Background(), testCommand{})

	s.NoError(err)
	s.Assert().Equal("called", handlerCtx.Value(contextKey("extension-hook")))
}
