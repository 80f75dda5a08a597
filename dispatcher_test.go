package commandbus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

type testCommand struct {
	Value string
}

type namedCommand struct{}

func (namedCommand) CommandType() string { return "named.command" }

type testHandler struct {
	mu     sync.Mutex
	called int
	last   Message
	err    error
}

func (h *testHandler) Handle(ctx context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.called++
	h.last = msg
	return h.err
}

func recordMiddleware(name string, order *[]string) Middleware {
	return MiddlewareFunc(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg Message) error {
			*order = append(*order, name)
			return next(ctx, msg)
		}
	})
}

type middlewareExtension struct {
	mw Middleware
}

func (e *middlewareExtension) Setup(p *Pipeline) { p.Middleware(e.mw) }

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		cmd  any
		want string
	}{
		{"struct value", testCommand{}, "commandbus.testCommand"},
		{"struct pointer", &testCommand{}, "commandbus.testCommand"},
		{"typed command", namedCommand{}, "named.command"},
		{"builtin", "text", "string"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.cmd); got != tt.want {
				t.Errorf("TypeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("dispatches to registered handler", func(t *testing.T) {
		h := &testHandler{}
		d, err := NewBuilder().Handle("commandbus.testCommand", h).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		if err := d.Dispatch(context.Background(), testCommand{Value: "hello"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if h.called != 1 {
			t.Fatalf("handler called %d times, want 1", h.called)
		}
		if got := h.last.Command.(testCommand).Value; got != "hello" {
			t.Errorf("Value = %q, want %q", got, "hello")
		}
	})

	t.Run("returns handler error wrapped in DispatchError", func(t *testing.T) {
		wantErr := errors.New("handler error")
		d, err := NewBuilder().Handle("commandbus.testCommand", &testHandler{err: wantErr}).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		err = d.Dispatch(context.Background(), testCommand{})
		if !errors.Is(err, wantErr) {
			t.Errorf("error = %v, want %v", err, wantErr)
		}
		var de *DispatchError
		if !errors.As(err, &de) {
			t.Fatalf("error = %T, want *DispatchError", err)
		}
		if de.Type != "commandbus.testCommand" {
			t.Errorf("Type = %q, want %q", de.Type, "commandbus.testCommand")
		}
	})

	t.Run("returns ErrNoHandler when no handler registered", func(t *testing.T) {
		d, err := NewBuilder().Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		err = d.Dispatch(context.Background(), testCommand{})
		if !errors.Is(err, ErrNoHandler) {
			t.Errorf("error = %v, want ErrNoHandler", err)
		}
	})

	t.Run("last registration wins", func(t *testing.T) {
		first := &testHandler{}
		second := &testHandler{}
		d, err := NewBuilder().
			Handle("commandbus.testCommand", first).
			Handle("commandbus.testCommand", second).
			Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		_ = d.Dispatch(context.Background(), testCommand{})

		if first.called != 0 {
			t.Error("first handler should have been replaced")
		}
		if second.called != 1 {
			t.Error("second handler was not called")
		}
	})

	t.Run("handler can dispatch follow-up commands", func(t *testing.T) {
		follow := &testHandler{}
		b := NewBuilder()
		b.Handle("named.command", follow)
		b.Handle("commandbus.testCommand", HandlerFunc(func(ctx context.Context, msg Message) error {
			d, ok := FromContext(ctx)
			if !ok {
				return errors.New("no dispatcher in context")
			}
			return d.Dispatch(ctx, namedCommand{})
		}))
		d, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		if err := d.Dispatch(context.Background(), testCommand{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if follow.called != 1 {
			t.Error("follow-up handler was not called")
		}
	})

	t.Run("send keeps explicit type and headers", func(t *testing.T) {
		h := &testHandler{}
		d, err := NewBuilder().Handle("custom", h).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		msg := Message{Type: "custom", Command: testCommand{}, Headers: Headers{"k": "v"}}
		if err := d.Send(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.last.Headers.Get("k") != "v" {
			t.Errorf("header k = %q, want %q", h.last.Headers.Get("k"), "v")
		}
	})
}

func TestBuilder_Middleware(t *testing.T) {
	t.Run("explicit middlewares wrap extension middlewares in declared order", func(t *testing.T) {
		var order []string
		d, err := NewBuilder().
			Handle("commandbus.testCommand", HandlerFunc(func(ctx context.Context, msg Message) error {
				order = append(order, "handler")
				return nil
			})).
			Use(&middlewareExtension{mw: recordMiddleware("ext-1", &order)}).
			Middleware(recordMiddleware("mw-1", &order), recordMiddleware("mw-2", &order)).
			Use(&middlewareExtension{mw: recordMiddleware("ext-2", &order)}).
			Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		if err := d.Dispatch(context.Background(), testCommand{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"mw-1", "mw-2", "ext-1", "ext-2", "handler"}
		if !reflect.DeepEqual(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("middleware can short-circuit", func(t *testing.T) {
		h := &testHandler{}
		stop := MiddlewareFunc(func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, msg Message) error { return nil }
		})
		d, err := NewBuilder().Handle("commandbus.testCommand", h).Middleware(stop).Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		if err := d.Dispatch(context.Background(), testCommand{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.called != 0 {
			t.Error("handler should not be called")
		}
	})
}

func TestBuilder_Build(t *testing.T) {
	t.Run("rejects nil handler", func(t *testing.T) {
		_, err := NewBuilder().Handle("x", nil).Build()
		if !errors.Is(err, ErrInvalidContribution) {
			t.Errorf("error = %v, want ErrInvalidContribution", err)
		}
	})

	t.Run("rejects nil extension", func(t *testing.T) {
		_, err := NewBuilder().Use(Extension(nil)).Build()
		if !errors.Is(err, ErrInvalidContribution) {
			t.Errorf("error = %v, want ErrInvalidContribution", err)
		}
	})

	t.Run("rejects nil middleware", func(t *testing.T) {
		_, err := NewBuilder().Middleware(Middleware(nil)).Build()
		if !errors.Is(err, ErrInvalidContribution) {
			t.Errorf("error = %v, want ErrInvalidContribution", err)
		}
	})

	t.Run("repeated builds are independent and equivalent", func(t *testing.T) {
		var order []string
		b := NewBuilder().
			Handle("commandbus.testCommand", &testHandler{}).
			Use(&middlewareExtension{mw: recordMiddleware("ext", &order)})

		first, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		second, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if first == second {
			t.Fatal("expected distinct dispatchers")
		}

		_ = first.Dispatch(context.Background(), testCommand{})
		_ = second.Dispatch(context.Background(), testCommand{})

		want := []string{"ext", "ext"}
		if !reflect.DeepEqual(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("registrations after build do not leak into dispatcher", func(t *testing.T) {
		b := NewBuilder()
		d, err := b.Build()
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		b.Handle("commandbus.testCommand", &testHandler{})

		if d.HasHandler("commandbus.testCommand") {
			t.Error("dispatcher should not see handlers registered after Build")
		}
	})
}

func TestHandleFunc(t *testing.T) {
	t.Run("accepts value and pointer commands", func(t *testing.T) {
		var got []string
		h := HandleFunc(func(ctx context.Context, cmd testCommand) error {
			got = append(got, cmd.Value)
			return nil
		})

		_ = h.Handle(context.Background(), NewMessage(testCommand{Value: "a"}))
		_ = h.Handle(context.Background(), NewMessage(&testCommand{Value: "b"}))

		if !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Errorf("got = %v", got)
		}
	})

	t.Run("rejects mismatched command", func(t *testing.T) {
		h := HandleFunc(func(ctx context.Context, cmd testCommand) error { return nil })
		if err := h.Handle(context.Background(), NewMessage(namedCommand{})); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestFactoryMap(t *testing.T) {
	types := FactoryMap{}
	name := RegisterType[testCommand](types)

	if name != "commandbus.testCommand" {
		t.Errorf("name = %q, want %q", name, "commandbus.testCommand")
	}

	v, ok := types.New(name)
	if !ok {
		t.Fatal("expected registered type")
	}
	if _, ok := v.(*testCommand); !ok {
		t.Errorf("New() = %T, want *testCommand", v)
	}

	if _, ok := types.New("unknown"); ok {
		t.Error("expected unknown type to be missing")
	}
}

func TestMessage_WithHeader(t *testing.T) {
	orig := NewMessage(testCommand{})
	next := orig.WithHeader("k", "v")

	if orig.Headers.Has("k") {
		t.Error("original headers were modified")
	}
	if next.Headers.Get("k") != "v" {
		t.Errorf("header = %q, want %q", next.Headers.Get("k"), "v")
	}
}

func TestDispatcher_ConcurrentDispatch(t *testing.T) {
	h := &testHandler{}
	d, err := NewBuilder().Handle("commandbus.testCommand", h).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), testCommand{})
		}()
	}
	wg.Wait()

	if h.called != 50 {
		t.Errorf("called = %d, want 50", h.called)
	}
}
