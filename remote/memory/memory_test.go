package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bjaus/commandbus/remote"
)

func TestTransport_SendReceive(t *testing.T) {
	t.Run("receives in send order", func(t *testing.T) {
		tr := New()
		ctx := context.Background()

		for _, typ := range []string{"a", "b", "c"} {
			if err := tr.Send(ctx, remote.Envelope{Type: typ}); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
		}
		if tr.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", tr.Len())
		}

		for _, want := range []string{"a", "b", "c"} {
			env, err := tr.Receive(ctx)
			if err != nil {
				t.Fatalf("Receive() error = %v", err)
			}
			if env.Type != want {
				t.Errorf("Type = %q, want %q", env.Type, want)
			}
		}
	})

	t.Run("receive waits for send", func(t *testing.T) {
		tr := New()
		got := make(chan remote.Envelope, 1)

		go func() {
			env, err := tr.Receive(context.Background())
			if err == nil {
				got <- env
			}
		}()

		time.Sleep(10 * time.Millisecond)
		if err := tr.Send(context.Background(), remote.Envelope{Type: "late"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}

		select {
		case env := <-got:
			if env.Type != "late" {
				t.Errorf("Type = %q, want %q", env.Type, "late")
			}
		case <-time.After(time.Second):
			t.Fatal("receiver was not woken")
		}
	})

	t.Run("receive honors context", func(t *testing.T) {
		tr := New()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := tr.Receive(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("send honors cancelled context", func(t *testing.T) {
		tr := New()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := tr.Send(ctx, remote.Envelope{}); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want Canceled", err)
		}
	})
}

func TestTransport_Close(t *testing.T) {
	tr := New()
	ctx := context.Background()

	if err := tr.Send(ctx, remote.Envelope{Type: "queued"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if err := tr.Send(ctx, remote.Envelope{}); !errors.Is(err, remote.ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}

	env, err := tr.Receive(ctx)
	if err != nil || env.Type != "queued" {
		t.Errorf("Receive() = %v, %v; want queued envelope", env.Type, err)
	}

	if _, err := tr.Receive(ctx); !errors.Is(err, remote.ErrClosed) {
		t.Errorf("Receive() error = %v, want ErrClosed", err)
	}
}
