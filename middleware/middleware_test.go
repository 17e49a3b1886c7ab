package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/hail/middleware"
	"github.com/xraph/hail/webhook"
)

func testEnvelope() *webhook.Envelope {
	return &webhook.Envelope{
		MessageID:  "msg-123",
		Sender:     "+15550001",
		Body:       "1",
		Channel:    "primary",
		ReceivedAt: time.Now().UTC(),
	}
}

func okHandler(text string) middleware.Handler {
	return func(_ context.Context) (*webhook.Reply, error) {
		return &webhook.Reply{Text: text}, nil
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *webhook.Envelope, next middleware.Handler) (*webhook.Reply, error) {
		order = append(order, "mw1-before")
		reply, err := next(ctx)
		order = append(order, "mw1-after")
		return reply, err
	}

	mw2 := func(ctx context.Context, _ *webhook.Envelope, next middleware.Handler) (*webhook.Reply, error) {
		order = append(order, "mw2-before")
		reply, err := next(ctx)
		order = append(order, "mw2-after")
		return reply, err
	}

	chain := middleware.Chain(mw1, mw2)
	reply, err := chain(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		order = append(order, "handler")
		return &webhook.Reply{Text: "done"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "done" {
		t.Errorf("reply = %q", reply.Text)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false

	_, err := chain(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		called = true
		return &webhook.Reply{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *webhook.Envelope, next middleware.Handler) (*webhook.Reply, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	_, err := chain(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.New(slog.DiscardHandler))

	reply, err := mw(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if reply == nil || reply.Text == "" {
		t.Error("panic recovery must still produce a reply for the sender")
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.New(slog.DiscardHandler))

	reply, err := mw(context.Background(), testEnvelope(), okHandler("fine"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "fine" {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestLogging_Success(t *testing.T) {
	mw := middleware.Logging(slog.New(slog.DiscardHandler))

	called := false
	_, err := mw(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		called = true
		return &webhook.Reply{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.New(slog.DiscardHandler))
	want := errors.New("fail")

	_, err := mw(context.Background(), testEnvelope(), func(_ context.Context) (*webhook.Reply, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_EnforcesDeadline(t *testing.T) {
	mw := middleware.Timeout(10 * time.Millisecond)

	_, err := mw(context.Background(), testEnvelope(), func(ctx context.Context) (*webhook.Reply, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &webhook.Reply{Text: "too slow"}, nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Timeout(0)

	_, err := mw(context.Background(), testEnvelope(), func(ctx context.Context) (*webhook.Reply, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("unexpected deadline with zero timeout")
		}
		return &webhook.Reply{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDedupe_ReplaysFirstReply(t *testing.T) {
	mw := middleware.Dedupe(time.Minute)
	env := testEnvelope()

	calls := 0
	handler := func(_ context.Context) (*webhook.Reply, error) {
		calls++
		return &webhook.Reply{Text: "first"}, nil
	}

	for range 3 {
		reply, err := mw(context.Background(), env, handler)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reply.Text != "first" {
			t.Errorf("reply = %q, want replay of first", reply.Text)
		}
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestDedupe_DistinctMessagesPass(t *testing.T) {
	mw := middleware.Dedupe(time.Minute)

	calls := 0
	handler := func(_ context.Context) (*webhook.Reply, error) {
		calls++
		return &webhook.Reply{}, nil
	}

	a := testEnvelope()
	b := testEnvelope()
	b.MessageID = "msg-456"

	if _, err := mw(context.Background(), a, handler); err != nil {
		t.Fatal(err)
	}
	if _, err := mw(context.Background(), b, handler); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}

func TestDedupe_ErrorsAreNotCached(t *testing.T) {
	mw := middleware.Dedupe(time.Minute)
	env := testEnvelope()

	calls := 0
	handler := func(_ context.Context) (*webhook.Reply, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return &webhook.Reply{Text: "recovered"}, nil
	}

	if _, err := mw(context.Background(), env, handler); err == nil {
		t.Fatal("expected first call to fail")
	}
	reply, err := mw(context.Background(), env, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "recovered" {
		t.Errorf("reply = %q, failed delivery must be retried", reply.Text)
	}
}

func TestWrap_BindsChainToProcessor(t *testing.T) {
	var order []string
	mw := func(ctx context.Context, _ *webhook.Envelope, next middleware.Handler) (*webhook.Reply, error) {
		order = append(order, "mw")
		return next(ctx)
	}

	terminal := webhook.HandlerFunc(func(_ context.Context, env *webhook.Envelope) (*webhook.Reply, error) {
		order = append(order, "terminal")
		return &webhook.Reply{Text: env.Body}, nil
	})

	h := middleware.Wrap(middleware.Chain(mw), terminal)
	reply, err := h(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "1" {
		t.Errorf("reply = %q", reply.Text)
	}
	if len(order) != 2 || order[0] != "mw" || order[1] != "terminal" {
		t.Errorf("order = %v", order)
	}
}
