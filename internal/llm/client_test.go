package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Class
	}{
		{name: "nil", err: nil, want: ClassOther},
		{name: "rate_limit_status", err: errors.New("429 Too Many Requests"), want: ClassRateLimit},
		{name: "rate_limit_text", err: errors.New("rate limit exceeded"), want: ClassRateLimit},
		{name: "tls", err: errors.New("tls: handshake failure"), want: ClassTransport},
		{name: "reset", err: errors.New("read: connection reset by peer"), want: ClassTransport},
		{name: "server", err: errors.New("500 internal server error"), want: ClassServer},
		{name: "other", err: errors.New("invalid request"), want: ClassOther},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second}

	if got := p.Backoff(ClassOther, 0); got != 5*time.Second {
		t.Fatalf("other attempt0: %v", got)
	}
	if got := p.Backoff(ClassOther, 2); got != 15*time.Second {
		t.Fatalf("other attempt2: %v", got)
	}
	// Transport-class failures wait twice as long.
	if got := p.Backoff(ClassTransport, 1); got != 20*time.Second {
		t.Fatalf("transport attempt1: %v", got)
	}
	if got := p.Backoff(ClassRateLimit, 0); got != 10*time.Second {
		t.Fatalf("rate limit attempt0: %v", got)
	}
}

func TestCompleteWithRetry_SucceedsAfterTransient(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	calls := 0
	c := CompleterFunc(func(_ context.Context, _ Request) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("tls: handshake failure")
		}
		return "ok", nil
	})

	out, err := CompleteWithRetry(context.Background(), c, Request{Model: "m"}, policy)
	if err != nil || out != "ok" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	// Transport ladder: base*1*2, base*2*2.
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 4*time.Second {
		t.Fatalf("slept=%v", slept)
	}
}

func TestCompleteWithRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep:       func(_ context.Context, _ time.Duration) error { return nil },
	}

	calls := 0
	boom := errors.New("500 internal server error")
	c := CompleterFunc(func(_ context.Context, _ Request) (string, error) {
		calls++
		return "", boom
	})

	_, err := CompleteWithRetry(context.Background(), c, Request{Model: "m"}, policy)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if calls != 5 {
		t.Fatalf("calls=%d want=5", calls)
	}
}

func TestCompleteWithRetry_ContextCancelStops(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep:       func(_ context.Context, _ time.Duration) error { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	c := CompleterFunc(func(ctx context.Context, _ Request) (string, error) {
		calls++
		return "", ctx.Err()
	})

	_, err := CompleteWithRetry(ctx, c, Request{Model: "m"}, policy)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	type out struct {
		Content string `json:"content"`
	}

	var o out
	if err := DecodeModelJSON("here you go:\n{\"content\": \"x\"}\n", &o); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if o.Content != "x" {
		t.Fatalf("content=%q", o.Content)
	}

	var m map[string]any
	if err := DecodeModelJSON("{\"a\": 1", &m); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("truncated: err=%v", err)
	}

	if err := DecodeModelJSON("no json here", &m); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIsMalformedOutputError(t *testing.T) {
	t.Parallel()

	if IsMalformedOutputError(nil) {
		t.Fatalf("nil should not be malformed")
	}
	if !IsMalformedOutputError(io.ErrUnexpectedEOF) {
		t.Fatalf("truncation should be malformed")
	}
	if !IsMalformedOutputError(errors.New("no JSON object found in model output (len=3)")) {
		t.Fatalf("no-object should be malformed")
	}
	if IsMalformedOutputError(errors.New("some other failure")) {
		t.Fatalf("unexpected malformed")
	}
}
