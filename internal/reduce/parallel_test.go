package reduce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsense/voicepack/internal/llm"
	"github.com/mailsense/voicepack/internal/token/tokentest"
)

// filtered wraps text in the JSON shape the filter schema asks for.
func filtered(text string) string {
	b, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// memSink collects appended segments in call order.
type memSink struct {
	mu       sync.Mutex
	segments []string
}

func (s *memSink) Append(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, text)
	return nil
}

func fastPolicy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newTestReducer(completer llm.Completer) *Reducer {
	r := NewReducer(completer, tokentest.Codec{}, fastPolicy(), zerolog.Nop())
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestReduce_AllChunksSucceed(t *testing.T) {
	t.Parallel()

	echo := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Temperature != 0 {
			return "", fmt.Errorf("temperature=%v", req.Temperature)
		}
		return filtered("reduced"), nil
	})
	sink := &memSink{}
	r := newTestReducer(echo)

	chunks := []string{"chunk one", "chunk two", "chunk three"}
	total, err := r.Reduce(context.Background(), chunks, sink, Options{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(sink.segments) != 3 {
		t.Fatalf("segments=%d", len(sink.segments))
	}
	if want := 3 * len("reduced"); total != want {
		t.Fatalf("total=%d want=%d", total, want)
	}
}

func TestReduce_FailedChunkGetsMarker(t *testing.T) {
	t.Parallel()

	flaky := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "poison") {
			return "", errors.New("500 internal server error")
		}
		return filtered("ok"), nil
	})
	sink := &memSink{}
	r := newTestReducer(flaky)

	total, err := r.Reduce(context.Background(), []string{"good", "poison", "good"}, sink, Options{})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	// N chunks always yield N segments, failures included.
	if len(sink.segments) != 3 {
		t.Fatalf("segments=%d", len(sink.segments))
	}
	joined := strings.Join(sink.segments, "")
	if !strings.Contains(joined, FailureMarker(2)) {
		t.Fatalf("no failure marker in output:\n%s", joined)
	}
	// Marker tokens are not counted toward the output total.
	if want := 2 * len("ok"); total != want {
		t.Fatalf("total=%d want=%d", total, want)
	}
}

func TestReduce_TokenTotalMatchesSuccessfulSegments(t *testing.T) {
	t.Parallel()

	echo := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		// Return the chunk body itself so output size tracks input size.
		_, body, _ := strings.Cut(req.Prompt, "\n\n")
		return filtered(body), nil
	})
	sink := &memSink{}
	r := newTestReducer(echo)

	chunks := []string{"aaaa", "bbbbbbbb", "cc"}
	total, err := r.Reduce(context.Background(), chunks, sink, Options{})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	codec := tokentest.Codec{}
	want := 0
	for _, seg := range sink.segments {
		want += codec.Count(strings.TrimSuffix(seg, "\n\n"))
	}
	if total != want {
		t.Fatalf("total=%d want=%d", total, want)
	}
}

func TestReduce_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, peak := 0, 0
	slow := llm.CompleterFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return filtered("x"), nil
	})
	sink := &memSink{}
	r := newTestReducer(slow)

	chunks := make([]string, 20)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk %d", i)
	}
	if _, err := r.Reduce(context.Background(), chunks, sink, Options{Slots: 2}); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency=%d", peak)
	}
	if len(sink.segments) != 20 {
		t.Fatalf("segments=%d", len(sink.segments))
	}
}

func TestReduce_EmptyInput(t *testing.T) {
	t.Parallel()

	r := newTestReducer(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("completer called for empty input")
		return "", nil
	}))
	total, err := r.Reduce(context.Background(), nil, &memSink{}, Options{})
	if err != nil || total != 0 {
		t.Fatalf("total=%d err=%v", total, err)
	}
}

func TestReduce_RequestsStructuredFilterOutput(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var reqs []llm.Request
	capture := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		return filtered("ok"), nil
	})
	r := newTestReducer(capture)

	if _, err := r.Reduce(context.Background(), []string{"a", "b", "c"}, &memSink{}, Options{Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("requests=%d", len(reqs))
	}
	for i, req := range reqs {
		if req.Schema == nil || req.SchemaName != "voice_filter" {
			t.Fatalf("request %d has no structured-output schema: %+v", i, req)
		}
	}
}

func TestReduce_MalformedResponseRetriedToCap(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	garbage := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "definitely not json", nil
	})
	sink := &memSink{}
	r := newTestReducer(garbage)

	total, err := r.Reduce(context.Background(), []string{"only"}, sink, Options{})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	// Undecodable output degrades to a marker after the attempt cap, like any
	// other exhausted chunk.
	if total != 0 {
		t.Fatalf("total=%d", total)
	}
	if len(sink.segments) != 1 || !strings.Contains(sink.segments[0], FailureMarker(1)) {
		t.Fatalf("segments=%q", sink.segments)
	}
	if want := fastPolicy().MaxAttempts; calls != want {
		t.Fatalf("calls=%d want=%d", calls, want)
	}
}

func TestReduce_TruncatedResponseRetriedThenRecovers(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	flaky := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			// Truncated mid-object, as if the response was cut off.
			return `{"content": "recov`, nil
		}
		return filtered("recovered"), nil
	})
	sink := &memSink{}
	r := newTestReducer(flaky)

	total, err := r.Reduce(context.Background(), []string{"only"}, sink, Options{})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if total != len("recovered") {
		t.Fatalf("total=%d", total)
	}
	if calls != 2 {
		t.Fatalf("calls=%d", calls)
	}
	if !strings.Contains(sink.segments[0], "recovered") {
		t.Fatalf("segments=%q", sink.segments)
	}
}

func TestReduce_SinkErrorStopsAccounting(t *testing.T) {
	t.Parallel()

	echo := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return filtered("out"), nil
	})
	failing := SinkFunc(func(context.Context, string) error {
		return errors.New("disk full")
	})
	r := newTestReducer(echo)

	_, err := r.Reduce(context.Background(), []string{"a", "b"}, failing, Options{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err=%v", err)
	}
}
