package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type levelCounter struct {
	mu     sync.Mutex
	counts map[zerolog.Level]int
}

func newLevelCounter() *levelCounter {
	return &levelCounter{counts: make(map[zerolog.Level]int)}
}

func (c *levelCounter) Run(e *zerolog.Event, level zerolog.Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[level]++
}

func (c *levelCounter) count(level zerolog.Level) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[level]
}

func countingLogger() (zerolog.Logger, *levelCounter) {
	counter := newLevelCounter()
	return zerolog.New(io.Discard).Hook(counter), counter
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestClientExhaustsRetriesWithLogLadder(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger, counter := countingLogger()
	c := NewClient(ClientOptions{MaxRetries: 3, RetryBackoff: time.Millisecond}, logger)

	body, ok := c.Get(context.Background(), srv.URL, nil, nil)
	if ok || body != nil {
		t.Fatalf("exhausted retries must yield (nil, false), got (%v, %v)", body, ok)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if got := counter.count(zerolog.DebugLevel); got != 1 {
		t.Fatalf("expected exactly 1 debug log, got %d", got)
	}
	if got := counter.count(zerolog.WarnLevel); got != 1 {
		t.Fatalf("expected exactly 1 warning log, got %d", got)
	}
	if got := counter.count(zerolog.ErrorLevel); got != 1 {
		t.Fatalf("expected exactly 1 error log, got %d", got)
	}
}

func TestClientSingleAttemptLogsErrorOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger, counter := countingLogger()
	c := NewClient(ClientOptions{MaxRetries: 1, RetryBackoff: time.Millisecond}, logger)

	if _, ok := c.Get(context.Background(), srv.URL, nil, nil); ok {
		t.Fatal("failed call must not report success")
	}
	if got := counter.count(zerolog.DebugLevel); got != 0 {
		t.Fatalf("expected no debug logs, got %d", got)
	}
	if got := counter.count(zerolog.WarnLevel); got != 0 {
		t.Fatalf("expected no warning logs, got %d", got)
	}
	if got := counter.count(zerolog.ErrorLevel); got != 1 {
		t.Fatalf("expected exactly 1 error log, got %d", got)
	}
}

func TestClientRecoversAfterFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	logger, counter := countingLogger()
	c := NewClient(ClientOptions{MaxRetries: 3, RetryBackoff: time.Millisecond}, logger)

	body, ok := c.Get(context.Background(), srv.URL, nil, nil)
	if !ok {
		t.Fatal("call should succeed on the second attempt")
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if got := counter.count(zerolog.ErrorLevel); got != 0 {
		t.Fatalf("recovered call must not log an error, got %d", got)
	}
	if got := counter.count(zerolog.DebugLevel); got != 1 {
		t.Fatalf("expected 1 debug log for the failed attempt, got %d", got)
	}
}

func TestClientWarnsOnSlowResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	logger, counter := countingLogger()
	c := NewClient(ClientOptions{MaxRetries: 1, WarningThreshold: time.Nanosecond}, logger)

	if _, ok := c.Get(context.Background(), srv.URL, nil, nil); !ok {
		t.Fatal("call should succeed")
	}
	if got := counter.count(zerolog.WarnLevel); got != 1 {
		t.Fatalf("expected 1 slow-response warning, got %d", got)
	}
}
