package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient() *Client {
	return NewClient(ClientOptions{MaxRetries: 1, RetryBackoff: time.Millisecond}, noopLogger())
}

func TestPersistenceEmptySensorSkipsNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	source := NewPersistenceSource(srv.URL, newTestClient(), noopLogger())
	samples := source.FetchSamples(context.Background(), "", time.Now().Add(-time.Hour), time.Now())
	if samples != nil {
		t.Fatalf("empty sensor id must yield nil, got %v", samples)
	}
	if got := atomic.LoadInt32(&hits); got != 0 {
		t.Fatalf("empty sensor id must not hit the network, got %d requests", got)
	}
}

func TestPersistenceFetchMapsEpochMillis(t *testing.T) {
	start := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/persistence/items/Power_Total" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("starttime") == "" || r.URL.Query().Get("endtime") == "" {
			t.Fatalf("missing time window query, got %s", r.URL.RawQuery)
		}
		// entries deliberately out of order; the adapter must sort ascending
		_, _ = w.Write([]byte(`{"data":[
			{"state":"250.5","time":1786356000000},
			{"state":"unavailable","time":1786357800000},
			{"state":"120","time":1786354200000}
		]}`))
	}))
	defer srv.Close()

	source := NewPersistenceSource(srv.URL, newTestClient(), noopLogger())
	samples := source.FetchSamples(context.Background(), "Power_Total", start, end)

	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0].State != "120" || samples[1].State != "250.5" || samples[2].State != "unavailable" {
		t.Fatalf("samples not in ascending order: %+v", samples)
	}
	want := time.UnixMilli(1786354200000).UTC()
	if !samples[0].LastUpdated.Equal(want) {
		t.Fatalf("epoch-ms mapping wrong: want %s, got %s", want, samples[0].LastUpdated)
	}
	if loc := samples[0].LastUpdated.Location(); loc != time.UTC {
		t.Fatalf("timestamps must be UTC, got %v", loc)
	}
}

func TestPersistenceMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "definitely not a list"}`))
	}))
	defer srv.Close()

	source := NewPersistenceSource(srv.URL, newTestClient(), noopLogger())
	samples := source.FetchSamples(context.Background(), "Power_Total", time.Now().Add(-time.Hour), time.Now())
	if samples != nil {
		t.Fatalf("malformed payload must yield nil, got %v", samples)
	}
}

func TestPersistenceHistoryURLContainsWindow(t *testing.T) {
	source := NewPersistenceSource("http://openhab.local:8080", newTestClient(), noopLogger())
	start := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	url := source.HistoryURL("Power_Total", start, start.Add(time.Hour))
	if url == "" {
		t.Fatal("history URL must not be empty for a configured sensor")
	}
	if source.HistoryURL("", start, start.Add(time.Hour)) != "" {
		t.Fatal("history URL must be empty without a sensor")
	}
}
