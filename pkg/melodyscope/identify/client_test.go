package identify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/fingerprint"
)

func testFingerprint() *fingerprint.Fingerprint {
	return &fingerprint.Fingerprint{Token: "AQAAf0qUJEuXJEGW", Duration: 212.5}
}

func testClient(endpoint string) *Client {
	c := NewClient(endpoint, "testkey")
	c.Timeout = 2 * time.Second
	c.backoff = time.Millisecond
	return c
}

const rankedBody = `{
	"status": "ok",
	"results": [
		{
			"id": "res-low",
			"score": 0.31,
			"recordings": [{"id": "rec-low", "title": "B Side", "artists": [{"name": "Some Band"}]}]
		},
		{
			"id": "res-high",
			"score": 0.97,
			"recordings": [{"id": "rec-high", "title": "Hit Single", "artists": [{"name": "Famous Artist"}]}]
		}
	]
}`

func TestLookupRankedCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("client"); got != "testkey" {
			t.Errorf("Expected client param testkey, got %q", got)
		}
		if r.URL.Query().Get("fingerprint") == "" {
			t.Error("Expected fingerprint param")
		}
		w.Write([]byte(rankedBody))
	}))
	defer server.Close()

	candidates, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].RecordingID != "rec-high" || candidates[0].Confidence != 0.97 {
		t.Errorf("Candidates not ranked by confidence: %+v", candidates[0])
	}
	if candidates[0].Artist != "Famous Artist" || candidates[0].Title != "Hit Single" {
		t.Errorf("Metadata not extracted: %+v", candidates[0])
	}
	if candidates[1].RecordingID != "rec-low" {
		t.Errorf("Expected rec-low second, got %+v", candidates[1])
	}
}

func TestLookupNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "results": []}`))
	}))
	defer server.Close()

	candidates, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if err != nil {
		t.Fatalf("A well-formed empty reply is not an error, got: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("Expected no candidates, got %d", len(candidates))
	}
}

func TestLookupRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(rankedBody))
	}))
	defer server.Close()

	candidates, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if err != nil {
		t.Fatalf("Expected retry to succeed, got: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("Expected candidates after retry, got %d", len(candidates))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestLookupRetriesAfterTimeout(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			time.Sleep(300 * time.Millisecond)
			return
		}
		w.Write([]byte(rankedBody))
	}))
	defer server.Close()

	c := testClient(server.URL)
	c.Timeout = 50 * time.Millisecond

	candidates, err := c.Lookup(context.Background(), testFingerprint())
	if err != nil {
		t.Fatalf("Expected third attempt to succeed after two timeouts, got: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("Expected candidates after retry, got %d", len(candidates))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestLookupExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != DefaultMaxRetries+1 {
		t.Errorf("Expected %d attempts, got %d", DefaultMaxRetries+1, got)
	}
}

func TestLookupInvalidResponseNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse, got: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Malformed replies must not be retried, got %d attempts", got)
	}
}

func TestLookupErrorStatusNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"status": "error", "error": {"message": "invalid API key"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Lookup(context.Background(), testFingerprint())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse for service-level error, got: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Service-level errors must not be retried, got %d attempts", got)
	}
}

func TestLookupTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := testClient(server.URL)
	c.Timeout = 50 * time.Millisecond
	c.MaxRetries = 0

	_, err := c.Lookup(context.Background(), testFingerprint())
	if !errors.Is(err, ErrLookupTimeout) {
		t.Fatalf("Expected ErrLookupTimeout, got: %v", err)
	}
}

func TestLookupRespectsCancelledContext(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(server.URL).Lookup(ctx, testFingerprint())
	if err == nil {
		t.Fatal("Expected error with cancelled context")
	}
	if got := atomic.LoadInt32(&calls); got > 1 {
		t.Errorf("Cancelled context must stop retries, got %d attempts", got)
	}
}

func TestParseLookupResponseClampsScores(t *testing.T) {
	body := []byte(`{
		"status": "ok",
		"results": [
			{"id": "r1", "score": 1.7, "recordings": [{"id": "rec1", "title": "T"}]},
			{"id": "r2", "score": -0.3}
		]
	}`)

	candidates, err := parseLookupResponse(body)
	if err != nil {
		t.Fatalf("parseLookupResponse failed: %v", err)
	}
	if candidates[0].Confidence != 1 {
		t.Errorf("Score above 1 must clamp to 1, got %v", candidates[0].Confidence)
	}
	if candidates[1].Confidence != 0 {
		t.Errorf("Negative score must clamp to 0, got %v", candidates[1].Confidence)
	}
}

func TestParseLookupResponseMissingResults(t *testing.T) {
	if _, err := parseLookupResponse([]byte(`{"status": "ok"}`)); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Expected ErrInvalidResponse for missing results, got: %v", err)
	}
}
