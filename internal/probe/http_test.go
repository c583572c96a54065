package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/domain"
)

// newTestProber records requested backoff delays instead of sleeping.
func newTestProber(sleeps *[]time.Duration) *HTTPProber {
	p := NewHTTPProber(zap.NewNop(), time.Second)
	p.DNS = nil
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return p
}

func checkFor(url string) domain.CheckDefinition {
	c := domain.CheckDefinition{
		ID:       "c1",
		URL:      url,
		Timeout:  2 * time.Second,
		Interval: time.Minute,
		Enabled:  true,
	}
	c.ApplyDefaults()
	return c
}

func TestHTTPProber_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	var sleeps []time.Duration
	out := newTestProber(&sleeps).Probe(context.Background(), checkFor(s.URL), "eu")
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.HTTPStatus == nil || *out.HTTPStatus != 200 {
		t.Fatalf("want status 200, got %v", out.HTTPStatus)
	}
	if out.Location != "eu" || out.CheckID != "c1" {
		t.Fatalf("identity not carried: %+v", out)
	}
	if out.Details["attempts"] != "1" || len(sleeps) != 0 {
		t.Fatalf("want a single attempt, got %v sleeps=%v", out.Details, sleeps)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPProber_RetriesWithLinearBackoff(t *testing.T) {
	var hits int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	c := checkFor(s.URL)
	c.Retries = 2

	var sleeps []time.Duration
	out := newTestProber(&sleeps).Probe(context.Background(), c, "")
	if out.Success {
		t.Fatalf("want failure, got %+v", out)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("want 1+retries=3 requests, got %d", got)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("want backoff [1s 2s], got %v", sleeps)
	}
	if out.HTTPStatus == nil || *out.HTTPStatus != 500 {
		t.Fatalf("want last status 500, got %v", out.HTTPStatus)
	}
	if out.Details["attempts"] != "3" || out.Details["failure"] != FailureStatus {
		t.Fatalf("unexpected details: %v", out.Details)
	}
	if !strings.Contains(out.Error, "500") {
		t.Fatalf("error should carry last reason, got %q", out.Error)
	}
}

func TestHTTPProber_SucceedsAfterRetry(t *testing.T) {
	var hits int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer s.Close()

	c := checkFor(s.URL)
	c.Retries = 3

	var sleeps []time.Duration
	out := newTestProber(&sleeps).Probe(context.Background(), c, "")
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if out.Details["attempts"] != "2" || len(sleeps) != 1 {
		t.Fatalf("loop should exit on first success: %v %v", out.Details, sleeps)
	}
	if out.Error != "" {
		t.Fatalf("successful probe should carry no error, got %q", out.Error)
	}
}

func TestHTTPProber_ExpectedStatusSet(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	c := checkFor(s.URL)
	var sleeps []time.Duration
	if out := newTestProber(&sleeps).Probe(context.Background(), c, ""); out.Success {
		t.Fatal("204 is not in the default expected set")
	}
	c.ExpectedStatus = []int{200, 204}
	if out := newTestProber(&sleeps).Probe(context.Background(), c, ""); !out.Success {
		t.Fatalf("204 should be accepted: %+v", out)
	}
}

func TestHTTPProber_ContentMismatch(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer s.Close()

	c := checkFor(s.URL)
	c.ExpectedContent = `"status":"ok"`

	var sleeps []time.Duration
	out := newTestProber(&sleeps).Probe(context.Background(), c, "")
	if out.Success {
		t.Fatalf("want content failure, got %+v", out)
	}
	if out.Details["failure"] != FailureContent {
		t.Fatalf("want failure=content, got %v", out.Details)
	}

	c.ExpectedContent = "degraded"
	if out := newTestProber(&sleeps).Probe(context.Background(), c, ""); !out.Success {
		t.Fatalf("substring match should succeed: %+v", out)
	}
}

func TestHTTPProber_TimeoutIsPerAttempt(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	c := checkFor(s.URL)
	c.Timeout = 50 * time.Millisecond
	c.Retries = 1

	var sleeps []time.Duration
	out := newTestProber(&sleeps).Probe(context.Background(), c, "")
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.HTTPStatus != nil {
		t.Fatalf("want no status on transport error, got %d", *out.HTTPStatus)
	}
	if out.Details["failure"] != FailureTimeout || out.Details["attempts"] != "2" {
		t.Fatalf("unexpected details: %v", out.Details)
	}
}

func TestHTTPProber_SendsMethodHeadersBody(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(201)
	}))
	defer s.Close()

	c := checkFor(s.URL)
	c.Method = "POST"
	c.Headers = map[string]string{"X-Probe": "yes"}
	c.Body = `{"ping":true}`
	c.ExpectedStatus = []int{201}

	var sleeps []time.Duration
	if out := newTestProber(&sleeps).Probe(context.Background(), c, ""); !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if gotMethod != "POST" || gotHeader != "yes" || gotBody != `{"ping":true}` {
		t.Fatalf("request not built from check: %s %s %s", gotMethod, gotHeader, gotBody)
	}
}

func TestHTTPProber_UnreachableAddsDNSClass(t *testing.T) {
	p := NewHTTPProber(zap.NewNop(), 0)
	c := checkFor("http://127.0.0.1:1")
	out := p.Probe(context.Background(), c, "")
	if out.Success {
		t.Fatal("expected failure for unreachable target")
	}
	if out.Details["failure"] != FailureNetwork {
		t.Fatalf("want network failure, got %v", out.Details)
	}
	if out.Details["dns"] != DNSLocalAddress {
		t.Fatalf("want dns=%s, got %q", DNSLocalAddress, out.Details["dns"])
	}
}

func TestDNSDiagnoser_InvalidName(t *testing.T) {
	d := NewDNSDiagnoser(time.Second)
	for _, host := range []string{"", "https://x"} {
		if got := d.Classify(context.Background(), host).Class; got != DNSInvalidName {
			t.Fatalf("Classify(%q)=%s want %s", host, got, DNSInvalidName)
		}
	}
}

func TestHTTPProber_CancelledContextSkipsDNS(t *testing.T) {
	p := NewHTTPProber(zap.NewNop(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := p.Probe(ctx, checkFor("http://127.0.0.1:1"), "")
	if out.Success {
		t.Fatal("a cancelled probe cannot succeed")
	}
	if _, ok := out.Details["dns"]; ok {
		t.Fatalf("no DNS classification after cancellation, got %v", out.Details)
	}
}
