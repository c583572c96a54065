package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/clock"
	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/engine"
	apimw "github.com/hamed0406/healthwatch/internal/httpapi/middleware"
	"github.com/hamed0406/healthwatch/internal/probe"
)

// ---- test helpers ----

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeProber answers every probe with the current code.
type fakeProber struct {
	mu   sync.Mutex
	code int
}

func (f *fakeProber) set(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = code
}

func (f *fakeProber) prober() probe.Prober {
	return probe.Func(func(_ context.Context, c domain.CheckDefinition, loc string) domain.ProbeResult {
		f.mu.Lock()
		code := f.code
		f.mu.Unlock()
		r := domain.ProbeResult{CheckID: c.ID, Location: loc, Success: c.AcceptsStatus(code), LatencyMS: 12.5, HTTPStatus: &code}
		if !r.Success {
			r.Error = "unexpected status code"
		}
		return r
	})
}

type fixture struct {
	ts     *httptest.Server
	eng    *engine.Engine
	clk    *clock.Fake
	prober *fakeProber
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clk: clock.NewFake(t0), prober: &fakeProber{code: 200}}
	f.eng = engine.New(engine.Config{IncidentThreshold: 3, RecoveryThreshold: 2}, engine.Deps{
		Logger: zap.NewNop(),
		Clock:  f.clk,
		Prober: f.prober.prober(),
	})
	srv := NewServer(zap.NewNop(), f.eng, nil)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}

	// very high rate limits to avoid flakiness in tests
	f.ts = httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, key, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, _ := http.NewRequest(method, f.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func decodeInto(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

const apiHealth = `{"id":"api-health","name":"API","url":"https://EXAMPLE.com/","interval":"30s","critical":true}`

// ---- tests ----

func TestHealthz(t *testing.T) {
	f := setup(t)
	code, body := f.do(t, http.MethodGet, "/healthz", "", "")
	if code != 200 || string(body) != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}
}

func TestAddCheck_OK_Duplicate_Invalid(t *testing.T) {
	f := setup(t)

	code, body := f.do(t, http.MethodPost, "/api/checks", "adm_test", apiHealth)
	if code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", code, body)
	}
	var got checkView
	decodeInto(t, body, &got)
	if got.URL != "https://example.com" || got.Interval != "30s" || got.Timeout != "10s" || !got.Enabled || got.Method != "GET" {
		t.Fatalf("unexpected check: %+v", got)
	}
	if len(got.ExpectedStatus) != 1 || got.ExpectedStatus[0] != 200 {
		t.Fatalf("expected status default: %v", got.ExpectedStatus)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/checks", "adm_test", apiHealth); code != http.StatusConflict {
		t.Fatalf("duplicate: want 409, got %d", code)
	}

	invalid := []string{
		`{"id":"x","url":"ftp://example.com"}`,
		`{"id":"","url":"https://example.com"}`,
		`{"id":"x","url":"https://example.com","interval":"-5s"}`,
		`{"id":"x","url":"https://example.com","timeout":"soon"}`,
		`{"id":"x","url":"https://example.com","bogus":1}`,
		`not json`,
	}
	for _, b := range invalid {
		if code, resp := f.do(t, http.MethodPost, "/api/checks", "adm_test", b); code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d %s", b, code, resp)
		}
	}
}

func TestAuth_PublicVsAdmin(t *testing.T) {
	f := setup(t)
	if code, _ := f.do(t, http.MethodGet, "/api/checks", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("no key: want 401, got %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/checks", "pub_test", ""); code != http.StatusOK {
		t.Fatalf("public read: want 200, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/checks", "pub_test", apiHealth); code != http.StatusForbidden {
		t.Fatalf("public write: want 403, got %d", code)
	}
}

func TestCheckLifecycle_PatchResultsMetricsDelete(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/api/checks", "adm_test", apiHealth)

	ctx := context.Background()
	f.eng.Tick(ctx, "api-health")
	f.clk.Advance(30 * time.Second)
	f.prober.set(503)
	f.eng.Tick(ctx, "api-health")

	code, body := f.do(t, http.MethodGet, "/api/checks/api-health/results?limit=10", "pub_test", "")
	if code != 200 {
		t.Fatalf("results: %d %s", code, body)
	}
	var results []domain.ProbeResult
	decodeInto(t, body, &results)
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if code, _ := f.do(t, http.MethodGet, "/api/checks/api-health/results?limit=zero", "pub_test", ""); code != http.StatusBadRequest {
		t.Fatalf("bad limit: want 400, got %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/checks/api-health/metrics", "pub_test", "")
	if code != 200 {
		t.Fatalf("metrics: %d", code)
	}
	var m domain.ServiceMetrics
	decodeInto(t, body, &m)
	if m.TotalChecks != 2 || m.Uptime != 50 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	code, body = f.do(t, http.MethodPatch, "/api/checks/api-health", "adm_test", `{"interval":"2m","enabled":false}`)
	if code != 200 {
		t.Fatalf("patch: %d %s", code, body)
	}
	var v checkView
	decodeInto(t, body, &v)
	if v.Interval != "2m0s" || v.Enabled {
		t.Fatalf("patch not applied: %+v", v)
	}
	if code, _ := f.do(t, http.MethodPatch, "/api/checks/api-health", "adm_test", `{"url":"mailto:x"}`); code != http.StatusBadRequest {
		t.Fatalf("invalid patch: want 400, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPatch, "/api/checks/nope", "adm_test", `{"name":"x"}`); code != http.StatusNotFound {
		t.Fatalf("unknown patch: want 404, got %d", code)
	}

	if code, _ := f.do(t, http.MethodDelete, "/api/checks/api-health", "adm_test", ""); code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", code)
	}
	for _, p := range []string{"/api/checks/api-health", "/api/checks/api-health/metrics", "/api/checks/api-health/results"} {
		if code, _ := f.do(t, http.MethodGet, p, "pub_test", ""); code != http.StatusNotFound {
			t.Fatalf("%s after delete: want 404, got %d", p, code)
		}
	}
	if code, _ := f.do(t, http.MethodDelete, "/api/checks/api-health", "adm_test", ""); code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", code)
	}
}

func TestStatusAndAutoIncident(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/api/checks", "adm_test", apiHealth)
	f.prober.set(500)
	for i := 0; i < 3; i++ {
		f.eng.Tick(context.Background(), "api-health")
		f.clk.Advance(30 * time.Second)
	}

	code, body := f.do(t, http.MethodGet, "/api/status", "pub_test", "")
	if code != 200 {
		t.Fatalf("status: %d", code)
	}
	var snap domain.StatusSnapshot
	decodeInto(t, body, &snap)
	if snap.OverallStatus != domain.StatusMajorOutage {
		t.Fatalf("want major outage, got %s", snap.OverallStatus)
	}
	if len(snap.Incidents) != 1 || !snap.Incidents[0].AutoCreated {
		t.Fatalf("want one auto incident, got %+v", snap.Incidents)
	}

	code, body = f.do(t, http.MethodGet, "/api/incidents/"+snap.Incidents[0].ID, "pub_test", "")
	if code != 200 || !strings.Contains(string(body), "API is experiencing issues") {
		t.Fatalf("get incident: %d %s", code, body)
	}
}

func TestManualIncident_CreateUpdateResolve(t *testing.T) {
	f := setup(t)

	if code, _ := f.do(t, http.MethodPost, "/api/incidents", "adm_test", `{"title":"","severity":"high"}`); code != http.StatusBadRequest {
		t.Fatalf("missing title: want 400, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/incidents", "adm_test", `{"title":"x","severity":"apocalyptic"}`); code != http.StatusBadRequest {
		t.Fatalf("bad severity: want 400, got %d", code)
	}

	code, body := f.do(t, http.MethodPost, "/api/incidents", "adm_test",
		`{"title":"Payments slow","severity":"high","affected_services":["payments"],"author":"ops"}`)
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	var inc domain.Incident
	decodeInto(t, body, &inc)
	if inc.Status != domain.IncidentInvestigating || inc.AutoCreated {
		t.Fatalf("unexpected incident: %+v", inc)
	}

	path := "/api/incidents/" + inc.ID + "/updates"
	if code, _ := f.do(t, http.MethodPost, path, "adm_test", `{"status":"exploded"}`); code != http.StatusBadRequest {
		t.Fatalf("bad status: want 400, got %d", code)
	}
	code, body = f.do(t, http.MethodPost, path, "adm_test", `{"assignee":"sam","author":"ops"}`)
	if code != 200 {
		t.Fatalf("assign: %d %s", code, body)
	}
	decodeInto(t, body, &inc)
	if inc.Assignee != "sam" || inc.Timeline[len(inc.Timeline)-1].Kind != domain.UpdateAssignment {
		t.Fatalf("assignment not recorded: %+v", inc)
	}

	code, body = f.do(t, http.MethodPost, path, "adm_test", `{"status":"resolved","message":"fixed","author":"ops"}`)
	if code != 200 {
		t.Fatalf("resolve: %d %s", code, body)
	}
	decodeInto(t, body, &inc)
	if inc.Status != domain.IncidentResolved || inc.EndTime == nil {
		t.Fatalf("not resolved: %+v", inc)
	}
	if code, _ := f.do(t, http.MethodPost, path, "adm_test", `{"message":"again"}`); code != http.StatusConflict {
		t.Fatalf("resolved incident: want 409, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/incidents/missing/updates", "adm_test", `{"message":"x"}`); code != http.StatusNotFound {
		t.Fatalf("unknown incident: want 404, got %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/incidents", "pub_test", "")
	var list []domain.Incident
	decodeInto(t, body, &list)
	if code != 200 || len(list) != 1 {
		t.Fatalf("list: %d %+v", code, list)
	}
}

func TestMaintenance_ScheduleAndTransitions(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/api/checks", "adm_test", `{"id":"database-health","url":"https://db.example.com/health"}`)

	start := t0.Add(-time.Minute).Format(time.RFC3339)
	end := t0.Add(10 * time.Minute).Format(time.RFC3339)
	code, body := f.do(t, http.MethodPost, "/api/maintenance", "adm_test",
		`{"name":"DB upgrade","start":"`+start+`","end":"`+end+`","affected_services":["database-health"]}`)
	if code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", code, body)
	}
	var mw domain.MaintenanceWindow
	decodeInto(t, body, &mw)

	if code, _ := f.do(t, http.MethodPost, "/api/maintenance", "adm_test",
		`{"name":"backwards","start":"`+end+`","end":"`+start+`","affected_services":["database-health"]}`); code != http.StatusBadRequest {
		t.Fatalf("end before start: want 400, got %d", code)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/maintenance/"+mw.ID+"/complete", "adm_test", ""); code != http.StatusConflict {
		t.Fatalf("complete scheduled: want 409, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/maintenance/"+mw.ID+"/start", "adm_test", ""); code != 200 {
		t.Fatalf("start: want 200, got %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/status", "pub_test", "")
	var snap domain.StatusSnapshot
	decodeInto(t, body, &snap)
	if code != 200 || snap.Services[0].Status != domain.StatusMaintenance {
		t.Fatalf("want service in maintenance, got %+v", snap.Services)
	}

	if code, _ := f.do(t, http.MethodPost, "/api/maintenance/"+mw.ID+"/explode", "adm_test", ""); code != http.StatusNotFound {
		t.Fatalf("unknown action: want 404, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/maintenance/missing/cancel", "adm_test", ""); code != http.StatusNotFound {
		t.Fatalf("unknown window: want 404, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/maintenance/"+mw.ID+"/complete", "adm_test", ""); code != 200 {
		t.Fatalf("complete: want 200, got %d", code)
	}

	code, body = f.do(t, http.MethodGet, "/api/maintenance", "pub_test", "")
	var list []domain.MaintenanceWindow
	decodeInto(t, body, &list)
	if code != 200 || len(list) != 1 || list[0].Status != domain.MaintenanceCompleted {
		t.Fatalf("list: %d %+v", code, list)
	}
}

func TestListIncidents_Since(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/api/incidents", "adm_test", `{"title":"Queue backlog"}`)

	if code, _ := f.do(t, http.MethodGet, "/api/incidents?since=yesterday", "pub_test", ""); code != http.StatusBadRequest {
		t.Fatalf("bad since: want 400, got %d", code)
	}
	code, body := f.do(t, http.MethodGet, "/api/incidents?since="+t0.Add(-time.Hour).Format(time.RFC3339), "pub_test", "")
	var list []domain.Incident
	decodeInto(t, body, &list)
	if code != 200 || len(list) != 1 {
		t.Fatalf("since before start: %d %+v", code, list)
	}
	code, body = f.do(t, http.MethodGet, "/api/incidents?since="+t0.Add(time.Hour).Format(time.RFC3339), "pub_test", "")
	decodeInto(t, body, &list)
	if code != 200 || len(list) != 0 {
		t.Fatalf("since after start: %d %+v", code, list)
	}
}
