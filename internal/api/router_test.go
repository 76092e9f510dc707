package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"raidlab/internal/combatlog"
	"raidlab/internal/mechanics"
	"raidlab/internal/sim"
	"raidlab/internal/store"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// MockExtractor implements MechanicsExtractor and counts calls.
type MockExtractor struct {
	mu     sync.Mutex
	calls  int
	list   []mechanics.Mechanic
	source string
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		list: []mechanics.Mechanic{{
			Name: "Inferno Blast", Type: mechanics.TypeDodge, Color: "#ff4500",
			Damage: 20, Interval: 3000, Radius: 70,
		}},
		source: "preset",
	}
}

func (m *MockExtractor) ExtractWithSource(_ context.Context, _ *combatlog.LogSummary) ([]mechanics.Mechanic, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.list, m.source
}

func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRenderer implements FrameRenderer without drawing.
type MockRenderer struct {
	err error
}

func (m MockRenderer) EncodePNG(w io.Writer, snap *sim.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	_, err := w.Write([]byte("\x89PNG frame " + snap.SessionID))
	return err
}

type testEnv struct {
	ts        *httptest.Server
	extractor *MockExtractor
	sessions  *sim.Manager
	store     *store.Summaries
}

func newTestEnv(t *testing.T, tweak func(*RouterConfig)) *testEnv {
	t.Helper()
	env := &testEnv{
		extractor: NewMockExtractor(),
		sessions:  sim.NewManager(sim.ManagerConfig{MaxSessions: 5, FPS: 30, Engine: sim.DefaultConfig(), Seed: 1}),
		store:     store.NewSummaries(10, time.Hour),
	}
	cfg := RouterConfig{
		Store:           env.store,
		Sessions:        env.sessions,
		Extractor:       env.extractor,
		Renderer:        MockRenderer{},
		RateLimitConfig: &RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		DisableLogging:  true,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	env.ts = httptest.NewServer(NewRouter(cfg))
	t.Cleanup(func() {
		env.ts.Close()
		env.sessions.StopAll()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d want %d, body=%s", resp.StatusCode, want, b)
	}
}

func castLine(ts, target string) string {
	return "4/21 " + ts + `  SPELL_CAST_SUCCESS,Creature-0-1-2-3-100,"Infernal Colossus",0x0,0x0,0x0,"` + target + `",0x0,0x0,400101,"Inferno Blast",0x0`
}

func sampleLog() string {
	return strings.Join([]string{
		"4/21 19:59:59.000  ENCOUNTER_START,2900,\"Infernal Colossus\",16,20",
		castLine("20:00:00.000", "Brakka"),
		castLine("20:00:05.000", "Lumeria"),
		"garbage",
	}, "\n")
}

// ============================================================================
// Logs
// ============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/health", nil, "")
	expectStatus(t, resp, http.StatusOK)

	var body map[string]interface{}
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("body=%v", body)
	}
}

func TestUploadLog_RawBody(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/logs", strings.NewReader(sampleLog()), "text/plain")
	expectStatus(t, resp, http.StatusCreated)

	var created struct {
		ID      string                `json:"id"`
		Summary combatlog.LogSummary `json:"summary"`
	}
	decode(t, resp, &created)
	if created.ID == "" {
		t.Fatal("missing id")
	}
	if created.Summary.EncounterName != "Infernal Colossus" {
		t.Errorf("encounter=%q", created.Summary.EncounterName)
	}
	if created.Summary.SkippedLineCount != 1 {
		t.Errorf("skipped=%d, want 1", created.Summary.SkippedLineCount)
	}
	if len(created.Summary.Spells) != 1 || created.Summary.Spells[0].Count != 2 {
		t.Fatalf("spells=%+v", created.Summary.Spells)
	}

	resp = env.do(t, http.MethodGet, "/api/logs/"+created.ID, nil, "")
	expectStatus(t, resp, http.StatusOK)
	var got struct {
		ID      string                `json:"id"`
		Summary combatlog.LogSummary `json:"summary"`
	}
	decode(t, resp, &got)
	if got.ID != created.ID || got.Summary.EncounterName != "Infernal Colossus" {
		t.Errorf("got=%+v", got)
	}
}

func TestUploadLog_Multipart(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile("log", "WoWCombatLog.txt")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(fw, sampleLog())
	mw.Close()

	resp := env.do(t, http.MethodPost, "/api/logs", &buf, mw.FormDataContentType())
	expectStatus(t, resp, http.StatusCreated)
	if env.store.Len() != 1 {
		t.Errorf("store len=%d", env.store.Len())
	}
}

func TestUploadLog_Errors(t *testing.T) {
	var missing bytes.Buffer
	mw := multipart.NewWriter(&missing)
	mw.WriteField("note", "no log here")
	mw.Close()

	tests := []struct {
		name        string
		body        string
		contentType string
		maxBytes    int64
		wantCode    int
		wantError   string
	}{
		{"empty body", "", "text/plain", 0, http.StatusBadRequest, "empty_input"},
		{"only short lines", "abc\ndef\n", "text/plain", 0, http.StatusUnprocessableEntity, "no_valid_events"},
		{"over limit", strings.Repeat(castLine("20:00:00.000", "Brakka")+"\n", 10), "text/plain", 128, http.StatusRequestEntityTooLarge, "too_large"},
		{"multipart without log", missing.String(), mw.FormDataContentType(), 0, http.StatusBadRequest, "missing log field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *RouterConfig) { c.MaxUploadBytes = tt.maxBytes })
			resp := env.do(t, http.MethodPost, "/api/logs", strings.NewReader(tt.body), tt.contentType)
			expectStatus(t, resp, tt.wantCode)

			var body map[string]string
			decode(t, resp, &body)
			if body["error"] != tt.wantError {
				t.Errorf("error=%q, want %q", body["error"], tt.wantError)
			}
			if env.store.Len() != 0 {
				t.Error("failed upload should not be stored")
			}
		})
	}
}

func TestGetLog_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/api/logs/nope", "/api/logs/nope/mechanics", "/api/logs/nope/classifications"} {
		resp := env.do(t, http.MethodGet, path, nil, "")
		expectStatus(t, resp, http.StatusNotFound)
	}
}

func TestDemoLog(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/logs/demo", nil, "")
	expectStatus(t, resp, http.StatusOK)

	var got struct {
		ID      string                `json:"id"`
		Summary combatlog.LogSummary `json:"summary"`
	}
	decode(t, resp, &got)
	if got.ID != DemoLogID || got.Summary.EncounterName != "Demo: Infernal Colossus" {
		t.Errorf("got id=%q encounter=%q", got.ID, got.Summary.EncounterName)
	}
}

func TestMechanics_ExtractedOnce(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/logs", strings.NewReader(sampleLog()), "text/plain")
	expectStatus(t, resp, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	for _, id := range []string{created.ID, created.ID, DemoLogID, DemoLogID} {
		resp := env.do(t, http.MethodGet, "/api/logs/"+id+"/mechanics", nil, "")
		expectStatus(t, resp, http.StatusOK)

		var body struct {
			LogID     string               `json:"logId"`
			Source    string               `json:"source"`
			Mechanics []mechanics.Mechanic `json:"mechanics"`
		}
		decode(t, resp, &body)
		if body.LogID != id || body.Source != "preset" || len(body.Mechanics) != 1 {
			t.Errorf("body=%+v", body)
		}
	}

	if calls := env.extractor.Calls(); calls != 2 {
		t.Errorf("extractor calls=%d, want 2 (one per log)", calls)
	}
}

// failingClassifier always errors, forcing the heuristic.
type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, []combatlog.SpellStats) (map[string]mechanics.Classification, error) {
	return nil, errors.New("model offline")
}

func TestClassifications(t *testing.T) {
	for _, classifier := range []mechanics.Classifier{nil, failingClassifier{}} {
		env := newTestEnv(t, func(c *RouterConfig) { c.Classifier = classifier })

		resp := env.do(t, http.MethodGet, "/api/logs/demo/classifications", nil, "")
		expectStatus(t, resp, http.StatusOK)

		var body struct {
			Classifications map[string]mechanics.Classification `json:"classifications"`
		}
		decode(t, resp, &body)
		if _, ok := body.Classifications["Colossal Slam"]; !ok {
			t.Errorf("missing hostile ability: %v", body.Classifications)
		}
		if _, ok := body.Classifications["Fireball"]; ok {
			t.Error("friendly abilities should not be classified")
		}
		if roles := body.Classifications["Colossal Slam"].Roles; len(roles) != 1 || roles[0] != combatlog.RoleTank {
			t.Errorf("Colossal Slam roles=%v", roles)
		}
	}
}

// ============================================================================
// Sessions
// ============================================================================

func createSession(t *testing.T, env *testEnv, logID string) sim.Snapshot {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/sessions", strings.NewReader(`{"logId":"`+logID+`"}`), "application/json")
	expectStatus(t, resp, http.StatusCreated)
	var snap sim.Snapshot
	decode(t, resp, &snap)
	return snap
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	snap := createSession(t, env, DemoLogID)
	if snap.SessionID == "" || snap.Phase != sim.PhaseIdle || snap.IsRunning {
		t.Fatalf("created=%+v", snap)
	}
	if snap.Encounter != "Demo: Infernal Colossus" || len(snap.Mechanics) != 1 {
		t.Errorf("encounter=%q mechanics=%d", snap.Encounter, len(snap.Mechanics))
	}
	base := "/api/sessions/" + snap.SessionID

	resp := env.do(t, http.MethodPost, base+"/start", nil, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &snap)
	if !snap.IsRunning || snap.Phase != sim.PhaseRunning || snap.HP != 100 {
		t.Errorf("after start=%+v", snap)
	}

	resp = env.do(t, http.MethodPost, base+"/start", nil, "")
	expectStatus(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPut, base+"/input", strings.NewReader(`{"up":true,"left":true}`), "application/json")
	expectStatus(t, resp, http.StatusNoContent)

	resp = env.do(t, http.MethodPut, base+"/input", strings.NewReader(`not json`), "application/json")
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, base+"/stop", nil, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &snap)
	if snap.IsRunning || snap.Phase != sim.PhaseIdle {
		t.Errorf("after stop=%+v", snap)
	}

	resp = env.do(t, http.MethodPost, base+"/restart", nil, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &snap)
	if !snap.IsRunning {
		t.Errorf("after restart=%+v", snap)
	}

	resp = env.do(t, http.MethodGet, base+"/frame.png", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type=%q", ct)
	}

	resp = env.do(t, http.MethodGet, base, nil, "")
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodDelete, base, nil, "")
	expectStatus(t, resp, http.StatusNoContent)

	resp = env.do(t, http.MethodGet, base, nil, "")
	expectStatus(t, resp, http.StatusNotFound)
	resp = env.do(t, http.MethodDelete, base, nil, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestCreateSession_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing log id", `{}`, http.StatusBadRequest},
		{"unknown log", `{"logId":"missing"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/sessions", strings.NewReader(tt.body), "application/json")
			expectStatus(t, resp, tt.wantCode)
		})
	}
}

func TestCreateSession_Limit(t *testing.T) {
	env := newTestEnv(t, func(c *RouterConfig) {
		c.Sessions = sim.NewManager(sim.ManagerConfig{MaxSessions: 1, Engine: sim.DefaultConfig()})
	})
	createSession(t, env, DemoLogID)

	resp := env.do(t, http.MethodPost, "/api/sessions", strings.NewReader(`{"logId":"demo"}`), "application/json")
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

func TestSessionFrame_Renderer(t *testing.T) {
	tests := []struct {
		name     string
		renderer FrameRenderer
		wantCode int
	}{
		{"disabled", nil, http.StatusNotImplemented},
		{"failing", MockRenderer{err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *RouterConfig) { c.Renderer = tt.renderer })
			snap := createSession(t, env, DemoLogID)
			resp := env.do(t, http.MethodGet, "/api/sessions/"+snap.SessionID+"/frame.png", nil, "")
			expectStatus(t, resp, tt.wantCode)
		})
	}
}

func TestSessionRoutes_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/sessions/x"},
		{http.MethodPost, "/api/sessions/x/start"},
		{http.MethodPost, "/api/sessions/x/restart"},
		{http.MethodPost, "/api/sessions/x/stop"},
		{http.MethodPut, "/api/sessions/x/input"},
		{http.MethodGet, "/api/sessions/x/frame.png"},
	}
	for _, r := range routes {
		resp := env.do(t, r.method, r.path, strings.NewReader(`{}`), "application/json")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: status=%d", r.method, r.path, resp.StatusCode)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, func(c *RouterConfig) {
		c.RateLimitConfig = &RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})

	resp := env.do(t, http.MethodGet, "/health", nil, "")
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/health", nil, "")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}
