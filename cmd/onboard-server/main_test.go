package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/onboard/onboard/internal/config"
	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/domain/onboarding"
	"github.com/onboard/onboard/internal/platform/results"
	"github.com/onboard/onboard/internal/platform/webhook"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// replay
// ---------------------------------------------------------------------------

const lowRiskReplay = `
session_id: replay-1
user_id: u1
channel: app
started_at: "2024-03-01T09:30:00Z"
answers:
  - {question_id: pain_severity, value: 2}
  - {question_id: mood_interest, value: 0}
  - {question_id: mood_down, value: 0}
  - {question_id: emergency_check, value: [none]}
  - {question_id: exercise_days, value: 4}
  - {question_id: smoking_status, value: never}
  - {question_id: chronic_conditions, value: [none]}
  - {question_id: info_accurate, value: true}
  - {question_id: consent_share, value: true}
`

func TestReplay_CompletedSessionPrintsResult(t *testing.T) {
	out, err := runCmd(t, "replay", writeFile(t, "answers.yaml", lowRiskReplay))
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	var res struct {
		SessionID string `json:"session_id"`
		PathwayID string `json:"pathway_id"`
		Tier      string `json:"tier"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if res.SessionID != "replay-1" {
		t.Errorf("session_id = %q, want replay-1", res.SessionID)
	}
	if res.PathwayID != "standard_onboarding" {
		t.Errorf("pathway_id = %q, want standard_onboarding", res.PathwayID)
	}
	if res.Tier != string(catalog.TierLow) {
		t.Errorf("tier = %q, want low", res.Tier)
	}
}

func TestReplay_PartialSessionPrintsSnapshot(t *testing.T) {
	in := `{"user_id":"u1","answers":[{"question_id":"pain_severity","value":3}]}`
	out, err := runCmd(t, "replay", writeFile(t, "answers.json", in))
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	var st struct {
		CurrentQuestion string `json:"current_question"`
		Progress        int    `json:"progress"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if st.CurrentQuestion != "mood_interest" {
		t.Errorf("current_question = %q, want mood_interest", st.CurrentQuestion)
	}
	if st.Progress <= 0 || st.Progress >= 100 {
		t.Errorf("progress = %d, want between 0 and 100", st.Progress)
	}
}

func TestReplay_InvalidAnswerFails(t *testing.T) {
	in := `{"user_id":"u1","answers":[{"question_id":"pain_severity","value":42}]}`
	if _, err := runCmd(t, "replay", writeFile(t, "answers.json", in)); err == nil {
		t.Fatal("expected error for out-of-range answer")
	}
}

// ---------------------------------------------------------------------------
// catalog
// ---------------------------------------------------------------------------

func TestCatalogValidate(t *testing.T) {
	good := filepath.Join("..", "..", "internal", "domain", "catalog", catalog.DefaultFile)
	out, err := runCmd(t, "catalog", "validate", good)
	if err != nil {
		t.Fatalf("validate default catalog: %v\n%s", err, out)
	}
	if !strings.Contains(out, "version 2024.1") {
		t.Errorf("expected version in output, got %q", out)
	}

	bad := writeFile(t, "bad.yaml", "version: broken\ndomains: []\n")
	out, err = runCmd(t, "catalog", "validate", good, bad)
	if err == nil {
		t.Fatal("expected error for invalid catalog")
	}
	if !strings.Contains(out, "FAIL "+bad) {
		t.Errorf("expected failure line for %s, got %q", bad, out)
	}
}

func TestCatalogList(t *testing.T) {
	out, err := runCmd(t, "catalog", "list", "--dir", t.TempDir())
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected header and at least one catalog, got %q", out)
	}
	if !strings.HasPrefix(lines[2], "2024.1") {
		t.Errorf("expected 2024.1 row, got %q", lines[2])
	}
}

// ---------------------------------------------------------------------------
// token
// ---------------------------------------------------------------------------

func TestToken(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", strings.Repeat("k", 32))
	out, err := runCmd(t, "token", "--subject", "u1", "--role", "clinician")
	if err != nil {
		t.Fatalf("token: %v\n%s", err, out)
	}
	if n := strings.Count(strings.TrimSpace(out), "."); n != 2 {
		t.Errorf("expected a three-part JWT, got %q", out)
	}
}

func TestToken_RequiresSigningKey(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", "")
	if _, err := runCmd(t, "token", "--subject", "u1"); err == nil {
		t.Fatal("expected error without signing key")
	}
}

// ---------------------------------------------------------------------------
// HTTP wiring
// ---------------------------------------------------------------------------

func newTestEcho(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	catalogs := catalog.NewFSProvider("", "")
	sink := results.NewMemorySink()
	persister := results.NewPersister(sink, logger)
	svc := onboarding.NewService(catalogs, &onboarding.StaticProfiles{}, onboarding.NewMemoryStore(time.Hour),
		persister, sink, logger, onboarding.Options{})

	e := newEcho(cfg, logger, svc, healthChecks(catalogs, persister, &backends{}))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_HealthAndDevAuth(t *testing.T) {
	srv := newTestEcho(t, &config.Config{Env: "development"})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("expected no-store cache header, got %q", cc)
	}

	resp, err = http.Post(srv.URL+"/api/v1/assessments", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("dev start: expected 201, got %d", resp.StatusCode)
	}
}

func TestServer_JWTModeRejectsAnonymous(t *testing.T) {
	srv := newTestEcho(t, &config.Config{
		Env:            "production",
		AuthSigningKey: strings.Repeat("k", 32),
	})

	resp, err := http.Post(srv.URL+"/api/v1/assessments", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health stays public: expected 200, got %d", resp.StatusCode)
	}
}

func TestWireAlerts(t *testing.T) {
	type received struct {
		Type string
		Body map[string]any
	}
	got := make(chan received, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev struct {
			Data map[string]any `json:"data"`
		}
		_ = json.Unmarshal(body, &ev)
		got <- received{Type: r.Header.Get("X-Webhook-Event"), Body: ev.Data}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d, err := webhook.NewDispatcher(ts.URL, "s", zerolog.Nop(), webhook.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	persister := results.NewPersister(results.NewMemorySink(), zerolog.Nop())
	var opts onboarding.Options
	wireAlerts(d, persister, &opts)

	persister.Alert("sess-1", errors.New("sink down"))
	opts.OnEscalation("sess-2", "u1", assessment.EscalationEvent{RuleID: "cardiac_emergency"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	want := map[string]string{
		webhook.EventResultAbandoned:  "sess-1",
		webhook.EventEscalationRaised: "sess-2",
	}
	for i := 0; i < 2; i++ {
		select {
		case r := <-got:
			if r.Body["session_id"] != want[r.Type] {
				t.Errorf("%s: session_id = %v, want %s", r.Type, r.Body["session_id"], want[r.Type])
			}
			if r.Type == webhook.EventEscalationRaised && r.Body["rule_id"] != "cardiac_emergency" {
				t.Errorf("escalation payload missing rule id: %v", r.Body)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("alert not delivered")
		}
	}
}
