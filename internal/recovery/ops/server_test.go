package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage/memory"
	"github.com/vietddude/triage/internal/recovery/escalate"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/metrics"
	"github.com/vietddude/triage/internal/recovery/partial"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// =============================================================================
// Mocks
// =============================================================================

type mockOrchestrator struct {
	mu     sync.Mutex
	starts int
}

func (o *mockOrchestrator) StartExecution(ctx context.Context, definition, name string, input map[string]any) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	return "exec-1", nil
}

type mockInvoker struct {
	mu      sync.Mutex
	invokes int
}

func (m *mockInvoker) Invoke(ctx context.Context, provider, method string, input map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokes++
	return map[string]any{}, nil
}

type mockChannel struct {
	mu        sync.Mutex
	published int
}

func (c *mockChannel) Publish(ctx context.Context, topic, subject string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published++
	return nil
}

type mockTicketer struct{}

func (mockTicketer) CreateTicket(ctx context.Context, details map[string]any, priority string) (string, error) {
	return "TICKET-7", nil
}

func newTestServer() (*Server, *mockOrchestrator, *mockInvoker, *memory.SampleRepo) {
	orch := &mockOrchestrator{}
	inv := &mockInvoker{}
	repo := memory.NewSampleRepo()
	s := NewServer(
		0,
		strategy.New(strategy.DefaultConfig(), strategy.DefaultRules(), fallback.DefaultTable()),
		partial.NewExecutor(orch, "recovery-pipeline"),
		fallback.NewExecutor(inv),
		escalate.NewNotifier(&mockChannel{}, mockTicketer{}, "ops-alerts"),
		metrics.NewRecorder(repo),
	)
	return s, orch, inv, repo
}

func post(t *testing.T, s *Server, body map[string]any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/ops", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return rec, resp
}

func taskBody() map[string]any {
	return map[string]any{
		"message_id": "msg-1",
		"agent_name": "browser",
		"attempt":    0,
		"error": map[string]any{
			"message": "ETIMEDOUT connecting to host",
		},
	}
}

// =============================================================================
// Envelope Tests
// =============================================================================

func TestOps_UnknownActionListsValidOnes(t *testing.T) {
	s, _, _, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{"action": "explode"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(resp.Error, "analyze-failure") || !strings.Contains(resp.Error, "get-statistics") {
		t.Errorf("expected error to list valid actions, got %q", resp.Error)
	}
	if resp.RequestID == "" {
		t.Error("expected request id on error responses")
	}
}

func TestOps_MethodNotAllowed(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/ops", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestOps_MissingFailedExecution(t *testing.T) {
	s, _, _, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{"action": "analyze-failure"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(resp.Error, "failed_execution") {
		t.Errorf("expected error naming the missing field, got %q", resp.Error)
	}
}

// =============================================================================
// Action Tests
// =============================================================================

func TestOps_AnalyzeFailure(t *testing.T) {
	s, _, _, repo := newTestServer()

	rec, resp := post(t, s, map[string]any{
		"action":           "analyze-failure",
		"failed_execution": taskBody(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}

	data := resp.Data.(map[string]any)
	if data["category"] != string(domain.CategoryTimeout) {
		t.Errorf("expected timeout category, got %v", data["category"])
	}
	decision := data["decision"].(map[string]any)
	if decision["strategy"] != string(domain.StrategyRetry) {
		t.Errorf("expected retry strategy, got %v", decision["strategy"])
	}

	n, _ := repo.Count(context.Background(), time.Time{})
	if n != 1 {
		t.Errorf("expected analysis recorded, got %d samples", n)
	}
}

func TestOps_PrepareRetryIncrementsAttempt(t *testing.T) {
	s, _, _, _ := newTestServer()

	body := taskBody()
	body["attempt"] = 1
	rec, resp := post(t, s, map[string]any{
		"action":           "prepare-retry",
		"failed_execution": body,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}

	data := resp.Data.(map[string]any)
	retryTask := data["retry_task"].(map[string]any)
	if retryTask["attempt"].(float64) != 2 {
		t.Errorf("expected attempt 2, got %v", retryTask["attempt"])
	}
	if name, _ := data["execution_name"].(string); !strings.HasPrefix(name, "manual-retry-msg-1-") {
		t.Errorf("unexpected execution name %v", data["execution_name"])
	}
	if data["wait_seconds"].(float64) <= 0 {
		t.Errorf("expected positive wait, got %v", data["wait_seconds"])
	}
}

func TestOps_ExecutePartialRetry(t *testing.T) {
	s, orch, _, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{
		"action":           "execute-partial-retry",
		"failed_execution": taskBody(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}
	if orch.starts != 1 {
		t.Errorf("expected 1 orchestrator start, got %d", orch.starts)
	}
}

func TestOps_ExecuteFallback(t *testing.T) {
	s, _, inv, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{
		"action":           "execute-fallback",
		"failed_execution": taskBody(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}
	if inv.invokes != 1 {
		t.Errorf("expected 1 fallback invocation, got %d", inv.invokes)
	}
	data := resp.Data.(map[string]any)
	if data["provider"] != "web-search" {
		t.Errorf("expected browser substitute web-search, got %v", data["provider"])
	}
}

func TestOps_ExecuteFallbackHonorsConfiguredTable(t *testing.T) {
	orch := &mockOrchestrator{}
	inv := &mockInvoker{}
	table := fallback.Table{Substitutes: map[string]string{"browser": "archive-search"}}
	s := NewServer(
		0,
		strategy.New(strategy.DefaultConfig(), strategy.DefaultRules(), table),
		partial.NewExecutor(orch, "recovery-pipeline"),
		fallback.NewExecutor(inv),
		escalate.NewNotifier(&mockChannel{}, mockTicketer{}, "ops-alerts"),
		metrics.NewRecorder(memory.NewSampleRepo()),
	)

	rec, resp := post(t, s, map[string]any{
		"action":           "execute-fallback",
		"failed_execution": taskBody(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["provider"] != "archive-search" {
		t.Errorf("expected configured substitute archive-search, got %v", data["provider"])
	}
}

func TestOps_SendAlertRequiresReason(t *testing.T) {
	s, _, _, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{
		"action":           "send-alert",
		"failed_execution": taskBody(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(resp.Error, "reason") {
		t.Errorf("expected error naming reason, got %q", resp.Error)
	}

	rec, resp = post(t, s, map[string]any{
		"action":           "send-alert",
		"failed_execution": taskBody(),
		"reason":           "manual escalation",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with reason, got %d: %s", rec.Code, resp.Error)
	}
}

func TestOps_CreateTicket(t *testing.T) {
	s, _, _, _ := newTestServer()

	rec, resp := post(t, s, map[string]any{"action": "create-ticket"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without failure_details, got %d", rec.Code)
	}

	rec, resp = post(t, s, map[string]any{
		"action":          "create-ticket",
		"failure_details": map[string]any{"summary": "stuck message"},
		"priority":        "high",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["ticket_id"] != "TICKET-7" {
		t.Errorf("expected TICKET-7, got %v", data["ticket_id"])
	}
}

func TestOps_GetStatistics(t *testing.T) {
	s, _, _, _ := newTestServer()

	// Seed one sample through a manual analysis.
	post(t, s, map[string]any{
		"action":           "analyze-failure",
		"failed_execution": taskBody(),
	})

	rec, resp := post(t, s, map[string]any{"action": "get-statistics"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["total"].(float64) != 1 {
		t.Errorf("expected 1 sample, got %v", data["total"])
	}
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
