package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/recovery/classifier"
	"github.com/vietddude/triage/internal/recovery/escalate"
	"github.com/vietddude/triage/internal/recovery/fallback"
	"github.com/vietddude/triage/internal/recovery/metrics"
	"github.com/vietddude/triage/internal/recovery/partial"
	"github.com/vietddude/triage/internal/recovery/retrysched"
	"github.com/vietddude/triage/internal/recovery/strategy"
)

// statisticsWindow is the trailing window served by get-statistics.
const statisticsWindow = 24 * time.Hour

// Server is the synchronous manual-operations surface. Operators use it to
// re-run analysis, force a specific recovery action, or query aggregate
// statistics outside the automatic queue flow.
type Server struct {
	selector *strategy.Selector
	partial  *partial.Executor
	fallback *fallback.Executor
	notifier *escalate.Notifier
	recorder *metrics.Recorder
	server   *http.Server
	log      *slog.Logger
}

// NewServer creates the ops server. It also exposes /health and /metrics.
func NewServer(
	port int,
	selector *strategy.Selector,
	partialExec *partial.Executor,
	fallbackExec *fallback.Executor,
	notifier *escalate.Notifier,
	recorder *metrics.Recorder,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		selector: selector,
		partial:  partialExec,
		fallback: fallbackExec,
		notifier: notifier,
		recorder: recorder,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		log: slog.Default().With("component", "ops"),
	}

	mux.HandleFunc("/ops", s.handleOps)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// request is the JSON envelope for every ops action.
type request struct {
	Action          string                   `json:"action"`
	FailedExecution *domain.FailedTask       `json:"failed_execution,omitempty"`
	RetryConfig     *domain.RetryPlan        `json:"retry_configuration,omitempty"`
	PartialConfig   *domain.PartialRetryPlan `json:"partial_retry_config,omitempty"`
	FallbackConfig  *domain.FallbackPlan     `json:"fallback_config,omitempty"`
	FailureDetails  map[string]any           `json:"failure_details,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	Severity        string                   `json:"severity,omitempty"`
	Priority        string                   `json:"priority,omitempty"`
}

// response is the uniform ops envelope.
type response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id"`
}

// clientError marks validation failures that map to HTTP 400.
type clientError struct{ msg string }

func (e *clientError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &clientError{msg: fmt.Sprintf(format, args...)}
}

var actions = map[string]func(*Server, context.Context, *request) (any, error){
	"analyze-failure":       (*Server).analyzeFailure,
	"prepare-retry":         (*Server).prepareRetry,
	"execute-partial-retry": (*Server).executePartialRetry,
	"execute-fallback":      (*Server).executeFallback,
	"send-alert":            (*Server).sendAlert,
	"create-ticket":         (*Server).createTicket,
	"get-statistics":        (*Server).getStatistics,
}

func validActions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleOps(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	if r.Method != http.MethodPost {
		writeResponse(w, http.StatusMethodNotAllowed, response{
			Error: "only POST is supported", RequestID: requestID,
		})
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, response{
			Error: fmt.Sprintf("invalid request body: %v", err), RequestID: requestID,
		})
		return
	}

	handler, ok := actions[req.Action]
	if !ok {
		writeResponse(w, http.StatusBadRequest, response{
			Error: fmt.Sprintf("unknown action %q, valid actions: %s",
				req.Action, strings.Join(validActions(), ", ")),
			RequestID: requestID,
		})
		return
	}

	data, err := handler(s, r.Context(), &req)
	if err != nil {
		if ce, ok := err.(*clientError); ok {
			writeResponse(w, http.StatusBadRequest, response{Error: ce.msg, RequestID: requestID})
			return
		}
		// Internal details stay in the log; the caller correlates via the
		// request id.
		s.log.Error("Ops action failed", "action", req.Action, "request_id", requestID, "error", err)
		writeResponse(w, http.StatusInternalServerError, response{
			Error: "internal error", RequestID: requestID,
		})
		return
	}

	writeResponse(w, http.StatusOK, response{Success: true, Data: data, RequestID: requestID})
}

func (s *Server) analyzeFailure(ctx context.Context, req *request) (any, error) {
	task, err := requireTask(req.FailedExecution)
	if err != nil {
		return nil, err
	}

	category := classifier.Classify(task.Error)
	decision := s.selector.Select(task, category)
	s.recorder.Record(ctx, task, category, decision.Strategy)

	return map[string]any{
		"category": category,
		"decision": decision,
	}, nil
}

// retryPreparation is the prepare-retry result: everything needed to re-run
// the task, without executing anything.
type retryPreparation struct {
	WaitSeconds   float64            `json:"wait_seconds"`
	ExecutionName string             `json:"execution_name"`
	RetryTask     *domain.FailedTask `json:"retry_task"`
}

func (s *Server) prepareRetry(ctx context.Context, req *request) (any, error) {
	task, err := requireTask(req.FailedExecution)
	if err != nil {
		return nil, err
	}

	plan := s.selector.RetryPlan()
	if req.RetryConfig != nil {
		plan = *req.RetryConfig
	}

	retry := *task
	retry.Attempt = task.Attempt + 1

	return &retryPreparation{
		WaitSeconds:   retrysched.Delay(&plan, task.Attempt).Seconds(),
		ExecutionName: fmt.Sprintf("manual-retry-%s-%s", task.MessageID, uuid.New().String()),
		RetryTask:     &retry,
	}, nil
}

func (s *Server) executePartialRetry(ctx context.Context, req *request) (any, error) {
	task, err := requireTask(req.FailedExecution)
	if err != nil {
		return nil, err
	}

	plan := partial.BuildPlan(task)
	if req.PartialConfig != nil {
		plan = *req.PartialConfig
	}

	if err := s.partial.Execute(ctx, task, &plan); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, task, classifier.Classify(task.Error), domain.StrategyPartialRetry)
	return map[string]any{"skip_steps": plan.SkipSteps}, nil
}

func (s *Server) executeFallback(ctx context.Context, req *request) (any, error) {
	task, err := requireTask(req.FailedExecution)
	if err != nil {
		return nil, err
	}

	plan := fallback.BuildPlan(task, s.selector.FallbackTable())
	if req.FallbackConfig != nil {
		plan = *req.FallbackConfig
	}

	if err := s.fallback.Execute(ctx, task, &plan); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, task, classifier.Classify(task.Error), domain.StrategyFallback)
	return map[string]any{"provider": plan.Provider, "min_quality": plan.MinQuality}, nil
}

func (s *Server) sendAlert(ctx context.Context, req *request) (any, error) {
	task, err := requireTask(req.FailedExecution)
	if err != nil {
		return nil, err
	}

	severity := req.Severity
	if severity == "" {
		severity = "high"
	}
	reason := req.Reason
	if reason == "" {
		reason = task.Reason
	}
	if reason == "" {
		return nil, badRequest("missing required field: reason")
	}

	if err := s.notifier.EscalateSeverity(ctx, task, reason, severity); err != nil {
		return nil, err
	}
	return map[string]any{"severity": severity}, nil
}

func (s *Server) createTicket(ctx context.Context, req *request) (any, error) {
	if len(req.FailureDetails) == 0 {
		return nil, badRequest("missing required field: failure_details")
	}

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	ticketID, err := s.notifier.OpenTicket(ctx, req.FailureDetails, priority)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ticket_id": ticketID}, nil
}

func (s *Server) getStatistics(ctx context.Context, req *request) (any, error) {
	return s.recorder.Statistics(ctx, statisticsWindow)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireTask(task *domain.FailedTask) (*domain.FailedTask, error) {
	if task == nil {
		return nil, badRequest("missing required field: failed_execution")
	}
	if task.MessageID == "" {
		return nil, badRequest("missing required field: failed_execution.message_id")
	}
	if task.AgentName == "" {
		return nil, badRequest("missing required field: failed_execution.agent_name")
	}
	return task, nil
}

func writeResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
