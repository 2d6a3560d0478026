package classifier

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/triage/internal/core/domain"
)

func TestClassify_EmbeddedCategoryWins(t *testing.T) {
	details := domain.ErrorDetails{
		Category: domain.CategoryThrottling,
		Message:  "ETIMEDOUT connecting to upstream", // would infer timeout
	}

	if got := Classify(details); got != domain.CategoryThrottling {
		t.Errorf("expected throttling, got %s", got)
	}
}

func TestClassify_InferFromMessage(t *testing.T) {
	cases := []struct {
		message string
		want    domain.ErrorCategory
	}{
		{"ETIMEDOUT", domain.CategoryTimeout},
		{"request timed out after 30s", domain.CategoryTimeout},
		{"context deadline exceeded", domain.CategoryTimeout},
		{"429 Too Many Requests", domain.CategoryRateLimit},
		{"daily quota exceeded", domain.CategoryRateLimit},
		{"request was throttled by provider", domain.CategoryThrottling},
		{"connection refused", domain.CategoryServiceUnavailable},
		{"service unavailable", domain.CategoryServiceUnavailable},
		{"validation failed on field 'query'", domain.CategoryValidation},
		{"invalid parameter: top_k", domain.CategoryValidation},
		{"document not found", domain.CategoryResourceNotFound},
		{"NoSuchKey: the specified key does not exist", domain.CategoryResourceNotFound},
		{"Access Denied", domain.CategoryAccessDenied},
		{"403 Forbidden", domain.CategoryAccessDenied},
		{"internal server error", domain.CategoryInternalError},
		{"something exploded", domain.CategoryUnknown},
		{"", domain.CategoryUnknown},
	}

	for _, tc := range cases {
		got := Classify(domain.ErrorDetails{Message: tc.message})
		if got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassify_StatusCode(t *testing.T) {
	cases := []struct {
		code int
		want domain.ErrorCategory
	}{
		{408, domain.CategoryTimeout},
		{429, domain.CategoryRateLimit},
		{503, domain.CategoryServiceUnavailable},
		{400, domain.CategoryValidation},
		{404, domain.CategoryResourceNotFound},
		{403, domain.CategoryAccessDenied},
		{500, domain.CategoryInternalError},
	}

	for _, tc := range cases {
		got := Classify(domain.ErrorDetails{StatusCode: tc.code, Message: "opaque"})
		if got != tc.want {
			t.Errorf("Classify(status %d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestClassifyErr_GRPCStatus(t *testing.T) {
	cases := []struct {
		code codes.Code
		want domain.ErrorCategory
	}{
		{codes.DeadlineExceeded, domain.CategoryTimeout},
		{codes.ResourceExhausted, domain.CategoryRateLimit},
		{codes.Unavailable, domain.CategoryServiceUnavailable},
		{codes.InvalidArgument, domain.CategoryValidation},
		{codes.NotFound, domain.CategoryResourceNotFound},
		{codes.PermissionDenied, domain.CategoryAccessDenied},
		{codes.Internal, domain.CategoryInternalError},
	}

	for _, tc := range cases {
		err := status.Error(tc.code, "provider error")
		if got := ClassifyErr(err); got != tc.want {
			t.Errorf("ClassifyErr(%s) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestClassifyErr_PlainError(t *testing.T) {
	if got := ClassifyErr(errors.New("rate limit exceeded")); got != domain.CategoryRateLimit {
		t.Errorf("expected rate_limit, got %s", got)
	}
	if got := ClassifyErr(nil); got != domain.CategoryUnknown {
		t.Errorf("expected unknown for nil, got %s", got)
	}
}
