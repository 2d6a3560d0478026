package classifier

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/triage/internal/core/domain"
)

// Classify maps error details to an error category. It never fails: messages
// that carry no category are inferred from the status code and message text,
// and anything unclassifiable degrades to CategoryUnknown.
func Classify(details domain.ErrorDetails) domain.ErrorCategory {
	if details.Category != "" {
		return details.Category
	}

	if c := fromStatusCode(details.StatusCode); c != domain.CategoryUnknown {
		return c
	}

	return fromMessage(details.Message)
}

// ClassifyErr maps a Go error to a category, honoring gRPC status codes when
// the error carries one.
func ClassifyErr(err error) domain.ErrorCategory {
	if err == nil {
		return domain.CategoryUnknown
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		if c := fromGRPCCode(st.Code()); c != domain.CategoryUnknown {
			return c
		}
	}

	return fromMessage(err.Error())
}

func fromStatusCode(code int) domain.ErrorCategory {
	switch {
	case code == 408 || code == 504:
		return domain.CategoryTimeout
	case code == 429:
		return domain.CategoryRateLimit
	case code == 503:
		return domain.CategoryServiceUnavailable
	case code == 400 || code == 422:
		return domain.CategoryValidation
	case code == 404 || code == 410:
		return domain.CategoryResourceNotFound
	case code == 401 || code == 403:
		return domain.CategoryAccessDenied
	case code >= 500 && code < 600:
		return domain.CategoryInternalError
	}
	return domain.CategoryUnknown
}

func fromGRPCCode(code codes.Code) domain.ErrorCategory {
	switch code {
	case codes.DeadlineExceeded:
		return domain.CategoryTimeout
	case codes.ResourceExhausted:
		return domain.CategoryRateLimit
	case codes.Unavailable:
		return domain.CategoryServiceUnavailable
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return domain.CategoryValidation
	case codes.NotFound:
		return domain.CategoryResourceNotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		return domain.CategoryAccessDenied
	case codes.Internal, codes.DataLoss:
		return domain.CategoryInternalError
	}
	return domain.CategoryUnknown
}

func fromMessage(msg string) domain.ErrorCategory {
	s := strings.ToLower(msg)

	switch {
	case strings.Contains(s, "etimedout") || strings.Contains(s, "timed out") ||
		strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return domain.CategoryTimeout

	case strings.Contains(s, "429") || strings.Contains(s, "too many requests") ||
		strings.Contains(s, "rate limit") || strings.Contains(s, "quota"):
		return domain.CategoryRateLimit

	case strings.Contains(s, "throttl"):
		return domain.CategoryThrottling

	case strings.Contains(s, "503") || strings.Contains(s, "unavailable") ||
		strings.Contains(s, "connection refused") || strings.Contains(s, "econnrefused") ||
		strings.Contains(s, "econnreset"):
		return domain.CategoryServiceUnavailable

	case strings.Contains(s, "validation") || strings.Contains(s, "invalid param") ||
		strings.Contains(s, "invalid input") || strings.Contains(s, "malformed") ||
		strings.Contains(s, "schema"):
		return domain.CategoryValidation

	case strings.Contains(s, "not found") || strings.Contains(s, "404") ||
		strings.Contains(s, "nosuchkey") || strings.Contains(s, "does not exist"):
		return domain.CategoryResourceNotFound

	case strings.Contains(s, "access denied") || strings.Contains(s, "accessdenied") ||
		strings.Contains(s, "403") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "unauthorized") || strings.Contains(s, "permission"):
		return domain.CategoryAccessDenied

	case strings.Contains(s, "500") || strings.Contains(s, "502") ||
		strings.Contains(s, "internal server error") || strings.Contains(s, "internal error") ||
		strings.Contains(s, "panic"):
		return domain.CategoryInternalError
	}

	return domain.CategoryUnknown
}
