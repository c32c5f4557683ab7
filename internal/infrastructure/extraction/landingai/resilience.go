package landingai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "landingai status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("landingai %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("landingai %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyUpstreamError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}

// wrapUpstreamError maps a failed (already retried) upstream call onto the
// service error kinds: transport-level trouble means the API is unavailable,
// a definitive non-retryable status means it rejected the document.
func wrapUpstreamError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrUpstreamUnavailable) || domain.IsKind(err, domain.ErrUpstreamRejected) {
		return err
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && !isRetryableHTTPStatus(statusErr.StatusCode) {
		return domain.WrapError(domain.ErrUpstreamRejected, operation, err)
	}
	return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
