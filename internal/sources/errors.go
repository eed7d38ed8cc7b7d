package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for adapter failures. The orchestrator classifies
// errors with errors.Is against these to pick retry and breaker
// behavior.
var (
	// ErrSourceUnavailable covers network and server failures.
	// Retryable; consecutive occurrences drive the circuit breaker.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrRateLimited means the source asked us to back off. Retryable
	// with the longest backoff base.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedRecord means a record could not be parsed. Never
	// retried; the record is skipped and the cycle continues.
	ErrMalformedRecord = errors.New("malformed record")
)

// Wrap tags err with a sentinel marker and operation context.
func Wrap(marker error, source, operation string, err error) error {
	detail := buildDetail(source, operation)
	if marker == nil {
		marker = ErrSourceUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind labels an adapter failure for audit entries and backoff
// selection.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindRateLimit   ErrorKind = "rate_limit"
	KindMalformed   ErrorKind = "malformed"
	KindTimeout     ErrorKind = "timeout"
)

// Classify maps an adapter error to its kind. Timeouts are a retryable
// network failure for adapters.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrMalformedRecord):
		return KindMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnavailable
	}
}

// Retryable reports whether the orchestrator should retry the call.
func Retryable(err error) bool {
	return Classify(err) != KindMalformed
}

func buildDetail(source, operation string) string {
	parts := make([]string, 0, 2)
	if source = strings.TrimSpace(source); source != "" {
		parts = append(parts, source)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "adapter failure"
	}
	return strings.Join(parts, ": ")
}
