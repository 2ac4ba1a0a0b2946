package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/padhub/backend/internal/apperr"
)

var networkKeywords = []string{
	"network",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"fetch failed",
	"unexpected eof",
}

// Postgres SQLSTATE codes that describe a transient backend condition.
var transientDataCodes = map[string]apperr.NetworkErrorType{
	"53300": apperr.NetworkTypeServer, // too_many_connections
	"57P01": apperr.NetworkTypeServer, // admin_shutdown
	"57P02": apperr.NetworkTypeServer, // crash_shutdown
	"57P03": apperr.NetworkTypeServer, // cannot_connect_now
	"40001": apperr.NetworkTypeServer, // serialization_failure
	"40P01": apperr.NetworkTypeServer, // deadlock_detected
}

// Classify decides whether err is worth retrying. Network-class failures and
// 5xx statuses are retryable; authentication, permission and validation
// failures never are, and anything unrecognised is left alone.
func Classify(err error) *apperr.NetworkError {
	if err == nil {
		return nil
	}

	var netErr *apperr.NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}

	var authErr *apperr.AuthenticationError
	if errors.As(err, &authErr) {
		return &apperr.NetworkError{Type: apperr.NetworkTypeAuth, StatusCode: http.StatusUnauthorized, Err: err}
	}
	var permErr *apperr.PermissionError
	if errors.As(err, &permErr) {
		return &apperr.NetworkError{Type: apperr.NetworkTypePermission, StatusCode: http.StatusForbidden, Err: err}
	}
	if apperr.IsValidation(err) {
		return &apperr.NetworkError{Type: apperr.NetworkTypeValidation, Err: err}
	}

	var statusErr *apperr.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode, err)
	}

	if errors.Is(err, context.Canceled) {
		return &apperr.NetworkError{Type: apperr.NetworkTypeUnknown, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperr.NetworkError{Type: apperr.NetworkTypeTimeout, Retryable: true, Err: err}
	}

	var dataErr *apperr.DataError
	if errors.As(err, &dataErr) {
		if strings.HasPrefix(dataErr.Code, "08") {
			return &apperr.NetworkError{Type: apperr.NetworkTypeNetwork, Retryable: true, Err: err}
		}
		if t, ok := transientDataCodes[dataErr.Code]; ok {
			return &apperr.NetworkError{Type: t, Retryable: true, Err: err}
		}
		if dataErr.Code == "42501" {
			return &apperr.NetworkError{Type: apperr.NetworkTypePermission, StatusCode: http.StatusForbidden, Err: err}
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &apperr.NetworkError{Type: apperr.NetworkTypeTimeout, Retryable: true, Err: err}
		}
		return &apperr.NetworkError{Type: apperr.NetworkTypeNetwork, Retryable: true, Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range networkKeywords {
		if strings.Contains(msg, kw) {
			t := apperr.NetworkTypeNetwork
			if strings.Contains(kw, "time") {
				t = apperr.NetworkTypeTimeout
			}
			return &apperr.NetworkError{Type: t, Retryable: true, Err: err}
		}
	}

	return &apperr.NetworkError{Type: apperr.NetworkTypeUnknown, Err: err}
}

func classifyStatus(code int, err error) *apperr.NetworkError {
	switch {
	case code == http.StatusUnauthorized:
		return &apperr.NetworkError{Type: apperr.NetworkTypeAuth, StatusCode: code, Err: err}
	case code == http.StatusForbidden:
		return &apperr.NetworkError{Type: apperr.NetworkTypePermission, StatusCode: code, Err: err}
	case code >= 500:
		return &apperr.NetworkError{Type: apperr.NetworkTypeServer, Retryable: true, StatusCode: code, Err: err}
	default:
		return &apperr.NetworkError{Type: apperr.NetworkTypeUnknown, StatusCode: code, Err: err}
	}
}
