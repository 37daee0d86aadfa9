package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/food-access-cli/internal/apperr"
)

// TransientError marks an error as safe to retry (429, 5xx, timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err is worth retrying. Empty results and
// integrity failures never are, even when they wrap a network error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindEmptyResult, apperr.KindInvalidInput, apperr.KindDataIntegrity, apperr.KindMissingProjection:
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"gateway timeout",
		"too many requests",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
