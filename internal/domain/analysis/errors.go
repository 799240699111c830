package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// Per-strategy failure taxonomy. These are recorded and swallowed inside the
// cascade; only ExhaustedError surfaces to the caller.
var (
	// ErrConfiguration indicates a strategy never became usable.
	ErrConfiguration = errors.New("strategy not configured")
	// ErrUnavailable indicates a strategy was skipped, not attempted.
	ErrUnavailable = errors.New("strategy unavailable")
	// ErrTimeout indicates a strategy exceeded its time budget.
	ErrTimeout = errors.New("strategy timed out")
	// ErrThermalThrottling indicates a backend was forced to downgrade or refused.
	ErrThermalThrottling = errors.New("thermal throttling")
	// ErrOutOfMemory indicates backend initialization or execution exhausted memory.
	ErrOutOfMemory = errors.New("backend out of memory")
	// ErrInference indicates a strategy ran and returned a domain error.
	ErrInference = errors.New("inference failed")
	// ErrQuotaExceeded indicates the cloud provider returned a quota/limit error.
	ErrQuotaExceeded = errors.New("cloud quota exceeded")
)

// ValidationError rejects a request before any cache/rate/cascade logic runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ExhaustedError is the terminal aggregate returned when every strategy was
// skipped or failed. It enumerates skipped versus attempted strategies and
// carries the last underlying error as its cause.
type ExhaustedError struct {
	Skipped   []string
	Attempted []string
	LastErr   error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all strategies exhausted")
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&b, "; skipped (unavailable): %s", strings.Join(e.Skipped, ", "))
	}
	if len(e.Attempted) > 0 {
		fmt.Fprintf(&b, "; attempted and failed: %s", strings.Join(e.Attempted, ", "))
	}
	if e.LastErr != nil {
		fmt.Fprintf(&b, "; last error: %v", e.LastErr)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
