package identify

import "errors"

// Errors surfaced to callers of the identification service.
var (
	// ErrQuotaExceeded means the upstream call budget for the current
	// period is spent. Definitive for the period; not retried.
	ErrQuotaExceeded = errors.New("identification quota exceeded")

	// ErrCircuitOpen means the upstream is presumed unhealthy and the
	// call was rejected without being attempted.
	ErrCircuitOpen = errors.New("identification circuit open")

	// ErrUpstream wraps a failed upstream call (network, timeout,
	// malformed response).
	ErrUpstream = errors.New("identification upstream call failed")
)

// ErrLockTimeout is internal: lock acquisition exceeded its wait budget.
// The service falls back to an unlocked attempt instead of surfacing it.
var ErrLockTimeout = errors.New("identification lock timeout")
