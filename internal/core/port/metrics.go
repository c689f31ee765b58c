package port

// AuthMetrics captures telemetry hooks for authentication outcomes and
// degraded-mode operation.
type AuthMetrics interface {
	IncLogin(outcome string)
	IncLockout()
	IncRateLimited(class string)
	IncTokenReuse()
	// IncStoreDegraded counts operations that failed open or closed because
	// the counter store was unavailable.
	IncStoreDegraded(component string)
}
