package catalog

import "errors"

// Error taxonomy surfaced to callers. Index and artifact store failures have
// no sentinel here: they are logged and treated as a miss.
var (
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a well-formed query that has no chord content.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks any failure of the live extraction stage.
	ErrUpstream = errors.New("upstream failure")
	// ErrUpstreamTimeout marks live extraction that ran out of time on every strategy.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamBlocked marks a renderer connection that was closed unexpectedly.
	ErrUpstreamBlocked = errors.New("upstream blocked")
)
