package models

import "errors"

// Sentinel errors shared across the store, claims and gateway layers.
// Callers branch with errors.Is; hook handlers translate them into
// non-fatal JSON responses rather than exiting nonzero.
var (
	// ErrNotFound is returned when a KV key or claim id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClaimConflict is returned when a resource is actively claimed by
	// another claimant and is not stealable.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrNotAuthorized is returned when a release or progress update names
	// a claimant that does not hold the claim.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrGatewayDisabled is returned when the orchestrator gateway has been
	// switched off via the environment kill switch.
	ErrGatewayDisabled = errors.New("gateway disabled")
)
