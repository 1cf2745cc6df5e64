package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for field-line integration.
var (
	// ErrNotResident indicates the sampled position lies outside every domain
	// hosted by the answering field source. It is a signal, not a failure.
	ErrNotResident = errors.New("flowline: position not resident in domain")

	// ErrNotFound indicates no domain of the decomposition contains a position.
	ErrNotFound = errors.New("flowline: position outside all domains")

	// ErrInvalidState indicates a position or vector containing NaN or Inf.
	ErrInvalidState = errors.New("flowline: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive control shrank the step below the minimum.
	ErrStepTooSmall = errors.New("flowline: step length below minimum")

	// ErrNoProgress indicates a particle kept hopping between domain faces
	// without an accepted integration step.
	ErrNoProgress = errors.New("flowline: no progress across domain faces")

	// ErrOwnership indicates two ranks claimed the same particle or a domain
	// had no consistent owner.
	ErrOwnership = errors.New("flowline: domain ownership inconsistency")

	// ErrProtocol indicates a malformed or misrouted migration message.
	ErrProtocol = errors.New("flowline: migration protocol violation")

	// ErrFieldUnavailable indicates the upstream reader failed for a live domain.
	ErrFieldUnavailable = errors.New("flowline: field source unavailable")

	// ErrCancelled indicates the run was interrupted by the control plane.
	ErrCancelled = errors.New("flowline: run cancelled")
)

// ParticleError wraps an error with the particle context that produced it.
type ParticleError struct {
	Particle int64
	Domain   int
	Time     float64
	Wrapped  error
}

func (e *ParticleError) Error() string {
	return fmt.Sprintf("particle %d (domain %d, t=%.4f): %v", e.Particle, e.Domain, e.Time, e.Wrapped)
}

func (e *ParticleError) Unwrap() error {
	return e.Wrapped
}
