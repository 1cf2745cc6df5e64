// Package dynamo provides the core primitives shared by every stage of the
// field-line engine.
//
// The package defines the small value types and error vocabulary that the
// field, integrator, tracker and migration layers exchange:
//
//   - [Vec3]: a position or vector sample in three dimensions
//   - [Warnings]: run-wide accumulator for non-fatal diagnostics
//   - [ParticleError]: an error annotated with the particle that raised it
//
// # Thread Safety
//
// [Vec3] is a value type. [Warnings] is safe for concurrent use; every rank
// of a run appends to the same accumulator.
package dynamo
