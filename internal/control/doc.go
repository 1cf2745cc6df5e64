// Package control decides how far a particle moves in one step.
//
// A [Controller] wraps an integration scheme with adaptive error control,
// step bisection at domain boundaries and the non-fatal diagnostics
// (stiffness, circling near critical points). Each call to
// [Controller.Advance] leaves the particle in one of three states:
//
//   - [Stepped]: one accepted step was taken
//   - [AwaitingDomain]: the step needs field data this rank does not
//     have; Report.Probe locates the owning domain and [Controller.Cross]
//     hops the particle onto it
//   - [Failed]: an unrecoverable numerical failure
package control
