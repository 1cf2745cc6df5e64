// Package analysis turns finished trajectory sets into derived
// diagnostics.
//
// The package includes:
//
//   - [FTLE]: finite-time, finite-distance and finite-size Lyapunov
//     exponents over a regular seed grid
//   - [Punctures]: Poincaré punctures through a [PlaneSection] or a
//     [ToroidalSection]
//   - [Winding]: rotational transform, safety factor and rational
//     classification of a field line on a torus
//   - [SpectralIota]: FFT estimate of the rotational transform
//   - [Reconcile]: overlap handling of punctures from several curves
//   - [RefineRationalSurface]: radius of a rational surface q(r) = p/q
//
// Every function takes the complete trajectory set and never depends on
// the order in which trajectories finished.
//
// # Chaos Detection
//
// A positive FTLE ridge marks a repelling material line:
//
//	f, err := analysis.FTLE(trs, dims, analysis.ByTime, dynamo.Forward)
//	if err == nil && f.Max() > 0 {
//	    // separation grows somewhere on the grid
//	}
package analysis
