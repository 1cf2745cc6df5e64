// Package particle holds the per-particle integration state and the
// trajectory record it accumulates.
//
// A [Particle] is owned by exactly one rank at a time. When it migrates the
// whole value, including its partial [Trajectory] and any multi-step
// history, travels in the message so that the receiving rank can continue
// the integration without gaps or duplicated samples.
package particle
