// Package field adapts an upstream mesh/field reader into the per-rank
// sampling service used by the integrators.
//
// A [Provider] hands out [Block]s, one per (domain, snapshot). A [Source]
// keeps the blocks it has loaded in a bounded LRU [Cache] and answers
// point queries, interpolating linearly in time between the two snapshots
// that bracket the query time when integrating pathlines.
//
// Sampling a position outside every hosted domain returns
// [dynamo.ErrNotResident]; callers treat that as a request to locate the
// owning domain elsewhere, not as a failure.
package field
