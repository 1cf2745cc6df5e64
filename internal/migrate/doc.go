// Package migrate moves particles between ranks.
//
// A [Plan] fixes, for one run, which rank owns which domain and where a
// particle goes when it crosses into a domain. Outgoing particles are
// buffered per destination by a [Batcher] and shipped as msgpack encoded
// [Batch] messages over a [Comm], the in-process stand-in for a message
// passing fabric. Every rank ends a round in [Comm.AllReduce], which
// returns the global number of live particles (including those in flight)
// and the collective cancellation decision.
//
// The [Ledger] records ownership claims and releases so that tests and the
// coordinator can verify that no particle is ever owned by two ranks.
package migrate
