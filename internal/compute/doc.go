// Package compute runs data-parallel loops on the active backend.
//
// Field sampling fills grid blocks through it:
//
//	compute.GetBackend().ParallelFor(rows, func(lo, hi int) {
//		for r := lo; r < hi; r++ {
//			// fill row r
//		}
//	})
//
// Only the CPU backend exists; small loops run inline.
package compute
