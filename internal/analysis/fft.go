package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const minSpectralPunctures = 8

// SpectralIota estimates ι modulo 1 from consecutive punctures of one
// field line through a toroidal section. Each puncture is taken as the
// phasor (R-R0) + i(Z-Z0); its rotation per transit is 2πι, so the
// spectral peak sits at ι cycles per transit.
func SpectralIota(ps []Puncture, axis Axis) (float64, error) {
	n := len(ps)
	if n < minSpectralPunctures {
		return 0, fmt.Errorf("%w: %d punctures, need %d", ErrTooShort, n, minSpectralPunctures)
	}

	hann := window.Hann(n)
	x := make([]complex128, n)
	for i, p := range ps {
		z := complex(p.U-axis.R, p.V-axis.Z)
		if abs := cmplx.Abs(z); abs > 0 {
			z /= complex(abs, 0)
		}
		x[i] = z * complex(hann[i], 0)
	}

	ps2 := PowerSpectrum(fft.FFT(x))
	peak := 0
	for i, v := range ps2 {
		if v > ps2[peak] {
			peak = i
		}
	}

	// Parabolic refinement on the circular spectrum.
	a := ps2[(peak-1+n)%n]
	b := ps2[peak]
	c := ps2[(peak+1)%n]
	shift := 0.0
	if den := a - 2*b + c; den != 0 {
		shift = 0.5 * (a - c) / den
	}
	iota := (float64(peak) + shift) / float64(n)
	return iota - math.Floor(iota), nil
}

// PowerSpectrum returns the magnitude of every frequency bin.
func PowerSpectrum(spec []complex128) []float64 {
	out := make([]float64, len(spec))
	for i, v := range spec {
		out[i] = cmplx.Abs(v)
	}
	return out
}
