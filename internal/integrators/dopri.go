package integrators

import "github.com/san-kum/flowline/internal/dynamo"

// Dormand-Prince 5(4) tableau.
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// hairerBound is the stability boundary used by the stiffness test.
const hairerBound = 3.25

// DormandPrince is the embedded 5(4) pair with first-same-as-last reuse:
// the field sample at the end of an accepted step is carried in History
// and reused as the first stage of the next step.
type DormandPrince struct{}

func NewDormandPrince() *DormandPrince {
	return &DormandPrince{}
}

func (d *DormandPrince) Name() string   { return "dopri5" }
func (d *DormandPrince) Order() int     { return 5 }
func (d *DormandPrince) Adaptive() bool { return true }

func (d *DormandPrince) Step(f Func, s State, h float64) (Result, error) {
	x, t := s.Pos, s.Time

	var k1 dynamo.Vec3
	if len(s.History) == 1 {
		k1 = s.History[0]
	} else {
		var err error
		if k1, err = checked(f(x, t)); err != nil {
			return Result{}, err
		}
	}

	k2, err := checked(f(x.AddScaled(h*b21, k1), t+a2*h))
	if err != nil {
		return Result{}, err
	}
	k3, err := checked(f(x.AddScaled(h*b31, k1).AddScaled(h*b32, k2), t+a3*h))
	if err != nil {
		return Result{}, err
	}
	k4, err := checked(f(x.AddScaled(h*b41, k1).AddScaled(h*b42, k2).AddScaled(h*b43, k3), t+a4*h))
	if err != nil {
		return Result{}, err
	}
	k5, err := checked(f(x.AddScaled(h*b51, k1).AddScaled(h*b52, k2).AddScaled(h*b53, k3).AddScaled(h*b54, k4), t+a5*h))
	if err != nil {
		return Result{}, err
	}
	x6 := x.AddScaled(h*b61, k1).AddScaled(h*b62, k2).AddScaled(h*b63, k3).AddScaled(h*b64, k4).AddScaled(h*b65, k5)
	k6, err := checked(f(x6, t+h))
	if err != nil {
		return Result{}, err
	}

	xNew := x.AddScaled(h*c1, k1).AddScaled(h*c3, k3).AddScaled(h*c4, k4).AddScaled(h*c5, k5).AddScaled(h*c6, k6)
	k7, err := checked(f(xNew, t+h))
	if err != nil {
		return Result{}, err
	}

	var e dynamo.Vec3
	for i := 0; i < 3; i++ {
		e[i] = h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
	}

	// Hairer's test: h·|k7-k6|/|x7-x6| estimates h·ρ(J).
	stiff := false
	if den := xNew.Sub(x6).Norm(); den > 0 {
		rho := k7.Sub(k6).Norm() / den
		stiff = abs(h)*rho > hairerBound
	}

	return Result{
		Pos:      xNew,
		Velocity: k1,
		ErrEst:   &e,
		Stiff:    stiff,
		History:  []dynamo.Vec3{k7},
	}, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

var _ Scheme = (*DormandPrince)(nil)
