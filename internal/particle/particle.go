package particle

import (
	"errors"
	"fmt"

	"github.com/san-kum/flowline/internal/dynamo"
)

// Status of a particle.
type Status int

const (
	Active Status = iota
	Terminated
)

func (s Status) String() string {
	if s == Terminated {
		return "terminated"
	}
	return "active"
}

// Reason records why a particle stopped.
type Reason int

const (
	None Reason = iota
	ExitedDomain
	MaxSteps
	MaxTime
	MaxDistance
	MaxSize
	CriticalPoint
	Error
	Cancelled
)

var reasonNames = map[Reason]string{
	None:          "none",
	ExitedDomain:  "exited_domain",
	MaxSteps:      "max_steps",
	MaxTime:       "max_time",
	MaxDistance:   "max_distance",
	MaxSize:       "max_size",
	CriticalPoint: "critical_point",
	Error:         "error",
	Cancelled:     "cancelled",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ParseReason is the inverse of Reason.String.
func ParseReason(s string) (Reason, error) {
	for r, name := range reasonNames {
		if name == s {
			return r, nil
		}
	}
	return None, fmt.Errorf("unknown termination reason: %s", s)
}

// ErrFinalized is returned when appending to a finalized trajectory.
var ErrFinalized = errors.New("particle: trajectory already finalized")

// Point is one recorded trajectory sample.
type Point struct {
	Position dynamo.Vec3 `msgpack:"p" json:"position"`
	Time     float64     `msgpack:"t" json:"time"`
	Scalar   float64     `msgpack:"s" json:"scalar"`
}

// Trajectory is the ordered list of samples of one particle.
type Trajectory struct {
	ParticleID int64            `msgpack:"id" json:"particle_id"`
	SeedID     int              `msgpack:"seed" json:"seed_id"`
	Direction  dynamo.Direction `msgpack:"dir" json:"direction"`
	Points     []Point          `msgpack:"pts" json:"points"`
	Reason     Reason           `msgpack:"r" json:"reason"`
	finalized  bool
}

// Append adds a sample. Samples must arrive in integration order.
func (tr *Trajectory) Append(p Point) error {
	if tr.finalized {
		return ErrFinalized
	}
	tr.Points = append(tr.Points, p)
	return nil
}

// Finalize freezes the trajectory with its termination reason.
func (tr *Trajectory) Finalize(r Reason) {
	if tr.finalized {
		return
	}
	tr.Reason = r
	tr.finalized = true
}

func (tr *Trajectory) Finalized() bool { return tr.finalized }

func (tr *Trajectory) Len() int { return len(tr.Points) }

// End returns the last recorded sample.
func (tr *Trajectory) End() (Point, bool) {
	if len(tr.Points) == 0 {
		return Point{}, false
	}
	return tr.Points[len(tr.Points)-1], true
}

// ArcLength sums the polyline length of the recorded samples.
func (tr *Trajectory) ArcLength() float64 {
	total := 0.0
	for i := 1; i < len(tr.Points); i++ {
		total += tr.Points[i].Position.Sub(tr.Points[i-1].Position).Norm()
	}
	return total
}

// Particle is the mutable integration state of one field line.
type Particle struct {
	ID         int64            `msgpack:"id"`
	SeedID     int              `msgpack:"seed"`
	Origin     dynamo.Vec3      `msgpack:"o"`
	Position   dynamo.Vec3      `msgpack:"x"`
	Time       float64          `msgpack:"t"`
	StartTime  float64          `msgpack:"t0"`
	Direction  dynamo.Direction `msgpack:"dir"`
	ArcLength  float64          `msgpack:"arc"`
	StepLength float64          `msgpack:"h"`
	Steps      int              `msgpack:"n"`
	Domain     int              `msgpack:"dom"`
	Rank       int              `msgpack:"rank"`
	Status     Status           `msgpack:"st"`
	Reason     Reason           `msgpack:"why"`
	Failure    string           `msgpack:"err,omitempty"`
	Speed      float64          `msgpack:"v"`

	// History holds previous field samples for multi-step schemes,
	// newest last. It is reset whenever the step length changes.
	History     []dynamo.Vec3 `msgpack:"hist,omitempty"`
	HistoryStep float64       `msgpack:"histh,omitempty"`

	// Stiffness bookkeeping for embedded schemes.
	StiffCount    int `msgpack:"sc,omitempty"`
	NonStiffCount int `msgpack:"nsc,omitempty"`

	// Face hops since the last accepted step.
	Crossings int `msgpack:"cx,omitempty"`

	// Critical point window.
	WindowOrigin dynamo.Vec3 `msgpack:"wo"`
	WindowArc    float64     `msgpack:"wa"`
	WindowSteps  int         `msgpack:"ws"`
	WindowSlow   bool        `msgpack:"wsl"`
	Flags        Flags       `msgpack:"f"`

	Trace Trajectory `msgpack:"tr"`
}

// Flags remembers which one-shot warnings a particle already raised.
type Flags uint8

const (
	FlagStiff Flags = 1 << iota
	FlagCircling
)

// New creates an active particle at origin.
func New(id int64, seedID int, origin dynamo.Vec3, t0 float64, dir dynamo.Direction, h float64) *Particle {
	p := &Particle{
		ID:           id,
		SeedID:       seedID,
		Origin:       origin,
		Position:     origin,
		Time:         t0,
		StartTime:    t0,
		Direction:    dir,
		StepLength:   dir.Sign() * h,
		Domain:       -1,
		Rank:         -1,
		WindowOrigin: origin,
		Trace: Trajectory{
			ParticleID: id,
			SeedID:     seedID,
			Direction:  dir,
		},
	}
	return p
}

func (p *Particle) IsActive() bool { return p.Status == Active }

// Elapsed returns the absolute integration time since the seed.
func (p *Particle) Elapsed() float64 {
	d := p.Time - p.StartTime
	if d < 0 {
		return -d
	}
	return d
}

// Displacement returns the straight-line distance from the seed.
func (p *Particle) Displacement() float64 {
	return p.Position.Sub(p.Origin).Norm()
}

// Terminate marks the particle finished. It reports false, changing
// nothing, when the particle was already terminated.
func (p *Particle) Terminate(r Reason) bool {
	if p.Status == Terminated {
		return false
	}
	p.Status = Terminated
	p.Reason = r
	return true
}

// Record appends the current state to the trajectory.
func (p *Particle) Record() error {
	return p.Trace.Append(Point{Position: p.Position, Time: p.Time, Scalar: p.Speed})
}

// Finish finalizes the trajectory of a terminated particle and hands it off.
func (p *Particle) Finish() (*Trajectory, error) {
	if p.Status != Terminated {
		return nil, fmt.Errorf("particle %d: finish while active", p.ID)
	}
	tr := p.Trace
	tr.Points = append([]Point(nil), p.Trace.Points...)
	tr.Finalize(p.Reason)
	return &tr, nil
}

// ResetHistory clears the multi-step history.
func (p *Particle) ResetHistory() {
	p.History = p.History[:0]
	p.HistoryStep = 0
}
