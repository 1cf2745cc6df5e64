package particle

import (
	"testing"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticle(t *testing.T) {
	p := New(3, 1, dynamo.Vec3{1, 2, 3}, 0.5, dynamo.Backward, 0.1)

	assert.True(t, p.IsActive())
	assert.Equal(t, -0.1, p.StepLength, "backward particles carry a negative step")
	assert.Equal(t, dynamo.Vec3{1, 2, 3}, p.Position)
	assert.Equal(t, int64(3), p.Trace.ParticleID)
	assert.Equal(t, -1, p.Domain)
}

func TestTerminate_Idempotent(t *testing.T) {
	p := New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.1)

	require.True(t, p.Terminate(MaxSteps))
	assert.False(t, p.Terminate(Error))
	assert.Equal(t, MaxSteps, p.Reason)
	assert.Equal(t, Terminated, p.Status)
}

func TestFinish(t *testing.T) {
	p := New(1, 0, dynamo.Vec3{}, 0, dynamo.Forward, 0.1)
	require.NoError(t, p.Record())

	_, err := p.Finish()
	require.Error(t, err, "finishing an active particle must fail")

	p.Position = dynamo.Vec3{1, 0, 0}
	p.Time = 1
	require.NoError(t, p.Record())
	p.Terminate(MaxTime)

	tr, err := p.Finish()
	require.NoError(t, err)
	assert.True(t, tr.Finalized())
	assert.Equal(t, MaxTime, tr.Reason)
	assert.Equal(t, 2, tr.Len())
	assert.InDelta(t, 1.0, tr.ArcLength(), 1e-12)

	assert.ErrorIs(t, tr.Append(Point{}), ErrFinalized)
	end, ok := tr.End()
	require.True(t, ok)
	assert.Equal(t, 1.0, end.Time)
}

func TestReasonRoundTrip(t *testing.T) {
	for r := None; r <= Cancelled; r++ {
		got, err := ParseReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseReason("bogus")
	assert.Error(t, err)
}

func TestElapsedAndDisplacement(t *testing.T) {
	p := New(1, 0, dynamo.Vec3{0, 0, 0}, 2, dynamo.Backward, 0.1)
	p.Time = 1.5
	p.Position = dynamo.Vec3{0, 3, 4}

	assert.InDelta(t, 0.5, p.Elapsed(), 1e-12)
	assert.InDelta(t, 5.0, p.Displacement(), 1e-12)
}
