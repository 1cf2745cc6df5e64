package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/migrate"
)

func TestDefaultRequestIsValid(t *testing.T) {
	require.NoError(t, DefaultRequest().Validate())
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"unknown scheme", func(r *Request) { r.Scheme = "rk9" }, "scheme"},
		{"zero abs tol", func(r *Request) { r.AbsTol = 0 }, "abs_tol"},
		{"negative rel tol", func(r *Request) { r.RelTol = -1 }, "rel_tol"},
		{"zero max step", func(r *Request) { r.MaxStep = 0 }, "max_step"},
		{"min above max", func(r *Request) { r.MinStep = 1 }, "min_step"},
		{"adaptive without min step", func(r *Request) { r.MinStep = 0 }, "min_step"},
		{"bad direction", func(r *Request) { r.Direction = dynamo.Direction(7) }, "direction"},
		{"no limits", func(r *Request) { r.Limits.MaxSteps = 0 }, "limits"},
		{"negative limit", func(r *Request) { r.Limits.MaxSize = -1 }, "limits"},
		{"negative cutoff", func(r *Request) { r.SpeedCutoff = -1 }, "speed_cutoff"},
		{"unknown strategy", func(r *Request) { r.Strategy = "gossip" }, "strategy"},
		{"no ranks", func(r *Request) { r.Ranks = 0 }, "ranks"},
		{"hybrid group too large", func(r *Request) {
			r.Strategy = migrate.Hybrid
			r.Ranks = 2
			r.GroupSize = 3
		}, "group_size"},
		{"no cache", func(r *Request) { r.CacheCapacity = 0 }, "cache_capacity"},
		{"empty work group", func(r *Request) { r.WorkGroupSize = 0 }, "work_group_size"},
		{"pathlines without time limit", func(r *Request) { r.Pathlines = true }, "limits.max_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestFixedSchemeAllowsZeroMinStep(t *testing.T) {
	req := DefaultRequest()
	req.Scheme = "rk4"
	req.MinStep = 0
	assert.NoError(t, req.Validate())
}

func TestFatalErrorUnwraps(t *testing.T) {
	err := &FatalError{Rank: 2, Err: dynamo.ErrFieldUnavailable}
	assert.ErrorIs(t, err, dynamo.ErrFieldUnavailable)
	assert.Contains(t, err.Error(), "rank 2")
}
