package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/flowline/internal/analysis"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"r0=3", " iota = 0.5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"r0": 3, "iota": 0.5}, got)

	got, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseParams([]string{"r0"})
	assert.Error(t, err)
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in      string
		want    analysis.Rational
		wantErr bool
	}{
		{"5/2", analysis.Rational{P: 5, Q: 2}, false},
		{"1/3", analysis.Rational{P: 1, Q: 3}, false},
		{"3", analysis.Rational{}, true},
		{"1/0", analysis.Rational{}, true},
		{"a/2", analysis.Rational{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRational(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
