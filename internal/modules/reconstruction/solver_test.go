package reconstruction

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGonumSolverSolvesQuadratic(t *testing.T) {
	target := []float64{1.5, -2, 0.25, 3}
	objective := func(x []float64) float64 {
		var f float64
		for i, v := range x {
			d := v - target[i]
			f += d * d
		}
		return f
	}

	solver := NewGonumSolver(zerolog.Nop())
	res := solver.Solve(Problem{
		Objective: objective,
		Initial:   make([]float64, len(target)),
	}, DefaultConfig(ModeState))

	require.Equal(t, StatusSolved, res.Status)
	require.Len(t, res.X, len(target))
	for i, want := range target {
		assert.InDelta(t, want, res.X[i], 1e-5, "x[%d]", i)
	}
	assert.InDelta(t, 0, res.Objective, 1e-9)
}
