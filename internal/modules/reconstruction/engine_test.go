package reconstruction

import (
	"testing"
	"time"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSolver returns a canned status, optionally rewriting the initial
// point before echoing it back as the solution.
type fakeSolver struct {
	status    Status
	transform func(x []float64) []float64
}

func (f *fakeSolver) Solve(p Problem, cfg Config) SolveResult {
	x := p.Initial
	if f.transform != nil {
		x = f.transform(x)
	}
	return SolveResult{Status: f.status, X: x, Objective: p.Objective(x)}
}

func TestReconstructGroundState(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildStateModel(b, groundStateRecords(), zerolog.Nop())
	require.NoError(t, err)

	engine := NewEngine(nil, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, DefaultConfig(ModeState))
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.Equal(t, StatusSolved, result.Status)
	require.NotNil(t, result.Estimate)
	assert.True(t, result.Complete)

	rho := result.Estimate.State
	assert.InDelta(t, 1, real(rho.At(0, 0)), 1e-5)
	assert.InDelta(t, 0, real(rho.At(1, 1)), 1e-5)
	assert.InDelta(t, 1, real(rho.Trace()), 1e-9)
	assert.True(t, qmat.IsPSD(rho, 1e-8))
	require.NotNil(t, result.Seed)
}

func TestReconstructInconsistentData(t *testing.T) {
	// A Bloch vector of length √3·0.9 > 1 has no density matrix; the
	// engine must still return a physical estimate.
	records := []measurement.Record{
		{Setting: "X", Counts: map[string]int{"0": 950, "1": 50}, Shots: 1000},
		{Setting: "Y", Counts: map[string]int{"0": 950, "1": 50}, Shots: 1000},
		{Setting: "Z", Counts: map[string]int{"0": 950, "1": 50}, Shots: 1000},
	}
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildStateModel(b, records, zerolog.Nop())
	require.NoError(t, err)

	engine := NewEngine(nil, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, DefaultConfig(ModeState))
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.NotNil(t, result.Estimate)

	rho := result.Estimate.State
	assert.True(t, rho.IsHermitian(1e-9))
	assert.InDelta(t, 1, real(rho.Trace()), 1e-9)
	assert.True(t, qmat.IsPSD(rho, 1e-7))
}

func TestReconstructIdentityProcess(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildProcessModel(b, identityProcessRecords(), zerolog.Nop())
	require.NoError(t, err)

	engine := NewEngine(nil, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, DefaultConfig(ModeProcess))
	require.NoError(t, err)
	require.NoError(t, result.Err())
	require.Equal(t, StatusSolved, result.Status)
	require.NotNil(t, result.Estimate)
	require.NotNil(t, result.Estimate.PTM)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, result.Estimate.PTM.At(i, j), 1e-4, "PTM[%d,%d]", i, j)
		}
	}
	assert.LessOrEqual(t, result.TPDeviation, DefaultConfig(ModeProcess).TPTolerance)
	assert.True(t, qmat.IsPSD(result.Estimate.Choi, 1e-7))
}

func TestReconstructTimeout(t *testing.T) {
	// Inconsistent data with unequal shot weights puts the seed away from
	// the weighted optimum, so a single iteration cannot converge.
	records := []measurement.Record{
		{Setting: "X", Counts: map[string]int{"0": 900, "1": 100}, Shots: 1000},
		{Setting: "Y", Counts: map[string]int{"0": 95, "1": 5}, Shots: 100},
		{Setting: "Z", Counts: map[string]int{"0": 950, "1": 50}, Shots: 1000},
	}
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildStateModel(b, records, zerolog.Nop())
	require.NoError(t, err)

	cfg := DefaultConfig(ModeState)
	cfg.Weighting = WeightingShotNoise
	cfg.MaxIterations = 1
	engine := NewEngine(nil, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, result.Status)
	assert.Nil(t, result.Estimate)
	assert.ErrorIs(t, result.Err(), domain.ErrReconstructionFailed)
}

func TestReconstructInfeasibleSolver(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildStateModel(b, groundStateRecords(), zerolog.Nop())
	require.NoError(t, err)

	engine := NewEngine(&fakeSolver{status: StatusInfeasible}, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, DefaultConfig(ModeState))
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Nil(t, result.Estimate)
	assert.ErrorIs(t, result.Err(), domain.ErrReconstructionFailed)
	// Linear-inversion seed remains available for diagnostics.
	assert.NotNil(t, result.Seed)
}

func TestReconstructRejectsTPViolation(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildProcessModel(b, identityProcessRecords(), zerolog.Nop())
	require.NoError(t, err)

	// Shrinking the factor halves every output trace, breaking trace
	// preservation while staying positive semidefinite.
	shrink := &fakeSolver{status: StatusSolved, transform: func(x []float64) []float64 {
		out := make([]float64, len(x))
		for i, v := range x {
			out[i] = 0.5 * v
		}
		return out
	}}
	engine := NewEngine(shrink, zerolog.Nop())
	result, err := engine.Reconstruct(model, b, DefaultConfig(ModeProcess))
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, result.Status)
	assert.Nil(t, result.Estimate)
}

func TestReconstructValidatesConfig(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	model, err := measurement.BuildStateModel(b, groundStateRecords(), zerolog.Nop())
	require.NoError(t, err)

	engine := NewEngine(nil, zerolog.Nop())
	cfg := DefaultConfig(ModeState)
	cfg.MaxIterations = 0
	_, err = engine.Reconstruct(model, b, cfg)
	assert.ErrorIs(t, err, domain.ErrInputValidation)

	cfg = DefaultConfig(ModeState)
	cfg.Mode = Mode("channel")
	_, err = engine.Reconstruct(model, b, cfg)
	assert.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusSolved.Terminal())
	assert.True(t, StatusTimeout.Terminal())
	assert.True(t, StatusInfeasible.Terminal())
	assert.False(t, StatusSolving.Terminal())
	assert.False(t, StatusUnsolved.Terminal())

	assert.True(t, StatusSolved.Consumable())
	assert.False(t, StatusTimeout.Consumable())
	assert.False(t, StatusInfeasible.Consumable())
}

func TestGonumSolverBudgetExpired(t *testing.T) {
	cfg := DefaultConfig(ModeState)
	cfg.Budget = time.Nanosecond
	cfg.MaxIterations = 1
	solver := NewGonumSolver(zerolog.Nop())
	res := solver.Solve(Problem{
		Objective: func(x []float64) float64 { return x[0]*x[0] + 1 },
		Initial:   []float64{3},
	}, cfg)
	assert.Equal(t, StatusTimeout, res.Status)
}
