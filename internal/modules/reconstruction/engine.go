package reconstruction

import (
	"fmt"
	"math"
	"time"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/rs/zerolog"
)

// Engine formulates the constrained reconstruction program and validates
// the solver's answer. Physical validity is encoded in a factor
// parameterization: states are ρ = T†T / Tr(T†T) and Choi matrices are
// C = T†T over a general complex factor T, so positivity (and for states,
// unit trace) hold by construction; trace preservation enters the
// objective as a penalty term.
type Engine struct {
	solver Solver
	log    zerolog.Logger
}

// NewEngine creates a reconstruction engine. A nil solver selects the
// gonum-backed default.
func NewEngine(solver Solver, log zerolog.Logger) *Engine {
	if solver == nil {
		solver = NewGonumSolver(log)
	}
	return &Engine{
		solver: solver,
		log:    log.With().Str("component", "reconstruction").Logger(),
	}
}

// Result is the outcome of a constrained reconstruction. Estimate is nil
// unless Status is StatusSolved; Seed always carries the linear-inversion
// estimate for diagnostics.
type Result struct {
	Status      Status
	Estimate    *Estimate
	Seed        *Estimate
	TPDeviation float64
	Objective   float64
	Iterations  int
	Runtime     time.Duration
	Complete    bool
}

// Err returns a typed error describing a non-solved result, nil otherwise.
func (r *Result) Err() error {
	if r.Status.Consumable() {
		return nil
	}
	return fmt.Errorf("%w: solver terminated with status %q", domain.ErrReconstructionFailed, r.Status)
}

// Reconstruct solves the constrained program for the model's data under
// the given configuration. Solver-level failures surface as the
// Infeasible/Timeout states of the result, never as a physically invalid
// estimate.
func (e *Engine) Reconstruct(model *measurement.Model, b *basis.Basis, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed, err := LinearInvert(model, b, cfg.Mode)
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeState:
		return e.reconstructState(model, b, cfg, seed)
	case ModeProcess:
		return e.reconstructProcess(model, b, cfg, seed)
	}
	return nil, fmt.Errorf("%w: unknown reconstruction mode %q", domain.ErrInputValidation, cfg.Mode)
}

func (e *Engine) reconstructState(model *measurement.Model, b *basis.Basis, cfg Config, seed *Estimate) (*Result, error) {
	d := b.Dim()
	weights := residualWeights(model, cfg)

	rhoSeed, err := psdProject(seed.State, cfg.EigClipTolerance, true)
	if err != nil {
		return nil, err
	}
	t0, err := qmat.SqrtPSD(rhoSeed, cfg.EigClipTolerance)
	if err != nil {
		return nil, err
	}

	stateOf := func(theta []float64) *qmat.Matrix {
		t := unpackFactor(theta, d)
		rho := qmat.Mul(t.Dagger(), t)
		tr := real(rho.Trace())
		if tr < 1e-12 {
			return qmat.Scale(complex(1/float64(d), 0), qmat.Identity(d))
		}
		return qmat.Scale(complex(1/tr, 0), rho)
	}

	objective := func(theta []float64) float64 {
		coeffs, err := b.Unfold(stateOf(theta))
		if err != nil {
			return math.Inf(1)
		}
		return weightedResidual(model, coeffs, weights)
	}

	res := e.solver.Solve(Problem{Objective: objective, Initial: packFactor(t0)}, cfg)
	result := &Result{
		Status:     res.Status,
		Seed:       seed,
		Objective:  res.Objective,
		Iterations: res.Iterations,
		Runtime:    res.Runtime,
		Complete:   model.Complete(),
	}
	if !res.Status.Consumable() {
		e.log.Warn().Str("status", string(res.Status)).Msg("State reconstruction did not solve")
		return result, nil
	}

	rho := stateOf(res.X)
	if err := validateDensity(rho, cfg.EigClipTolerance); err != nil {
		e.log.Warn().Err(err).Msg("Solver solution failed physical validation")
		result.Status = StatusInfeasible
		return result, nil
	}
	coeffs, err := b.Unfold(rho)
	if err != nil {
		return nil, err
	}
	result.Estimate = &Estimate{Mode: ModeState, Coeffs: coeffs, State: rho}
	return result, nil
}

func (e *Engine) reconstructProcess(model *measurement.Model, b *basis.Basis, cfg Config, seed *Estimate) (*Result, error) {
	d := b.Dim()
	size := b.Size()
	weights := residualWeights(model, cfg)
	ops, err := choiOps(b)
	if err != nil {
		return nil, err
	}

	choiSeed, err := psdProject(seed.Choi, cfg.EigClipTolerance, cfg.TracePreserving)
	if err != nil {
		return nil, err
	}
	t0, err := qmat.SqrtPSD(choiSeed, cfg.EigClipTolerance)
	if err != nil {
		return nil, err
	}

	choiOf := func(theta []float64) *qmat.Matrix {
		t := unpackFactor(theta, size)
		return qmat.Mul(t.Dagger(), t)
	}

	objective := func(theta []float64) float64 {
		choi := choiOf(theta)
		coeffs := make([]float64, size*size)
		for k, op := range ops {
			coeffs[k] = realTraceProduct(choi, op)
		}
		f := weightedResidual(model, coeffs, weights)
		if cfg.TracePreserving {
			dev := TPDeviation(choi, d)
			f += cfg.PenaltyWeight * dev * dev
		}
		return f
	}

	res := e.solver.Solve(Problem{Objective: objective, Initial: packFactor(t0)}, cfg)
	result := &Result{
		Status:     res.Status,
		Seed:       seed,
		Objective:  res.Objective,
		Iterations: res.Iterations,
		Runtime:    res.Runtime,
		Complete:   model.Complete(),
	}
	if !res.Status.Consumable() {
		e.log.Warn().Str("status", string(res.Status)).Msg("Process reconstruction did not solve")
		return result, nil
	}

	choi := choiOf(res.X)
	result.TPDeviation = TPDeviation(choi, d)
	if cfg.TracePreserving && result.TPDeviation > cfg.TPTolerance {
		e.log.Warn().
			Float64("tp_deviation", result.TPDeviation).
			Float64("tolerance", cfg.TPTolerance).
			Msg("Solution violates trace preservation beyond tolerance")
		result.Status = StatusInfeasible
		return result, nil
	}
	if !qmat.IsPSD(choi, cfg.EigClipTolerance) {
		result.Status = StatusInfeasible
		return result, nil
	}
	ptm, err := ChoiToPTM(choi, b)
	if err != nil {
		return nil, err
	}
	coeffs := make([]float64, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			coeffs[i*size+j] = ptm.At(i, j)
		}
	}
	result.Estimate = &Estimate{Mode: ModeProcess, Coeffs: coeffs, PTM: ptm, Choi: choi}
	return result, nil
}

// residualWeights returns the per-record objective weights for the
// configured weighting.
func residualWeights(model *measurement.Model, cfg Config) []float64 {
	variances := model.Variances()
	w := make([]float64, len(variances))
	for i := range w {
		if cfg.Weighting == WeightingShotNoise {
			w[i] = 1 / variances[i]
		} else {
			w[i] = 1
		}
	}
	return w
}

// weightedResidual computes Σ w_k (A_k·x − y_k)².
func weightedResidual(model *measurement.Model, x []float64, weights []float64) float64 {
	a := model.A()
	y := model.Observations()
	rows, cols := a.Dims()
	var f float64
	for i := 0; i < rows; i++ {
		r := -y[i]
		for j := 0; j < cols; j++ {
			if v := a.At(i, j); v != 0 {
				r += v * x[j]
			}
		}
		f += weights[i] * r * r
	}
	return f
}

// psdProject clips negative eigenvalues of a Hermitian matrix to zero
// and, when normalize is set, rescales to unit trace. A matrix with no
// positive weight falls back to the maximally mixed one.
func psdProject(m *qmat.Matrix, clipTol float64, normalize bool) (*qmat.Matrix, error) {
	clipped, err := qmat.FuncHermitian(m, func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	})
	if err != nil {
		return nil, err
	}
	tr := real(clipped.Trace())
	if tr <= clipTol {
		n := m.Dim()
		return qmat.Scale(complex(1/float64(n), 0), qmat.Identity(n)), nil
	}
	if normalize {
		return qmat.Scale(complex(1/tr, 0), clipped), nil
	}
	return clipped, nil
}

// validateDensity checks the density matrix invariants within tolerance.
func validateDensity(rho *qmat.Matrix, tol float64) error {
	if !rho.IsHermitian(1e-9) {
		return fmt.Errorf("%w: estimate is not Hermitian", domain.ErrReconstructionFailed)
	}
	if math.Abs(real(rho.Trace())-1) > 1e-6 {
		return fmt.Errorf("%w: estimate trace %g is not 1", domain.ErrReconstructionFailed, real(rho.Trace()))
	}
	if !qmat.IsPSD(rho, tol) {
		return fmt.Errorf("%w: estimate is not positive semidefinite", domain.ErrReconstructionFailed)
	}
	return nil
}

// unpackFactor reads a general complex n×n factor from 2n² real
// parameters.
func unpackFactor(theta []float64, n int) *qmat.Matrix {
	t := qmat.New(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := 2 * (i*n + j)
			t.Set(i, j, complex(theta[k], theta[k+1]))
		}
	}
	return t
}

// packFactor flattens a complex factor into solver parameters.
func packFactor(t *qmat.Matrix) []float64 {
	n := t.Dim()
	theta := make([]float64, 2*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k := 2 * (i*n + j)
			theta[k] = real(t.At(i, j))
			theta[k+1] = imag(t.At(i, j))
		}
	}
	return theta
}
