package reconstruction

import (
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Problem is the numerical program handed to a Solver: a smooth objective
// over an unconstrained real parameter vector (physical constraints are
// already encoded in the parameterization and penalty terms) and an
// initial point.
type Problem struct {
	Objective func(x []float64) float64
	Initial   []float64
}

// SolveResult carries the solver's terminal status and solution.
type SolveResult struct {
	Status     Status
	X          []float64
	Objective  float64
	Iterations int
	Runtime    time.Duration
}

// Solver is the narrow pluggable capability the engine depends on. The
// engine owns objective/constraint construction and result validation,
// never solver internals.
type Solver interface {
	Solve(p Problem, cfg Config) SolveResult
}

// GonumSolver solves reconstruction programs with gonum/optimize,
// quasi-Newton first with a derivative-free fallback.
type GonumSolver struct {
	log zerolog.Logger
}

// NewGonumSolver creates a gonum-backed solver.
func NewGonumSolver(log zerolog.Logger) *GonumSolver {
	return &GonumSolver{log: log.With().Str("component", "solver").Logger()}
}

// acceptedStatuses are the gonum termination statuses treated as
// convergence.
var acceptedStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.StepConvergence:     true,
}

// budgetStatuses are terminations caused by exhausting the configured
// iteration or wall-clock budget.
var budgetStatuses = map[optimize.Status]bool{
	optimize.IterationLimit:          true,
	optimize.RuntimeLimit:            true,
	optimize.FunctionEvaluationLimit: true,
}

// Solve runs the program within the configured budget. The objective is
// paired with a finite-difference gradient so quasi-Newton methods can
// run; BFGS is tried first and NelderMead is used as a fallback when it
// fails to converge.
func (s *GonumSolver) Solve(p Problem, cfg Config) SolveResult {
	start := time.Now()
	problem := optimize.Problem{
		Func: p.Objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, p.Objective, x, nil)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   cfg.MaxIterations,
		Runtime:           cfg.Budget,
		GradientThreshold: cfg.GradientTolerance,
	}

	result, err := optimize.Minimize(problem, p.Initial, settings, &optimize.BFGS{})
	if err != nil || !acceptedStatuses[result.Status] {
		if result != nil && budgetStatuses[result.Status] {
			return s.finish(result, start)
		}
		s.log.Debug().
			Err(err).
			Msg("BFGS did not converge, retrying with NelderMead")
		// Leave the remaining budget to the fallback.
		settings.Runtime = cfg.Budget - time.Since(start)
		if settings.Runtime <= 0 {
			return SolveResult{Status: StatusTimeout, Runtime: time.Since(start)}
		}
		result, err = optimize.Minimize(problem, p.Initial, settings, &optimize.NelderMead{})
		if err != nil {
			s.log.Warn().Err(err).Msg("Solver failed")
			return SolveResult{Status: StatusInfeasible, Runtime: time.Since(start)}
		}
	}
	return s.finish(result, start)
}

func (s *GonumSolver) finish(result *optimize.Result, start time.Time) SolveResult {
	out := SolveResult{
		X:          result.X,
		Objective:  result.F,
		Iterations: result.Stats.MajorIterations,
		Runtime:    time.Since(start),
	}
	switch {
	case acceptedStatuses[result.Status]:
		out.Status = StatusSolved
	case budgetStatuses[result.Status]:
		out.Status = StatusTimeout
	default:
		out.Status = StatusInfeasible
	}
	s.log.Debug().
		Str("status", string(out.Status)).
		Str("solver_status", result.Status.String()).
		Int("iterations", out.Iterations).
		Float64("objective", out.Objective).
		Dur("runtime", out.Runtime).
		Msg("Solver finished")
	return out
}
