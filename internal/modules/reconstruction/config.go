// Package reconstruction estimates quantum states and processes from a
// measurement model, by unconstrained linear inversion and by a
// constrained engine that certifies physical validity.
package reconstruction

import (
	"fmt"
	"time"

	"github.com/qforge/tomo/internal/domain"
)

// Mode selects the target object of a reconstruction. It is a closed tag:
// the engine switches exhaustively over it.
type Mode string

const (
	// ModeState reconstructs a density matrix.
	ModeState Mode = "state"
	// ModeProcess reconstructs a channel (Pauli-transfer / Choi form).
	ModeProcess Mode = "process"
)

// Weighting selects the data-fidelity objective.
type Weighting string

const (
	// WeightingNone uses plain squared residuals.
	WeightingNone Weighting = "none"
	// WeightingShotNoise divides each squared residual by the record's
	// shot-noise variance, approximating maximum-likelihood weighting.
	WeightingShotNoise Weighting = "shot_noise"
)

// Config carries every knob of a reconstruction run. It is passed
// explicitly through each call; there is no ambient solver state.
type Config struct {
	Mode      Mode
	Weighting Weighting

	// TracePreserving constrains process reconstructions to
	// trace-preserving channels. When false the engine estimates a
	// trace-non-preserving channel and reports the deviation from trace
	// preservation as a diagnostic.
	TracePreserving bool

	// MaxIterations and Budget bound the solver; exhausting either
	// terminates the run in StatusTimeout.
	MaxIterations int
	Budget        time.Duration

	// GradientTolerance is the solver convergence threshold.
	GradientTolerance float64

	// EigClipTolerance bounds how negative an eigenvalue may be before a
	// matrix is rejected as non-positive-semidefinite. It also breaks
	// ties on flat optima, so it is part of the reproducibility surface.
	EigClipTolerance float64

	// PenaltyWeight scales the trace-preservation penalty term.
	PenaltyWeight float64

	// TPTolerance is the largest trace-preservation deviation accepted
	// from a solve that requested TracePreserving.
	TPTolerance float64
}

// DefaultConfig returns the reconstruction defaults for a mode.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:              mode,
		Weighting:         WeightingNone,
		TracePreserving:   true,
		MaxIterations:     2000,
		Budget:            30 * time.Second,
		GradientTolerance: 1e-9,
		EigClipTolerance:  1e-8,
		PenaltyWeight:     1000,
		TPTolerance:       1e-3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeState, ModeProcess:
	default:
		return fmt.Errorf("%w: unknown reconstruction mode %q", domain.ErrInputValidation, c.Mode)
	}
	switch c.Weighting {
	case WeightingNone, WeightingShotNoise:
	default:
		return fmt.Errorf("%w: unknown weighting %q", domain.ErrInputValidation, c.Weighting)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive", domain.ErrInputValidation)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("%w: solver budget must be positive", domain.ErrInputValidation)
	}
	if c.EigClipTolerance < 0 || c.GradientTolerance <= 0 {
		return fmt.Errorf("%w: tolerances must be positive", domain.ErrInputValidation)
	}
	if c.Mode == ModeProcess && c.TracePreserving && c.PenaltyWeight <= 0 {
		return fmt.Errorf("%w: penalty weight must be positive for trace-preserving estimation", domain.ErrInputValidation)
	}
	return nil
}
