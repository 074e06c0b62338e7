// Package domain holds the error taxonomy shared across the tomography
// pipeline. Lower layers fail fast with these sentinels; callers match
// them with errors.Is.
package domain

import "errors"

var (
	// ErrInputValidation marks malformed counts, shots or labels.
	// It is surfaced immediately and never recovered silently.
	ErrInputValidation = errors.New("input validation failed")

	// ErrDimensionMismatch marks operands of incompatible dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnsupportedBasis marks an unknown operator basis family.
	ErrUnsupportedBasis = errors.New("unsupported basis family")

	// ErrMetricDomain marks a metric requested on an input outside its
	// domain, e.g. fidelity of a non-positive-semidefinite matrix.
	ErrMetricDomain = errors.New("metric domain error")

	// ErrReconstructionFailed marks a reconstruction that terminated in a
	// non-solved state; the wrapped message carries the solver status.
	ErrReconstructionFailed = errors.New("reconstruction failed")
)
