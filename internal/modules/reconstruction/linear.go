package reconstruction

import (
	"fmt"
	"math"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/internal/modules/measurement"
	"github.com/qforge/tomo/pkg/qmat"
	"gonum.org/v1/gonum/mat"
)

// Estimate is a reconstructed object in both coefficient-vector and
// matrix form. For states, State holds the density matrix; for processes,
// PTM and Choi hold the two channel representations.
type Estimate struct {
	Mode   Mode
	Coeffs []float64
	State  *qmat.Matrix
	PTM    *mat.Dense
	Choi   *qmat.Matrix
}

// LinearInvert computes the unconstrained least-squares estimate
// min ‖A·x − y‖² by singular value decomposition, tolerating
// rank-deficient models, and folds the solution back into matrix form.
//
// The result may violate positivity and is meant as a diagnostic or as
// the seed for the constrained engine, never as a certified estimate.
func LinearInvert(model *measurement.Model, b *basis.Basis, mode Mode) (*Estimate, error) {
	switch mode {
	case ModeState, ModeProcess:
	default:
		return nil, fmt.Errorf("%w: unknown reconstruction mode %q", domain.ErrInputValidation, mode)
	}
	wantSize := b.Size()
	if mode == ModeProcess {
		wantSize *= wantSize
	}
	if model.Size() != wantSize {
		return nil, fmt.Errorf("%w: model has %d coefficients, mode %q expects %d",
			domain.ErrDimensionMismatch, model.Size(), mode, wantSize)
	}

	x, err := svdLeastSquares(model.A(), model.Observations())
	if err != nil {
		return nil, err
	}

	size := b.Size()
	est := &Estimate{Mode: mode, Coeffs: x}
	switch mode {
	case ModeState:
		// Pauli settings carry no information about the identity
		// coefficient; normalization fixes it to Tr(ρ)/√d = 1/√d.
		x[0] = 1 / math.Sqrt(float64(b.Dim()))
		est.State, err = b.Fold(x)
		if err != nil {
			return nil, err
		}
	case ModeProcess:
		// Trace preservation fixes the first PTM row to (1, 0, ..., 0);
		// no Pauli measurement constrains it.
		x[0] = 1
		for j := 1; j < size; j++ {
			x[j] = 0
		}
		est.PTM = mat.NewDense(size, size, x)
		est.Choi, err = PTMToChoi(est.PTM, b)
		if err != nil {
			return nil, err
		}
	}
	return est, nil
}

// svdLeastSquares solves min ‖A·x − y‖² via thin SVD with a relative
// singular-value cutoff, returning the minimum-norm solution on
// rank-deficient inputs.
func svdLeastSquares(a *mat.Dense, y []float64) ([]float64, error) {
	rows, cols := a.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("%w: design matrix has %d rows, observations %d",
			domain.ErrDimensionMismatch, rows, len(y))
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD of design matrix failed", domain.ErrReconstructionFailed)
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	const cutoff = 1e-10
	var maxSV float64
	if len(values) > 0 {
		maxSV = values[0]
	}
	// x = V Σ⁺ Uᵀ y
	x := make([]float64, cols)
	for k, s := range values {
		if s <= cutoff*maxSV || s == 0 {
			continue
		}
		var uy float64
		for i := 0; i < rows; i++ {
			uy += u.At(i, k) * y[i]
		}
		uy /= s
		for j := 0; j < cols; j++ {
			x[j] += v.At(j, k) * uy
		}
	}
	return x, nil
}
