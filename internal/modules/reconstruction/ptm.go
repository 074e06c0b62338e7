package reconstruction

import (
	"fmt"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/pkg/qmat"
	"gonum.org/v1/gonum/mat"
)

// Choi convention: C = (I ⊗ Λ)(|Ω⟩⟨Ω|) with |Ω⟩ the maximally entangled
// state, so Tr C = 1 and trace preservation reads Tr_out C = I/d, the
// output being the right tensor factor. The Pauli-transfer matrix is
// R[i,j] = Tr(P_i Λ(P_j))/d, and the two are related through the operator
// set M[i,j] = P_j^T ⊗ P_i:
//
//	C = (1/d²) Σ_ij R[i,j] M[i,j],   R[i,j] = Tr(C · M[i,j]).

// choiOps builds the operator set M[i,j] = P_j^T ⊗ P_i, indexed i*d²+j.
func choiOps(b *basis.Basis) ([]*qmat.Matrix, error) {
	size := b.Size()
	paulis := make([]*qmat.Matrix, size)
	for k := 0; k < size; k++ {
		p, err := basis.PauliOperator(b.Label(k))
		if err != nil {
			return nil, err
		}
		paulis[k] = p
	}
	ops := make([]*qmat.Matrix, size*size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			ops[i*size+j] = qmat.Kron(paulis[j].Transpose(), paulis[i])
		}
	}
	return ops, nil
}

// PTMToChoi converts a Pauli-transfer matrix to its Choi matrix.
func PTMToChoi(ptm *mat.Dense, b *basis.Basis) (*qmat.Matrix, error) {
	size := b.Size()
	if r, c := ptm.Dims(); r != size || c != size {
		return nil, fmt.Errorf("%w: PTM is %dx%d, basis size %d", domain.ErrDimensionMismatch, r, c, size)
	}
	ops, err := choiOps(b)
	if err != nil {
		return nil, err
	}
	choi := qmat.New(size)
	scale := 1 / float64(size) // 1/d², size = d²
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			v := ptm.At(i, j)
			if v == 0 {
				continue
			}
			choi = qmat.Add(choi, qmat.Scale(complex(v*scale, 0), ops[i*size+j]))
		}
	}
	return choi, nil
}

// ChoiToPTM converts a Choi matrix to its Pauli-transfer matrix.
func ChoiToPTM(choi *qmat.Matrix, b *basis.Basis) (*mat.Dense, error) {
	size := b.Size()
	if choi.Dim() != size {
		return nil, fmt.Errorf("%w: Choi matrix dimension %d, want %d", domain.ErrDimensionMismatch, choi.Dim(), size)
	}
	ops, err := choiOps(b)
	if err != nil {
		return nil, err
	}
	ptm := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			ptm.Set(i, j, realTraceProduct(choi, ops[i*size+j]))
		}
	}
	return ptm, nil
}

// realTraceProduct computes Re Tr(a·b) without forming the product.
func realTraceProduct(a, b *qmat.Matrix) float64 {
	n := a.Dim()
	var t complex128
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			t += a.At(i, k) * b.At(k, i)
		}
	}
	return real(t)
}

// TPDeviation measures how far a Choi matrix is from trace preservation:
// the Frobenius norm of d·Tr_out C − I.
func TPDeviation(choi *qmat.Matrix, d int) float64 {
	traced := qmat.PartialTrace(choi, d, d, false)
	return qmat.FrobeniusNorm(qmat.Sub(qmat.Scale(complex(float64(d), 0), traced), qmat.Identity(d)))
}
