package qmat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// hermTol is the hermiticity tolerance applied before eigendecomposition.
const hermTol = 1e-9

// realEmbed maps a Hermitian d x d complex matrix M = Re + i*Im to the
// real symmetric 2d x 2d matrix [[Re, -Im], [Im, Re]]. Its spectrum is
// that of M with every eigenvalue doubled, and a real eigenvector (u; v)
// corresponds to the complex eigenvector u + i*v.
func realEmbed(m *Matrix) *mat.SymDense {
	n := m.n
	s := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Symmetrize against numerical hermiticity error.
			re := (real(m.data[i*n+j]) + real(m.data[j*n+i])) / 2
			im := (imag(m.data[i*n+j]) - imag(m.data[j*n+i])) / 2
			s.SetSym(i, j, re)
			s.SetSym(n+i, n+j, re)
			s.SetSym(i, n+j, -im)
			if i != j {
				s.SetSym(j, n+i, im)
			}
		}
	}
	return s
}

// eigEmbedded factorizes the real embedding of a Hermitian matrix.
// Eigenvalues come back ascending with each value repeated twice.
func eigEmbedded(m *Matrix, vectors bool) (vals []float64, vecs *mat.Dense, err error) {
	if !m.IsHermitian(hermTol) {
		return nil, nil, fmt.Errorf("qmat: matrix is not Hermitian within %g", hermTol)
	}
	var eig mat.EigenSym
	if !eig.Factorize(realEmbed(m), vectors) {
		return nil, nil, fmt.Errorf("qmat: eigendecomposition failed")
	}
	vals = eig.Values(nil)
	if vectors {
		vecs = mat.NewDense(2*m.n, 2*m.n, nil)
		eig.VectorsTo(vecs)
	}
	return vals, vecs, nil
}

// EigvalsHermitian returns the eigenvalues of a Hermitian matrix in
// ascending order.
func EigvalsHermitian(m *Matrix) ([]float64, error) {
	vals, _, err := eigEmbedded(m, false)
	if err != nil {
		return nil, err
	}
	// The embedding doubles every eigenvalue; adjacent pairs collapse to one.
	out := make([]float64, m.n)
	for i := range out {
		out[i] = (vals[2*i] + vals[2*i+1]) / 2
	}
	return out, nil
}

// FuncHermitian applies f to the spectrum of a Hermitian matrix:
// for M = Σ λ_k w_k w_k† it returns Σ f(λ_k) w_k w_k†.
func FuncHermitian(m *Matrix, f func(float64) float64) (*Matrix, error) {
	vals, vecs, err := eigEmbedded(m, true)
	if err != nil {
		return nil, err
	}
	n := m.n
	out := New(n)
	// Each complex eigenvector appears twice in the real embedding (as
	// (u; v) and (-v; u), the same vector up to phase), so summing
	// f(λ) w w† over all 2n real eigenvectors with weight 1/2 yields the
	// complex spectral function exactly, degenerate subspaces included.
	w := make([]complex128, n)
	for k := 0; k < 2*n; k++ {
		fv := f(vals[k])
		if fv == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			w[i] = complex(vecs.At(i, k), vecs.At(n+i, k))
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out.data[i*n+j] += complex(fv/2, 0) * w[i] * complex(real(w[j]), -imag(w[j]))
			}
		}
	}
	return out, nil
}

// SqrtPSD returns the principal square root of a positive-semidefinite
// Hermitian matrix. Eigenvalues in [-clipTol, 0) are clipped to zero;
// more negative eigenvalues are an error.
func SqrtPSD(m *Matrix, clipTol float64) (*Matrix, error) {
	min, err := MinEigenvalue(m)
	if err != nil {
		return nil, err
	}
	if min < -clipTol {
		return nil, fmt.Errorf("qmat: matrix is not positive semidefinite (min eigenvalue %g)", min)
	}
	return FuncHermitian(m, func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return math.Sqrt(x)
	})
}

// TraceNorm returns Tr|M| = Σ |λ_k| for a Hermitian matrix.
func TraceNorm(m *Matrix) (float64, error) {
	vals, err := EigvalsHermitian(m)
	if err != nil {
		return 0, err
	}
	var s float64
	for _, v := range vals {
		s += math.Abs(v)
	}
	return s, nil
}

// MinEigenvalue returns the smallest eigenvalue of a Hermitian matrix.
func MinEigenvalue(m *Matrix) (float64, error) {
	vals, err := EigvalsHermitian(m)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// IsPSD reports whether a Hermitian matrix is positive semidefinite
// within tol.
func IsPSD(m *Matrix, tol float64) bool {
	min, err := MinEigenvalue(m)
	if err != nil {
		return false
	}
	return min >= -tol
}
