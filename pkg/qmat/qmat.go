// Package qmat provides dense complex matrix helpers for quantum operators.
//
// The package covers the small set of operations tomography needs on d x d
// complex matrices: products, tensor (Kronecker) products, traces, partial
// traces and Hermitian eigendecompositions. Factorization work is delegated
// to gonum by embedding Hermitian matrices into real symmetric ones.
package qmat

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Matrix is a square dense complex matrix in row-major order.
// It is a value object: operations return new matrices and never
// modify their operands.
type Matrix struct {
	n    int
	data []complex128
}

// New creates an n x n zero matrix.
func New(n int) *Matrix {
	if n <= 0 {
		panic(fmt.Sprintf("qmat: non-positive dimension %d", n))
	}
	return &Matrix{n: n, data: make([]complex128, n*n)}
}

// Identity creates the n x n identity matrix.
func Identity(n int) *Matrix {
	m := New(n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

// FromRows creates a matrix from row slices. All rows must have length
// equal to the number of rows.
func FromRows(rows [][]complex128) *Matrix {
	n := len(rows)
	m := New(n)
	for i, row := range rows {
		if len(row) != n {
			panic(fmt.Sprintf("qmat: row %d has length %d, want %d", i, len(row), n))
		}
		copy(m.data[i*n:(i+1)*n], row)
	}
	return m
}

// Dim returns the matrix dimension.
func (m *Matrix) Dim() int { return m.n }

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) complex128 { return m.data[i*m.n+j] }

// Set assigns the element at row i, column j.
func (m *Matrix) Set(i, j int, v complex128) { m.data[i*m.n+j] = v }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := New(m.n)
	copy(c.data, m.data)
	return c
}

// Add returns a + b.
func Add(a, b *Matrix) *Matrix {
	checkDims(a, b)
	c := New(a.n)
	for i := range a.data {
		c.data[i] = a.data[i] + b.data[i]
	}
	return c
}

// Sub returns a - b.
func Sub(a, b *Matrix) *Matrix {
	checkDims(a, b)
	c := New(a.n)
	for i := range a.data {
		c.data[i] = a.data[i] - b.data[i]
	}
	return c
}

// Scale returns s * m.
func Scale(s complex128, m *Matrix) *Matrix {
	c := New(m.n)
	for i := range m.data {
		c.data[i] = s * m.data[i]
	}
	return c
}

// Mul returns the matrix product a * b.
func Mul(a, b *Matrix) *Matrix {
	checkDims(a, b)
	n := a.n
	c := New(n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a.data[i*n+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				c.data[i*n+j] += aik * b.data[k*n+j]
			}
		}
	}
	return c
}

// Dagger returns the conjugate transpose.
func (m *Matrix) Dagger() *Matrix {
	n := m.n
	c := New(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.data[j*n+i] = cmplx.Conj(m.data[i*n+j])
		}
	}
	return c
}

// Trace returns the trace.
func (m *Matrix) Trace() complex128 {
	var t complex128
	for i := 0; i < m.n; i++ {
		t += m.data[i*m.n+i]
	}
	return t
}

// HSInner returns the Hilbert-Schmidt inner product Tr(a† b).
func HSInner(a, b *Matrix) complex128 {
	checkDims(a, b)
	var t complex128
	for i := range a.data {
		t += cmplx.Conj(a.data[i]) * b.data[i]
	}
	return t
}

// Kron returns the Kronecker product a ⊗ b.
func Kron(a, b *Matrix) *Matrix {
	na, nb := a.n, b.n
	c := New(na * nb)
	for i := 0; i < na; i++ {
		for j := 0; j < na; j++ {
			aij := a.data[i*na+j]
			if aij == 0 {
				continue
			}
			for k := 0; k < nb; k++ {
				for l := 0; l < nb; l++ {
					c.data[(i*nb+k)*c.n+(j*nb+l)] = aij * b.data[k*nb+l]
				}
			}
		}
	}
	return c
}

// PartialTrace traces out one tensor factor of a matrix on a bipartite
// space of dimension dLeft * dRight. When traceLeft is true the left
// factor is traced out and the result has dimension dRight, otherwise
// the right factor is traced out.
func PartialTrace(m *Matrix, dLeft, dRight int, traceLeft bool) *Matrix {
	if dLeft*dRight != m.n {
		panic(fmt.Sprintf("qmat: partial trace dims %dx%d do not match matrix dim %d", dLeft, dRight, m.n))
	}
	if traceLeft {
		c := New(dRight)
		for k := 0; k < dLeft; k++ {
			for i := 0; i < dRight; i++ {
				for j := 0; j < dRight; j++ {
					c.data[i*dRight+j] += m.data[(k*dRight+i)*m.n+(k*dRight+j)]
				}
			}
		}
		return c
	}
	c := New(dLeft)
	for i := 0; i < dLeft; i++ {
		for j := 0; j < dLeft; j++ {
			for k := 0; k < dRight; k++ {
				c.data[i*dLeft+j] += m.data[(i*dRight+k)*m.n+(j*dRight+k)]
			}
		}
	}
	return c
}

// Transpose returns the (non-conjugating) transpose.
func (m *Matrix) Transpose() *Matrix {
	n := m.n
	c := New(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c.data[j*n+i] = m.data[i*n+j]
		}
	}
	return c
}

// IsHermitian reports whether m equals its conjugate transpose within tol.
func (m *Matrix) IsHermitian(tol float64) bool {
	n := m.n
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if cmplx.Abs(m.data[i*n+j]-cmplx.Conj(m.data[j*n+i])) > tol {
				return false
			}
		}
	}
	return true
}

// MaxAbsDiff returns the largest element-wise absolute difference.
func MaxAbsDiff(a, b *Matrix) float64 {
	checkDims(a, b)
	var max float64
	for i := range a.data {
		if d := cmplx.Abs(a.data[i] - b.data[i]); d > max {
			max = d
		}
	}
	return max
}

// FrobeniusNorm returns the Frobenius norm of m.
func FrobeniusNorm(m *Matrix) float64 {
	var s float64
	for _, v := range m.data {
		s += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(s)
}

func checkDims(a, b *Matrix) {
	if a.n != b.n {
		panic(fmt.Sprintf("qmat: dimension mismatch %d vs %d", a.n, b.n))
	}
}
