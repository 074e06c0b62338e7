// Package basis builds operator bases for representing quantum states and
// processes as real coefficient vectors.
package basis

import (
	"fmt"
	"math"
	"strings"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/pkg/qmat"
)

// Family identifies an operator basis family.
type Family string

const (
	// FamilyPauli is the tensor-product Pauli basis, normalized to be
	// orthonormal under the Hilbert-Schmidt inner product.
	FamilyPauli Family = "pauli"
)

// pauliLetters orders the single-qubit Paulis; index k of a multi-qubit
// element is the base-4 reading of its label with the leftmost character
// most significant. The ordering is fixed so coefficient vectors from
// different runs are directly comparable.
const pauliLetters = "IXYZ"

var singlePauli = map[byte]*qmat.Matrix{
	'I': qmat.FromRows([][]complex128{{1, 0}, {0, 1}}),
	'X': qmat.FromRows([][]complex128{{0, 1}, {1, 0}}),
	'Y': qmat.FromRows([][]complex128{{0, complex(0, -1)}, {complex(0, 1), 0}}),
	'Z': qmat.FromRows([][]complex128{{1, 0}, {0, -1}}),
}

// Basis is an ordered, immutable operator basis for n qubits.
// Elements are normalized (P/√d) so they are orthonormal under the
// Hilbert-Schmidt inner product; Observable returns the unnormalized
// operator used for expectation values.
type Basis struct {
	family   Family
	qubits   int
	dim      int
	labels   []string
	index    map[string]int
	elements []*qmat.Matrix
}

// New builds the operator basis of the given family for n qubits.
func New(family Family, n int) (*Basis, error) {
	switch family {
	case FamilyPauli:
		return NewPauli(n)
	default:
		return nil, fmt.Errorf("%w: basis family %q", domain.ErrUnsupportedBasis, family)
	}
}

// NewPauli builds the n-qubit Pauli basis.
func NewPauli(n int) (*Basis, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: qubit count must be positive, got %d", domain.ErrInputValidation, n)
	}
	dim := 1 << n
	size := dim * dim // 4^n
	b := &Basis{
		family:   FamilyPauli,
		qubits:   n,
		dim:      dim,
		labels:   make([]string, size),
		index:    make(map[string]int, size),
		elements: make([]*qmat.Matrix, size),
	}
	norm := complex(1/math.Sqrt(float64(dim)), 0)
	for k := 0; k < size; k++ {
		label := pauliLabel(k, n)
		op, err := PauliOperator(label)
		if err != nil {
			return nil, err
		}
		b.labels[k] = label
		b.index[label] = k
		b.elements[k] = qmat.Scale(norm, op)
	}
	return b, nil
}

// pauliLabel writes index k as an n-character string over IXYZ.
func pauliLabel(k, n int) string {
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = pauliLetters[k%4]
		k /= 4
	}
	return string(buf)
}

// PauliOperator returns the unnormalized tensor product operator for a
// Pauli string such as "XIY".
func PauliOperator(label string) (*qmat.Matrix, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty Pauli label", domain.ErrInputValidation)
	}
	label = strings.ToUpper(label)
	var op *qmat.Matrix
	for i := 0; i < len(label); i++ {
		p, ok := singlePauli[label[i]]
		if !ok {
			return nil, fmt.Errorf("%w: invalid Pauli letter %q in %q", domain.ErrInputValidation, string(label[i]), label)
		}
		if op == nil {
			op = p.Clone()
		} else {
			op = qmat.Kron(op, p)
		}
	}
	return op, nil
}

// Family returns the basis family.
func (b *Basis) Family() Family { return b.family }

// Qubits returns the subsystem count.
func (b *Basis) Qubits() int { return b.qubits }

// Dim returns the Hilbert space dimension 2^n.
func (b *Basis) Dim() int { return b.dim }

// Size returns the number of basis elements, d².
func (b *Basis) Size() int { return len(b.elements) }

// Label returns the label of element k.
func (b *Basis) Label(k int) string { return b.labels[k] }

// Index returns the element index for a label.
func (b *Basis) Index(label string) (int, bool) {
	k, ok := b.index[strings.ToUpper(label)]
	return k, ok
}

// Element returns the normalized basis element at index k.
func (b *Basis) Element(k int) *qmat.Matrix { return b.elements[k] }

// Fold assembles the matrix Σ x_k B_k from a coefficient vector.
func (b *Basis) Fold(coeffs []float64) (*qmat.Matrix, error) {
	if len(coeffs) != b.Size() {
		return nil, fmt.Errorf("%w: coefficient vector length %d, basis size %d",
			domain.ErrDimensionMismatch, len(coeffs), b.Size())
	}
	m := qmat.New(b.dim)
	for k, x := range coeffs {
		if x == 0 {
			continue
		}
		m = qmat.Add(m, qmat.Scale(complex(x, 0), b.elements[k]))
	}
	return m, nil
}

// Unfold projects a matrix onto the basis, returning the real
// coefficients x_k = Re Tr(B_k† M).
func (b *Basis) Unfold(m *qmat.Matrix) ([]float64, error) {
	if m.Dim() != b.dim {
		return nil, fmt.Errorf("%w: matrix dimension %d, basis dimension %d",
			domain.ErrDimensionMismatch, m.Dim(), b.dim)
	}
	coeffs := make([]float64, b.Size())
	for k := range b.elements {
		coeffs[k] = real(qmat.HSInner(b.elements[k], m))
	}
	return coeffs, nil
}
