package basis

import (
	"math"
	"testing"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPauliOrdering(t *testing.T) {
	b, err := NewPauli(1)
	require.NoError(t, err)
	require.Equal(t, 4, b.Size())
	assert.Equal(t, []string{"I", "X", "Y", "Z"}, []string{b.Label(0), b.Label(1), b.Label(2), b.Label(3)})

	b2, err := NewPauli(2)
	require.NoError(t, err)
	require.Equal(t, 16, b2.Size())
	// Leftmost letter is the most significant digit.
	assert.Equal(t, "II", b2.Label(0))
	assert.Equal(t, "IZ", b2.Label(3))
	assert.Equal(t, "XI", b2.Label(4))
	assert.Equal(t, "ZZ", b2.Label(15))

	k, ok := b2.Index("XI")
	require.True(t, ok)
	assert.Equal(t, 4, k)
}

func TestNewPauliRejectsInvalid(t *testing.T) {
	_, err := NewPauli(0)
	assert.ErrorIs(t, err, domain.ErrInputValidation)

	_, err = New(Family("gell-mann"), 1)
	assert.ErrorIs(t, err, domain.ErrUnsupportedBasis)
}

func TestElementsOrthonormal(t *testing.T) {
	b, err := NewPauli(1)
	require.NoError(t, err)
	for i := 0; i < b.Size(); i++ {
		for j := 0; j < b.Size(); j++ {
			inner := real(qmat.HSInner(b.Element(i), b.Element(j)))
			if i == j {
				assert.InDelta(t, 1, inner, 1e-12)
			} else {
				assert.InDelta(t, 0, inner, 1e-12)
			}
		}
	}
}

func TestPauliOperatorTensor(t *testing.T) {
	op, err := PauliOperator("XZ")
	require.NoError(t, err)
	require.Equal(t, 4, op.Dim())
	x, _ := PauliOperator("X")
	z, _ := PauliOperator("Z")
	assert.InDelta(t, 0, qmat.MaxAbsDiff(op, qmat.Kron(x, z)), 1e-12)

	_, err = PauliOperator("XQ")
	assert.ErrorIs(t, err, domain.ErrInputValidation)
}

func TestFoldUnfoldRoundTrip(t *testing.T) {
	b, err := NewPauli(1)
	require.NoError(t, err)

	// |0⟩⟨0| = (I + Z)/2 has coefficients (1/√2, 0, 0, 1/√2).
	rho := qmat.FromRows([][]complex128{{1, 0}, {0, 0}})
	coeffs, err := b.Unfold(rho)
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt(2), coeffs[0], 1e-12)
	assert.InDelta(t, 0, coeffs[1], 1e-12)
	assert.InDelta(t, 0, coeffs[2], 1e-12)
	assert.InDelta(t, 1/math.Sqrt(2), coeffs[3], 1e-12)

	back, err := b.Fold(coeffs)
	require.NoError(t, err)
	assert.InDelta(t, 0, qmat.MaxAbsDiff(back, rho), 1e-12)
}

func TestFoldRejectsWrongLength(t *testing.T) {
	b, err := NewPauli(1)
	require.NoError(t, err)
	_, err = b.Fold([]float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = b.Unfold(qmat.Identity(4))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}
