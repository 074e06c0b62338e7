package reconstruction

import (
	"testing"

	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func identityPTM(size int) *mat.Dense {
	ptm := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		ptm.Set(i, i, 1)
	}
	return ptm
}

func TestPTMToChoiIdentity(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)

	choi, err := PTMToChoi(identityPTM(4), b)
	require.NoError(t, err)

	// Identity channel Choi is the maximally entangled state: 1/2 on the
	// |00⟩,|11⟩ corners.
	assert.InDelta(t, 0.5, real(choi.At(0, 0)), 1e-12)
	assert.InDelta(t, 0.5, real(choi.At(0, 3)), 1e-12)
	assert.InDelta(t, 0.5, real(choi.At(3, 0)), 1e-12)
	assert.InDelta(t, 0.5, real(choi.At(3, 3)), 1e-12)
	assert.InDelta(t, 1, real(choi.Trace()), 1e-12)
	assert.True(t, qmat.IsPSD(choi, 1e-9))
}

func TestChoiPTMRoundTrip(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)

	// Z-rotation-ish PTM: X→Y, Y→-X (a unitary channel).
	ptm := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	})
	choi, err := PTMToChoi(ptm, b)
	require.NoError(t, err)
	back, err := ChoiToPTM(choi, b)
	require.NoError(t, err)
	assert.InDelta(t, 0, mat.Norm(sub(back, ptm), 2), 1e-10)
}

func TestTPDeviation(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)

	choi, err := PTMToChoi(identityPTM(4), b)
	require.NoError(t, err)
	assert.InDelta(t, 0, TPDeviation(choi, 2), 1e-10)

	// Halving the Choi matrix halves every output trace.
	assert.Greater(t, TPDeviation(qmat.Scale(0.5, choi), 2), 0.5)
}

func TestPTMToChoiRejectsWrongSize(t *testing.T) {
	b, err := basis.NewPauli(1)
	require.NoError(t, err)
	_, err = PTMToChoi(identityPTM(3), b)
	assert.Error(t, err)
}

func sub(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Sub(a, b)
	return &out
}
