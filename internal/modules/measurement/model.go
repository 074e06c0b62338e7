package measurement

import (
	"fmt"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/internal/modules/basis"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// rankTol is the relative singular-value cutoff used when reporting the
// achieved rank of a design matrix.
const rankTol = 1e-10

// Model is the static linear model A·x ≈ y relating the unknown
// coefficient vector to observed expectation values. It is built once per
// experiment design and shared read-only across reconstructions and
// bootstrap resamples.
type Model struct {
	a         *mat.Dense
	y         []float64
	variances []float64
	rank      int
	fullRank  int
	records   []Record
}

// A returns the design matrix.
func (m *Model) A() *mat.Dense { return m.a }

// Observations returns the observed expectation values, one per record.
func (m *Model) Observations() []float64 { return m.y }

// Variances returns the per-record shot-noise variances.
func (m *Model) Variances() []float64 { return m.variances }

// Rank returns the achieved rank of the design matrix over the
// determinable coefficients (the ones normalization or trace
// preservation does not already fix).
func (m *Model) Rank() int { return m.rank }

// RequiredRank returns the rank an informationally complete design
// achieves for this model's target object.
func (m *Model) RequiredRank() int { return m.fullRank }

// Complete reports whether the measurement set is informationally
// complete. An incomplete model is usable but under-determined; the
// builder logs the deficiency rather than failing.
func (m *Model) Complete() bool { return m.rank >= m.fullRank }

// Records returns the records the model was built from, in order.
func (m *Model) Records() []Record { return m.records }

// Size returns the coefficient vector length (columns of A).
func (m *Model) Size() int { _, c := m.a.Dims(); return c }

// WithObservations returns a copy of the model sharing the design matrix
// but carrying new observed values, one per record. Used by the bootstrap
// estimator to rescore resampled counts against the fixed design.
func (m *Model) WithObservations(records []Record) (*Model, error) {
	if len(records) != len(m.records) {
		return nil, fmt.Errorf("%w: got %d records, model has %d",
			domain.ErrDimensionMismatch, len(records), len(m.records))
	}
	y := make([]float64, len(records))
	variances := make([]float64, len(records))
	for i, r := range records {
		if r.Setting != m.records[i].Setting || r.Preparation != m.records[i].Preparation {
			return nil, fmt.Errorf("%w: record %d setting %q/%q does not match model %q/%q",
				domain.ErrInputValidation, i, r.Setting, r.Preparation, m.records[i].Setting, m.records[i].Preparation)
		}
		y[i] = r.Expectation()
		variances[i] = r.Variance()
	}
	return &Model{a: m.a, y: y, variances: variances, rank: m.rank, fullRank: m.fullRank, records: records}, nil
}

// BuildStateModel builds the linear model for state tomography: one row
// per record, columns indexed by the basis elements, entries
// Tr(P_setting · B_k).
func BuildStateModel(b *basis.Basis, records []Record, log zerolog.Logger) (*Model, error) {
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	if records[0].Qubits() != b.Qubits() {
		return nil, fmt.Errorf("%w: records address %d qubits, basis %d",
			domain.ErrDimensionMismatch, records[0].Qubits(), b.Qubits())
	}

	rows := len(records)
	cols := b.Size()
	a := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	variances := make([]float64, rows)
	for i, r := range records {
		obs, err := basis.PauliOperator(r.Setting)
		if err != nil {
			return nil, err
		}
		for k := 0; k < cols; k++ {
			a.Set(i, k, real(qmat.HSInner(obs, b.Element(k))))
		}
		y[i] = r.Expectation()
		variances[i] = r.Variance()
	}

	// A state is determined by its traceless part; the identity
	// coefficient is fixed by normalization, so completeness requires
	// rank d²-1 over the traceless columns. The identity column is
	// excluded so that identity-only settings do not count toward it.
	m := &Model{a: a, y: y, variances: variances, fullRank: cols - 1, records: records}
	m.rank = matrixRank(a.Slice(0, rows, 1, cols))
	logRank(log, "state", m)
	return m, nil
}

// BuildProcessModel builds the linear model for process tomography over
// the flattened Pauli-transfer matrix. Each record contributes the row
//
//	Tr(P_s Λ(ρ_p)) = Σ_j c_j(p) · R[s,j],  c_j(p) = Tr(P_j ρ_p),
//
// with the unknown x the row-major flattening of R.
func BuildProcessModel(b *basis.Basis, records []Record, log zerolog.Logger) (*Model, error) {
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	if records[0].Qubits() != b.Qubits() {
		return nil, fmt.Errorf("%w: records address %d qubits, basis %d",
			domain.ErrDimensionMismatch, records[0].Qubits(), b.Qubits())
	}

	size := b.Size() // d²
	rows := len(records)
	a := mat.NewDense(rows, size*size, nil)
	y := make([]float64, rows)
	variances := make([]float64, rows)
	prepCoeffs := make(map[string][]float64)
	for i, r := range records {
		if r.Preparation == "" {
			return nil, fmt.Errorf("%w: record %d has no preparation label (required for process tomography)",
				domain.ErrInputValidation, i)
		}
		s, ok := b.Index(r.Setting)
		if !ok {
			return nil, fmt.Errorf("%w: setting %q is not a basis label", domain.ErrInputValidation, r.Setting)
		}
		c, ok := prepCoeffs[r.Preparation]
		if !ok {
			rho, err := PreparationState(r.Preparation)
			if err != nil {
				return nil, err
			}
			c = make([]float64, size)
			for j := 0; j < size; j++ {
				p, err := basis.PauliOperator(b.Label(j))
				if err != nil {
					return nil, err
				}
				c[j] = real(qmat.HSInner(p, rho))
			}
			prepCoeffs[r.Preparation] = c
		}
		for j := 0; j < size; j++ {
			a.Set(i, s*size+j, c[j])
		}
		y[i] = r.Expectation()
		variances[i] = r.Variance()
	}

	// Trace preservation fixes the first PTM row, so a complete design
	// determines the remaining (d²-1)·d² entries; the pinned row's
	// columns are excluded from the rank.
	m := &Model{a: a, y: y, variances: variances, fullRank: (size - 1) * size, records: records}
	m.rank = matrixRank(a.Slice(0, rows, size, size*size))
	logRank(log, "process", m)
	return m, nil
}

// matrixRank counts singular values above rankTol relative to the largest.
func matrixRank(a mat.Matrix) int {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	rank := 0
	for _, s := range values {
		if s > rankTol*values[0] {
			rank++
		}
	}
	return rank
}

func logRank(log zerolog.Logger, mode string, m *Model) {
	if m.Complete() {
		log.Debug().
			Str("mode", mode).
			Int("rank", m.rank).
			Int("records", len(m.records)).
			Msg("Built measurement model")
		return
	}
	log.Warn().
		Str("mode", mode).
		Int("rank", m.rank).
		Int("required_rank", m.fullRank).
		Int("records", len(m.records)).
		Msg("Measurement set is not informationally complete - reconstruction will be under-determined")
}
