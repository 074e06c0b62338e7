package measurement

import (
	"encoding/json"
	"testing"

	"github.com/qforge/tomo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		ok     bool
	}{
		{
			name:   "valid",
			record: Record{Setting: "Z", Counts: map[string]int{"0": 600, "1": 400}, Shots: 1000},
			ok:     true,
		},
		{
			name:   "counts exceed shots",
			record: Record{Setting: "Z", Counts: map[string]int{"0": 700, "1": 400}, Shots: 1000},
		},
		{
			name:   "negative count",
			record: Record{Setting: "Z", Counts: map[string]int{"0": 1100, "1": -100}, Shots: 1000},
		},
		{
			name:   "outcome width mismatch",
			record: Record{Setting: "ZZ", Counts: map[string]int{"0": 1000}, Shots: 1000},
		},
		{
			name:   "non-bit outcome",
			record: Record{Setting: "Z", Counts: map[string]int{"a": 1000}, Shots: 1000},
		},
		{
			name:   "bad setting letter",
			record: Record{Setting: "Q", Counts: map[string]int{"0": 1000}, Shots: 1000},
		},
		{
			name:   "zero shots",
			record: Record{Setting: "Z", Counts: map[string]int{}, Shots: 0},
		},
		{
			name:   "bad preparation letter",
			record: Record{Setting: "Z", Preparation: "q", Counts: map[string]int{"0": 1000}, Shots: 1000},
		},
		{
			name:   "valid with preparation",
			record: Record{Setting: "Z", Preparation: "+", Counts: map[string]int{"0": 500, "1": 500}, Shots: 1000},
			ok:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInputValidation)
			}
		})
	}
}

func TestExpectation(t *testing.T) {
	r := Record{Setting: "Z", Counts: map[string]int{"0": 1000}, Shots: 1000}
	assert.InDelta(t, 1, r.Expectation(), 1e-12)

	r = Record{Setting: "Z", Counts: map[string]int{"0": 250, "1": 750}, Shots: 1000}
	assert.InDelta(t, -0.5, r.Expectation(), 1e-12)

	// Identity positions do not contribute sign flips.
	r = Record{Setting: "IZ", Counts: map[string]int{"10": 600, "11": 400}, Shots: 1000}
	assert.InDelta(t, 0.2, r.Expectation(), 1e-12)

	// Two non-identity positions: "11" has even parity.
	r = Record{Setting: "ZZ", Counts: map[string]int{"11": 1000}, Shots: 1000}
	assert.InDelta(t, 1, r.Expectation(), 1e-12)
}

func TestVariance(t *testing.T) {
	r := Record{Setting: "Z", Counts: map[string]int{"0": 500, "1": 500}, Shots: 1000}
	assert.InDelta(t, 0.001, r.Variance(), 1e-9)

	// Deterministic outcomes floor rather than vanish.
	r = Record{Setting: "Z", Counts: map[string]int{"0": 1000}, Shots: 1000}
	assert.Greater(t, r.Variance(), 0.0)
}

func TestFrequenciesDeterministic(t *testing.T) {
	r := Record{Setting: "Z", Counts: map[string]int{"1": 250, "0": 750}, Shots: 1000}
	outcomes, freqs := r.Frequencies()
	require.Equal(t, []string{"0", "1"}, outcomes)
	assert.InDelta(t, 0.75, freqs[0], 1e-12)
	assert.InDelta(t, 0.25, freqs[1], 1e-12)
}

func TestValidateRecordsWidthMismatch(t *testing.T) {
	records := []Record{
		{Setting: "Z", Counts: map[string]int{"0": 10}, Shots: 10},
		{Setting: "ZZ", Counts: map[string]int{"00": 10}, Shots: 10},
	}
	assert.ErrorIs(t, ValidateRecords(records), domain.ErrInputValidation)

	assert.ErrorIs(t, ValidateRecords(nil), domain.ErrInputValidation)
}

func TestDecodeRecords(t *testing.T) {
	records := []Record{
		{Setting: "Z", Counts: map[string]int{"0": 600, "1": 400}, Shots: 1000},
		{Setting: "X", Counts: map[string]int{"0": 500, "1": 500}, Shots: 1000},
	}

	jsonData, err := json.Marshal(records)
	require.NoError(t, err)
	got, err := DecodeRecords(jsonData, EncodingJSON)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	packed, err := msgpack.Marshal(records)
	require.NoError(t, err)
	got, err = DecodeRecords(packed, EncodingMsgpack)
	require.NoError(t, err)
	assert.Equal(t, records, got)

	_, err = DecodeRecords(jsonData, Encoding("xml"))
	assert.ErrorIs(t, err, domain.ErrInputValidation)
}

func TestDecodeRecordsValidates(t *testing.T) {
	bad := []Record{{Setting: "Z", Counts: map[string]int{"0": 1100}, Shots: 1000}}
	data, err := json.Marshal(bad)
	require.NoError(t, err)
	_, err = DecodeRecords(data, EncodingJSON)
	assert.ErrorIs(t, err, domain.ErrInputValidation)
}

func TestPreparationState(t *testing.T) {
	rho, err := PreparationState("0")
	require.NoError(t, err)
	assert.InDelta(t, 1, real(rho.At(0, 0)), 1e-12)
	assert.InDelta(t, 0, real(rho.At(1, 1)), 1e-12)

	plus, err := PreparationState("+")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, real(plus.At(0, 1)), 1e-12)

	two, err := PreparationState("0+")
	require.NoError(t, err)
	assert.Equal(t, 4, two.Dim())
	assert.InDelta(t, 1, real(two.Trace()), 1e-12)

	_, err = PreparationState("q")
	assert.ErrorIs(t, err, domain.ErrInputValidation)
}
