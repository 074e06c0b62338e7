// Package measurement turns observed measurement outcomes into the linear
// model relating an unknown state or channel to expected outcome values.
package measurement

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/qforge/tomo/internal/domain"
	"github.com/qforge/tomo/pkg/qmat"
	"github.com/vmihailenco/msgpack/v5"
)

// Record is one observed experiment: a measurement setting (a Pauli
// string), the outcome counts keyed by measured bit-string, and the
// declared shot total. Process tomography records additionally carry the
// preparation label of the input state.
type Record struct {
	Setting     string         `json:"setting" msgpack:"setting"`
	Preparation string         `json:"preparation,omitempty" msgpack:"preparation,omitempty"`
	Counts      map[string]int `json:"counts" msgpack:"counts"`
	Shots       int            `json:"shots" msgpack:"shots"`
}

// preparationLetters are the single-qubit input states used in process
// tomography: Z, X and Y eigenstates.
const preparationLetters = "01+-rl"

// Validate checks the record invariants: positive shot total, non-negative
// counts summing to the shot total, bit-string outcome labels matching the
// setting width, and well-formed setting/preparation labels.
func (r Record) Validate() error {
	if r.Setting == "" {
		return fmt.Errorf("%w: record has empty setting", domain.ErrInputValidation)
	}
	for i := 0; i < len(r.Setting); i++ {
		if !strings.ContainsRune("IXYZ", rune(r.Setting[i])) {
			return fmt.Errorf("%w: setting %q has invalid Pauli letter %q",
				domain.ErrInputValidation, r.Setting, string(r.Setting[i]))
		}
	}
	if r.Shots <= 0 {
		return fmt.Errorf("%w: setting %q has non-positive shot total %d", domain.ErrInputValidation, r.Setting, r.Shots)
	}
	total := 0
	for outcome, c := range r.Counts {
		if c < 0 {
			return fmt.Errorf("%w: setting %q outcome %q has negative count %d", domain.ErrInputValidation, r.Setting, outcome, c)
		}
		if len(outcome) != len(r.Setting) {
			return fmt.Errorf("%w: setting %q outcome %q has width %d, want %d",
				domain.ErrInputValidation, r.Setting, outcome, len(outcome), len(r.Setting))
		}
		for i := 0; i < len(outcome); i++ {
			if outcome[i] != '0' && outcome[i] != '1' {
				return fmt.Errorf("%w: setting %q outcome %q is not a bit-string", domain.ErrInputValidation, r.Setting, outcome)
			}
		}
		total += c
	}
	if total != r.Shots {
		return fmt.Errorf("%w: setting %q counts sum to %d, declared shots %d",
			domain.ErrInputValidation, r.Setting, total, r.Shots)
	}
	if r.Preparation != "" {
		if len(r.Preparation) != len(r.Setting) {
			return fmt.Errorf("%w: preparation %q has width %d, setting width %d",
				domain.ErrInputValidation, r.Preparation, len(r.Preparation), len(r.Setting))
		}
		for i := 0; i < len(r.Preparation); i++ {
			if !strings.ContainsRune(preparationLetters, rune(r.Preparation[i])) {
				return fmt.Errorf("%w: preparation %q has invalid letter %q",
					domain.ErrInputValidation, r.Preparation, string(r.Preparation[i]))
			}
		}
	}
	return nil
}

// Qubits returns the subsystem count the record addresses.
func (r Record) Qubits() int { return len(r.Setting) }

// Expectation returns the observed expectation value of the setting's
// Pauli observable under the ±1 outcome convention: each outcome
// bit-string contributes (-1)^(ones on non-identity positions).
func (r Record) Expectation() float64 {
	var sum float64
	for outcome, c := range r.Counts {
		sum += float64(c) * outcomeSign(r.Setting, outcome)
	}
	return sum / float64(r.Shots)
}

// Variance returns the shot-noise variance of the expectation estimate,
// (1 - e²)/shots, floored to keep weighted objectives bounded.
func (r Record) Variance() float64 {
	const floor = 1e-6
	e := r.Expectation()
	v := (1 - e*e) / float64(r.Shots)
	if v < floor {
		return floor
	}
	return v
}

// Frequencies returns the outcome labels and their observed frequencies
// in deterministic (sorted) order, for resampling.
func (r Record) Frequencies() ([]string, []float64) {
	outcomes := make([]string, 0, len(r.Counts))
	for o := range r.Counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	freqs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		freqs[i] = float64(r.Counts[o]) / float64(r.Shots)
	}
	return outcomes, freqs
}

func outcomeSign(setting, outcome string) float64 {
	ones := 0
	for i := 0; i < len(setting); i++ {
		if setting[i] != 'I' && outcome[i] == '1' {
			ones++
		}
	}
	if ones%2 == 1 {
		return -1
	}
	return 1
}

// ValidateRecords validates every record and checks they agree on width.
func ValidateRecords(records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no measurement records", domain.ErrInputValidation)
	}
	width := records[0].Qubits()
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if r.Qubits() != width {
			return fmt.Errorf("%w: record %d has width %d, want %d",
				domain.ErrInputValidation, i, r.Qubits(), width)
		}
	}
	return nil
}

// Encoding selects the wire format for DecodeRecords.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

// DecodeRecords decodes a measurement record set from its wire form and
// validates it before any linear-algebra work happens.
func DecodeRecords(data []byte, enc Encoding) ([]Record, error) {
	var records []Record
	switch enc {
	case EncodingJSON:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: decoding json records: %v", domain.ErrInputValidation, err)
		}
	case EncodingMsgpack:
		if err := msgpack.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: decoding msgpack records: %v", domain.ErrInputValidation, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", domain.ErrInputValidation, enc)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

// PreparationState returns the density matrix of a tensor-product input
// state described by a preparation label over 0, 1, +, -, r, l.
func PreparationState(label string) (*qmat.Matrix, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty preparation label", domain.ErrInputValidation)
	}
	var rho *qmat.Matrix
	for i := 0; i < len(label); i++ {
		s, ok := singlePreparations[label[i]]
		if !ok {
			return nil, fmt.Errorf("%w: preparation %q has invalid letter %q",
				domain.ErrInputValidation, label, string(label[i]))
		}
		if rho == nil {
			rho = s.Clone()
		} else {
			rho = qmat.Kron(rho, s)
		}
	}
	return rho, nil
}

var singlePreparations = map[byte]*qmat.Matrix{
	'0': qmat.FromRows([][]complex128{{1, 0}, {0, 0}}),
	'1': qmat.FromRows([][]complex128{{0, 0}, {0, 1}}),
	'+': qmat.FromRows([][]complex128{{0.5, 0.5}, {0.5, 0.5}}),
	'-': qmat.FromRows([][]complex128{{0.5, -0.5}, {-0.5, 0.5}}),
	'r': qmat.FromRows([][]complex128{{0.5, complex(0, -0.5)}, {complex(0, 0.5), 0.5}}),
	'l': qmat.FromRows([][]complex128{{0.5, complex(0, 0.5)}, {complex(0, -0.5), 0.5}}),
}
