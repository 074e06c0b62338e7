package reconstruction

// Status is the reconstruction state machine:
//
//	Unsolved → Solving → {Solved, Infeasible, Timeout}
//
// Only StatusSolved yields a consumable estimate. Terminal failure states
// carry the solver's reason and are never coerced into a default estimate.
type Status string

const (
	StatusUnsolved   Status = "unsolved"
	StatusSolving    Status = "solving"
	StatusSolved     Status = "solved"
	StatusInfeasible Status = "infeasible"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSolved, StatusInfeasible, StatusTimeout:
		return true
	}
	return false
}

// Consumable reports whether an estimate with this status may be used.
func (s Status) Consumable() bool { return s == StatusSolved }
