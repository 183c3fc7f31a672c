package qft

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrInvalidPhase is returned for a phase outside [0, 1).
var ErrInvalidPhase = errors.New("phase must be in [0, 1)")

// PhaseEstimationCircuit estimates θ for the eigenvalue e^{2πiθ} of P(2πθ)
// acting on |1⟩. Qubits 0..counting-1 are the counting register, qubit
// counting holds the eigenstate. The measured key reads the estimate most
// significant bit first.
func PhaseEstimationCircuit(theta float64, counting int) (*quantum.Circuit, error) {
	if math.IsNaN(theta) || theta < 0 || theta >= 1 {
		return nil, pkgerrors.Wrapf(ErrInvalidPhase, "got %v", theta)
	}
	if counting < 1 || counting+1 > quantum.MaxQubits {
		return nil, pkgerrors.Wrapf(ErrInvalidSize, "counting register %d outside [1, %d]", counting, quantum.MaxQubits-1)
	}

	c, err := quantum.NewCircuit(counting+1, counting)
	if err != nil {
		return nil, err
	}
	c.Name = fmt.Sprintf("qpe-%d", counting)

	target := counting
	for q := 0; q < counting; q++ {
		c.H(q)
	}
	c.X(target)

	// Counting qubit j carries weight 2^(counting-1-j).
	for j := 0; j < counting; j++ {
		power := float64(uint(1) << uint(counting-1-j))
		c.CP(2*math.Pi*theta*power, j, target)
	}

	if err := ApplyInverse(c, register(counting)); err != nil {
		return nil, err
	}
	for j := 0; j < counting; j++ {
		c.Measure(j, counting-1-j)
	}
	return c, c.Err()
}

// Estimate is the interpreted result of a phase estimation run.
type Estimate struct {
	Theta    float64        `json:"theta"`
	Counting int            `json:"counting"`
	Outcome  string         `json:"outcome"`
	Phase    float64        `json:"phase"`
	Error    float64        `json:"error"`
	Counts   quantum.Counts `json:"counts"`
}

// PhaseFromOutcome reads a counting-register key as a binary fraction.
func PhaseFromOutcome(outcome string) (float64, error) {
	if err := quantum.ValidateBitString(outcome); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(outcome, 2, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "parse outcome")
	}
	return float64(v) / math.Exp2(float64(len(outcome))), nil
}

// EstimatePhase runs the estimation circuit and takes the most frequent
// outcome as the estimate. Error is measured on the unit circle, so 0.97
// against a true 0.0 is 0.03 off.
func EstimatePhase(ctx context.Context, sim quantum.Simulator, theta float64, counting, shots int) (*Estimate, error) {
	c, err := PhaseEstimationCircuit(theta, counting)
	if err != nil {
		return nil, err
	}

	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "phase estimation")
	}

	outcome, _ := counts.Mode()
	phase, err := PhaseFromOutcome(outcome)
	if err != nil {
		return nil, err
	}

	diff := math.Abs(phase - theta)
	return &Estimate{
		Theta:    theta,
		Counting: counting,
		Outcome:  outcome,
		Phase:    phase,
		Error:    math.Min(diff, 1-diff),
		Counts:   counts,
	}, nil
}
