// Package qft builds the quantum Fourier transform phase ladder and uses it
// for phase estimation.
//
// The ladder treats qubit 0 as the most significant position: position i gets
// a Hadamard followed by controlled phases of π/2^(j-i) from every later
// position j, and the register is reversed with swaps at the end.
package qft

import (
	"errors"
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrInvalidSize is returned for a register width outside [1, quantum.MaxQubits].
var ErrInvalidSize = errors.New("invalid register size")

// StepKind identifies one rung of the ladder.
type StepKind int

const (
	// Mix is the Hadamard applied at a position.
	Mix StepKind = iota
	// Phase is a controlled phase between two positions.
	Phase
	// Reverse is a swap used to reverse the register order.
	Reverse
)

func (k StepKind) String() string {
	switch k {
	case Mix:
		return "mix"
	case Phase:
		return "phase"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is one classical instruction of the ladder. Target is always set;
// Control is set for Phase and Reverse steps; Angle only for Phase.
type Step struct {
	Kind    StepKind `json:"kind"`
	Target  int      `json:"target"`
	Control int      `json:"control,omitempty"`
	Angle   float64  `json:"angle,omitempty"`
}

func (s Step) String() string {
	switch s.Kind {
	case Mix:
		return fmt.Sprintf("H(%d)", s.Target)
	case Phase:
		return fmt.Sprintf("CP(%.6f; %d->%d)", s.Angle, s.Control, s.Target)
	default:
		return fmt.Sprintf("SWAP(%d,%d)", s.Control, s.Target)
	}
}

func checkSize(n int) error {
	if n < 1 || n > quantum.MaxQubits {
		return pkgerrors.Wrapf(ErrInvalidSize, "%d outside [1, %d]", n, quantum.MaxQubits)
	}
	return nil
}

// Ladder returns the forward transform over n positions.
func Ladder(n int) ([]Step, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}

	steps := make([]Step, 0, n*(n+1)/2+n/2)
	for i := 0; i < n; i++ {
		steps = append(steps, Step{Kind: Mix, Target: i})
		for j := i + 1; j < n; j++ {
			steps = append(steps, Step{
				Kind:    Phase,
				Target:  i,
				Control: j,
				Angle:   math.Pi / float64(uint(1)<<uint(j-i)),
			})
		}
	}
	for i := 0; i < n/2; i++ {
		steps = append(steps, Step{Kind: Reverse, Control: i, Target: n - 1 - i})
	}
	return steps, nil
}

// InverseLadder returns the forward ladder in reverse order with every angle
// negated. Hadamards and swaps are their own inverses.
func InverseLadder(n int) ([]Step, error) {
	forward, err := Ladder(n)
	if err != nil {
		return nil, err
	}

	steps := make([]Step, len(forward))
	for i, s := range forward {
		s.Angle = -s.Angle
		steps[len(forward)-1-i] = s
	}
	return steps, nil
}

func applySteps(c *quantum.Circuit, qubits []int, steps []Step) *quantum.Circuit {
	for _, s := range steps {
		switch s.Kind {
		case Mix:
			c.H(qubits[s.Target])
		case Phase:
			c.CP(s.Angle, qubits[s.Control], qubits[s.Target])
		case Reverse:
			c.Swap(qubits[s.Control], qubits[s.Target])
		}
	}
	return c
}

// Apply appends the forward transform on qubits, with qubits[0] as the most
// significant position.
func Apply(c *quantum.Circuit, qubits []int) error {
	steps, err := Ladder(len(qubits))
	if err != nil {
		return err
	}
	return applySteps(c, qubits, steps).Err()
}

// ApplyInverse appends the inverse transform on qubits.
func ApplyInverse(c *quantum.Circuit, qubits []int) error {
	steps, err := InverseLadder(len(qubits))
	if err != nil {
		return err
	}
	return applySteps(c, qubits, steps).Err()
}

func register(n int) []int {
	qubits := make([]int, n)
	for i := range qubits {
		qubits[i] = i
	}
	return qubits
}

// Circuit returns an unmeasured n-qubit forward transform.
func Circuit(n int) (*quantum.Circuit, error) {
	return build(n, "qft", Apply)
}

// InverseCircuit returns an unmeasured n-qubit inverse transform.
func InverseCircuit(n int) (*quantum.Circuit, error) {
	return build(n, "iqft", ApplyInverse)
}

func build(n int, name string, apply func(*quantum.Circuit, []int) error) (*quantum.Circuit, error) {
	if err := checkSize(n); err != nil {
		return nil, err
	}
	c, err := quantum.NewCircuit(n, n)
	if err != nil {
		return nil, err
	}
	c.Name = fmt.Sprintf("%s-%d", name, n)
	if err := apply(c, register(n)); err != nil {
		return nil, err
	}
	return c, nil
}
