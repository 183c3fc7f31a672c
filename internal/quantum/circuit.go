package quantum

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// MaxQubits bounds circuit width. Lessons use at most nine qubits.
const MaxQubits = 12

// Gate names follow OpenQASM 2.0 / qelib1.inc spelling.
type Gate string

const (
	GateH       Gate = "h"
	GateX       Gate = "x"
	GateZ       Gate = "z"
	GateP       Gate = "p"
	GateRY      Gate = "ry"
	GateCP      Gate = "cp"
	GateCX      Gate = "cx"
	GateSwap    Gate = "swap"
	GateCSwap   Gate = "cswap"
	GateMeasure Gate = "measure"
)

// arity is the number of qubit operands each gate takes.
var arity = map[Gate]int{
	GateH:       1,
	GateX:       1,
	GateZ:       1,
	GateP:       1,
	GateRY:      1,
	GateCP:      2,
	GateCX:      2,
	GateSwap:    2,
	GateCSwap:   3,
	GateMeasure: 1,
}

// Parameterized reports whether the gate takes an angle.
func (g Gate) Parameterized() bool {
	return g == GateP || g == GateRY || g == GateCP
}

// ErrInvalidCircuit is wrapped by every circuit construction failure.
var ErrInvalidCircuit = errors.New("invalid circuit")

// Op is one gate application. For controlled gates the controls come first in
// Qubits. Clbit is only meaningful for GateMeasure.
type Op struct {
	Gate   Gate    `json:"gate"`
	Qubits []int   `json:"qubits"`
	Param  float64 `json:"param,omitempty"`
	Clbit  int     `json:"clbit,omitempty"`
}

func (o Op) String() string {
	switch {
	case o.Gate == GateMeasure:
		return fmt.Sprintf("measure q%d -> c%d", o.Qubits[0], o.Clbit)
	case o.Gate.Parameterized():
		return fmt.Sprintf("%s(%.6f) %v", o.Gate, o.Param, o.Qubits)
	default:
		return fmt.Sprintf("%s %v", o.Gate, o.Qubits)
	}
}

// Circuit is an ordered gate sequence over a fixed qubit register and an
// optional classical register. Builder methods are chainable; the first
// invalid operation is kept and reported by Err, later calls are ignored.
type Circuit struct {
	Name string

	numQubits int
	numClbits int
	ops       []Op
	err       error
}

// NewCircuit creates an empty circuit.
func NewCircuit(numQubits, numClbits int) (*Circuit, error) {
	if numQubits < 1 || numQubits > MaxQubits {
		return nil, pkgerrors.Wrapf(ErrInvalidCircuit, "qubit count %d outside [1, %d]", numQubits, MaxQubits)
	}
	if numClbits < 0 {
		return nil, pkgerrors.Wrapf(ErrInvalidCircuit, "negative classical register size %d", numClbits)
	}

	return &Circuit{
		numQubits: numQubits,
		numClbits: numClbits,
		ops:       make([]Op, 0),
	}, nil
}

// NumQubits returns the width of the quantum register.
func (c *Circuit) NumQubits() int { return c.numQubits }

// NumClbits returns the width of the classical register.
func (c *Circuit) NumClbits() int { return c.numClbits }

// Err returns the first construction error, if any.
func (c *Circuit) Err() error { return c.err }

// Ops returns a copy of the operation list.
func (c *Circuit) Ops() []Op {
	out := make([]Op, len(c.ops))
	for i, op := range c.ops {
		op.Qubits = append([]int(nil), op.Qubits...)
		out[i] = op
	}
	return out
}

// Len returns the number of operations.
func (c *Circuit) Len() int { return len(c.ops) }

// Append validates and records op.
func (c *Circuit) Append(op Op) *Circuit {
	if c.err != nil {
		return c
	}
	if err := c.validate(op); err != nil {
		c.err = err
		return c
	}

	op.Qubits = append([]int(nil), op.Qubits...)
	if !op.Gate.Parameterized() {
		op.Param = 0
	}
	c.ops = append(c.ops, op)
	return c
}

func (c *Circuit) validate(op Op) error {
	n, ok := arity[op.Gate]
	if !ok {
		return pkgerrors.Wrapf(ErrInvalidCircuit, "unknown gate %q", op.Gate)
	}
	if len(op.Qubits) != n {
		return pkgerrors.Wrapf(ErrInvalidCircuit, "gate %s takes %d qubits, got %d", op.Gate, n, len(op.Qubits))
	}

	seen := make(map[int]bool, n)
	for _, q := range op.Qubits {
		if q < 0 || q >= c.numQubits {
			return pkgerrors.Wrapf(ErrInvalidCircuit, "gate %s: qubit %d out of range [0, %d)", op.Gate, q, c.numQubits)
		}
		if seen[q] {
			return pkgerrors.Wrapf(ErrInvalidCircuit, "gate %s: qubit %d used twice", op.Gate, q)
		}
		seen[q] = true
	}

	if op.Gate == GateMeasure && (op.Clbit < 0 || op.Clbit >= c.numClbits) {
		return pkgerrors.Wrapf(ErrInvalidCircuit, "measure: clbit %d out of range [0, %d)", op.Clbit, c.numClbits)
	}
	return nil
}

func (c *Circuit) H(q int) *Circuit { return c.Append(Op{Gate: GateH, Qubits: []int{q}}) }
func (c *Circuit) X(q int) *Circuit { return c.Append(Op{Gate: GateX, Qubits: []int{q}}) }
func (c *Circuit) Z(q int) *Circuit { return c.Append(Op{Gate: GateZ, Qubits: []int{q}}) }

// P applies the phase gate diag(1, e^{iθ}).
func (c *Circuit) P(theta float64, q int) *Circuit {
	return c.Append(Op{Gate: GateP, Qubits: []int{q}, Param: theta})
}

// RY rotates about the Y axis by theta.
func (c *Circuit) RY(theta float64, q int) *Circuit {
	return c.Append(Op{Gate: GateRY, Qubits: []int{q}, Param: theta})
}

// CP applies a controlled phase of theta.
func (c *Circuit) CP(theta float64, control, target int) *Circuit {
	return c.Append(Op{Gate: GateCP, Qubits: []int{control, target}, Param: theta})
}

func (c *Circuit) CX(control, target int) *Circuit {
	return c.Append(Op{Gate: GateCX, Qubits: []int{control, target}})
}

func (c *Circuit) Swap(a, b int) *Circuit {
	return c.Append(Op{Gate: GateSwap, Qubits: []int{a, b}})
}

// CSwap is the Fredkin gate.
func (c *Circuit) CSwap(control, a, b int) *Circuit {
	return c.Append(Op{Gate: GateCSwap, Qubits: []int{control, a, b}})
}

func (c *Circuit) Measure(q, clbit int) *Circuit {
	return c.Append(Op{Gate: GateMeasure, Qubits: []int{q}, Clbit: clbit})
}

// MeasureAll measures qubit i into clbit i for every qubit.
func (c *Circuit) MeasureAll() *Circuit {
	for q := 0; q < c.numQubits; q++ {
		c.Measure(q, q)
	}
	return c
}

// Compose appends sub onto this circuit, mapping sub's qubit i to qubits[i]
// and sub's clbit i to clbits[i]. clbits may be nil when sub has no
// measurements.
func (c *Circuit) Compose(sub *Circuit, qubits, clbits []int) *Circuit {
	if c.err != nil {
		return c
	}
	if sub.Err() != nil {
		c.err = pkgerrors.Wrap(sub.Err(), "compose")
		return c
	}
	if len(qubits) != sub.numQubits {
		c.err = pkgerrors.Wrapf(ErrInvalidCircuit, "compose: %d qubits mapped, sub-circuit has %d", len(qubits), sub.numQubits)
		return c
	}

	for _, op := range sub.ops {
		mapped := Op{Gate: op.Gate, Param: op.Param, Qubits: make([]int, len(op.Qubits))}
		for i, q := range op.Qubits {
			mapped.Qubits[i] = qubits[q]
		}
		if op.Gate == GateMeasure {
			if op.Clbit >= len(clbits) {
				c.err = pkgerrors.Wrapf(ErrInvalidCircuit, "compose: clbit %d not mapped", op.Clbit)
				return c
			}
			mapped.Clbit = clbits[op.Clbit]
		}
		c.Append(mapped)
	}
	return c
}

// MeasuredClbits returns the sorted set of classical bits written by a
// measurement.
func (c *Circuit) MeasuredClbits() []int {
	seen := make([]bool, c.numClbits)
	for _, op := range c.ops {
		if op.Gate == GateMeasure {
			seen[op.Clbit] = true
		}
	}
	out := make([]int, 0, c.numClbits)
	for i, ok := range seen {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// MeasurementsTerminal reports whether no gate acts on a qubit after that
// qubit has been measured.
func (c *Circuit) MeasurementsTerminal() bool {
	measured := make([]bool, c.numQubits)
	for _, op := range c.ops {
		if op.Gate == GateMeasure {
			measured[op.Qubits[0]] = true
			continue
		}
		for _, q := range op.Qubits {
			if measured[q] {
				return false
			}
		}
	}
	return true
}
