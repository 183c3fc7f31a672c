package quantum

import (
	"fmt"
	"strconv"
	"strings"
)

// QASMBuilder assembles an OpenQASM 2.0 program line by line.
type QASMBuilder struct {
	version      string
	includeStmt  string
	registers    []string
	gates        []string
	measurements []string
}

// NewQASMBuilder creates a builder with a qreg q and, if numClassical > 0, a
// creg c.
func NewQASMBuilder(numQubits int, numClassical int) *QASMBuilder {
	builder := &QASMBuilder{
		version:     "OPENQASM 2.0;",
		includeStmt: "include \"qelib1.inc\";",
	}

	builder.registers = append(builder.registers, fmt.Sprintf("qreg q[%d];", numQubits))
	if numClassical > 0 {
		builder.registers = append(builder.registers, fmt.Sprintf("creg c[%d];", numClassical))
	}

	return builder
}

// AddGate adds a gate statement.
func (b *QASMBuilder) AddGate(gate string) {
	b.gates = append(b.gates, gate)
}

// AddMeasurement adds a measurement statement.
func (b *QASMBuilder) AddMeasurement(qubit int, classical int) {
	b.measurements = append(b.measurements,
		fmt.Sprintf("measure q[%d] -> c[%d];", qubit, classical))
}

// Build generates the program text.
func (b *QASMBuilder) Build() string {
	var out strings.Builder

	out.WriteString(b.version + "\n")
	out.WriteString(b.includeStmt + "\n\n")

	for _, reg := range b.registers {
		out.WriteString(reg + "\n")
	}
	out.WriteString("\n")

	for _, gate := range b.gates {
		out.WriteString(gate + "\n")
	}

	if len(b.measurements) > 0 {
		out.WriteString("\n")
		for _, meas := range b.measurements {
			out.WriteString(meas + "\n")
		}
	}

	return out.String()
}

// QASM renders the circuit as OpenQASM 2.0. Terminal measurements are
// grouped at the end; a circuit with mid-circuit measurements keeps program
// order.
func (c *Circuit) QASM() string {
	b := NewQASMBuilder(c.numQubits, c.numClbits)
	terminal := c.MeasurementsTerminal()

	for _, op := range c.ops {
		if op.Gate == GateMeasure {
			if terminal {
				b.AddMeasurement(op.Qubits[0], op.Clbit)
			} else {
				b.AddGate(fmt.Sprintf("measure q[%d] -> c[%d];", op.Qubits[0], op.Clbit))
			}
			continue
		}

		operands := make([]string, len(op.Qubits))
		for i, q := range op.Qubits {
			operands[i] = fmt.Sprintf("q[%d]", q)
		}

		name := string(op.Gate)
		if op.Gate.Parameterized() {
			name += "(" + strconv.FormatFloat(op.Param, 'g', 17, 64) + ")"
		}
		b.AddGate(name + " " + strings.Join(operands, ",") + ";")
	}

	return b.Build()
}
