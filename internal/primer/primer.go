// Package primer holds the introductory single- and few-qubit lessons:
// superposition, measurement, the Hadamard gate and entanglement.
package primer

import (
	"context"
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrUnknownLesson is returned by Lookup for an unregistered name.
var ErrUnknownLesson = errors.New("unknown lesson")

// Lesson is a named circuit together with the outcomes it can produce.
type Lesson struct {
	Name     string
	Summary  string
	Expected []string
	Build    func() (*quantum.Circuit, error)
}

// Superposition puts one qubit into (|0⟩ + |1⟩)/√2 and measures it.
func Superposition() (*quantum.Circuit, error) {
	c, err := quantum.NewCircuit(1, 1)
	if err != nil {
		return nil, err
	}
	c.Name = "superposition"
	c.H(0).Measure(0, 0)
	return c, c.Err()
}

// Measurement flips a qubit to |1⟩ and measures it; the outcome is certain.
func Measurement() (*quantum.Circuit, error) {
	c, err := quantum.NewCircuit(1, 1)
	if err != nil {
		return nil, err
	}
	c.Name = "measurement"
	c.X(0).Measure(0, 0)
	return c, c.Err()
}

// HadamardTwice applies H twice. H is its own inverse, so |0⟩ comes back.
func HadamardTwice() (*quantum.Circuit, error) {
	c, err := quantum.NewCircuit(1, 1)
	if err != nil {
		return nil, err
	}
	c.Name = "hadamard-twice"
	c.H(0).H(0).Measure(0, 0)
	return c, c.Err()
}

// BellPair prepares (|00⟩ + |11⟩)/√2.
func BellPair() (*quantum.Circuit, error) {
	return GHZ(2)
}

// GHZ prepares (|0…0⟩ + |1…1⟩)/√2 on n qubits.
func GHZ(n int) (*quantum.Circuit, error) {
	if n < 2 {
		return nil, pkgerrors.Wrapf(quantum.ErrInvalidCircuit, "GHZ state needs at least 2 qubits, got %d", n)
	}
	c, err := quantum.NewCircuit(n, n)
	if err != nil {
		return nil, err
	}
	c.Name = "ghz"
	if n == 2 {
		c.Name = "bell"
	}
	c.H(0)
	for q := 1; q < n; q++ {
		c.CX(q-1, q)
	}
	c.MeasureAll()
	return c, c.Err()
}

// GHZOutcomes lists the two outcomes a GHZ(n) circuit can produce.
func GHZOutcomes(n int) []string {
	zeros := make([]byte, n)
	ones := make([]byte, n)
	for i := range zeros {
		zeros[i] = '0'
		ones[i] = '1'
	}
	return []string{string(zeros), string(ones)}
}

var lessons = map[string]Lesson{
	"superposition": {
		Name:     "superposition",
		Summary:  "Hadamard on |0>: both outcomes with equal probability",
		Expected: []string{"0", "1"},
		Build:    Superposition,
	},
	"measurement": {
		Name:     "measurement",
		Summary:  "X on |0>: measurement always returns 1",
		Expected: []string{"1"},
		Build:    Measurement,
	},
	"hadamard-twice": {
		Name:     "hadamard-twice",
		Summary:  "H·H = I: the qubit returns to |0>",
		Expected: []string{"0"},
		Build:    HadamardTwice,
	},
	"bell": {
		Name:     "bell",
		Summary:  "Entangled pair: outcomes 00 and 11 only",
		Expected: GHZOutcomes(2),
		Build:    BellPair,
	},
	"ghz": {
		Name:     "ghz",
		Summary:  "Three-qubit GHZ state: outcomes 000 and 111 only",
		Expected: GHZOutcomes(3),
		Build:    func() (*quantum.Circuit, error) { return GHZ(3) },
	},
}

// Names returns the registered lesson names in sorted order.
func Names() []string {
	names := make([]string, 0, len(lessons))
	for name := range lessons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup finds a lesson by name.
func Lookup(name string) (Lesson, error) {
	l, ok := lessons[name]
	if !ok {
		return Lesson{}, pkgerrors.Wrapf(ErrUnknownLesson, "%q", name)
	}
	return l, nil
}

// Result is one executed lesson.
type Result struct {
	Lesson   string         `json:"lesson"`
	Counts   quantum.Counts `json:"counts"`
	Expected []string       `json:"expected"`
}

// Consistent reports whether every observed outcome is one the lesson allows.
func (r *Result) Consistent() bool {
	allowed := make(map[string]bool, len(r.Expected))
	for _, e := range r.Expected {
		allowed[e] = true
	}
	for outcome, n := range r.Counts {
		if n > 0 && !allowed[outcome] {
			return false
		}
	}
	return true
}

// Run builds the lesson and executes it on sim.
func (l Lesson) Run(ctx context.Context, sim quantum.Simulator, shots int) (*Result, error) {
	c, err := l.Build()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "lesson %s", l.Name)
	}
	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "lesson %s", l.Name)
	}
	return &Result{
		Lesson:   l.Name,
		Counts:   counts,
		Expected: append([]string(nil), l.Expected...),
	}, nil
}

// RunGHZ executes a GHZ state of arbitrary width.
func RunGHZ(ctx context.Context, sim quantum.Simulator, n, shots int) (*Result, error) {
	l := Lesson{
		Name:     "ghz",
		Expected: GHZOutcomes(n),
		Build:    func() (*quantum.Circuit, error) { return GHZ(n) },
	}
	return l.Run(ctx, sim, shots)
}
