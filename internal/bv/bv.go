// Package bv implements the Bernstein-Vazirani algorithm: recovering a hidden
// bit string s from a single query to the oracle x -> s·x mod 2.
package bv

import (
	"context"
	"math/bits"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// MaxWidth is the widest secret that fits alongside the ancilla qubit.
const MaxWidth = quantum.MaxQubits - 1

// Secret is the hidden string. The left-most character is the most
// significant bit, so input qubit q holds character Width-1-q.
type Secret struct {
	width int
	value uint64
}

// ParseSecret validates s and returns it as a Secret.
func ParseSecret(s string) (Secret, error) {
	if err := quantum.ValidateBitString(s); err != nil {
		return Secret{}, err
	}
	if len(s) > MaxWidth {
		return Secret{}, pkgerrors.Wrapf(quantum.ErrInvalidBitString, "secret width %d exceeds %d", len(s), MaxWidth)
	}
	v, err := strconv.ParseUint(s, 2, 64)
	if err != nil {
		return Secret{}, pkgerrors.Wrap(err, "parse secret")
	}
	return Secret{width: len(s), value: v}, nil
}

// Width returns the number of bits in the secret.
func (s Secret) Width() int { return s.width }

// Value returns the secret as an integer.
func (s Secret) Value() uint64 { return s.value }

func (s Secret) String() string {
	if s.width == 0 {
		return ""
	}
	b := make([]byte, s.width)
	for i := range b {
		b[i] = '0'
		if s.value&(1<<uint(s.width-1-i)) != 0 {
			b[i] = '1'
		}
	}
	return string(b)
}

// Eval is the oracle: the parity of popcount(x AND s).
func (s Secret) Eval(x uint64) quantum.Bit {
	return quantum.Bit(bits.OnesCount64(x&s.value) & 1)
}

// OracleCircuit flips the ancilla (qubit Width) once for every input qubit
// that is set in both x and s.
func OracleCircuit(s Secret) (*quantum.Circuit, error) {
	if s.width == 0 {
		return nil, pkgerrors.Wrap(quantum.ErrInvalidBitString, "empty secret")
	}
	c, err := quantum.NewCircuit(s.width+1, 0)
	if err != nil {
		return nil, err
	}
	c.Name = "bv-oracle-" + s.String()

	for q := 0; q < s.width; q++ {
		if s.value&(1<<uint(q)) != 0 {
			c.CX(q, s.width)
		}
	}
	return c, c.Err()
}

// BuildCircuit prepares the ancilla in |−⟩, sandwiches the oracle between
// Hadamard layers and measures input qubit q into clbit q. Phase kickback
// leaves the register in |s⟩, so the measured key reads as the secret.
func BuildCircuit(s Secret) (*quantum.Circuit, error) {
	oracle, err := OracleCircuit(s)
	if err != nil {
		return nil, err
	}

	n := s.width
	c, err := quantum.NewCircuit(n+1, n)
	if err != nil {
		return nil, err
	}
	c.Name = "bv-" + s.String()

	all := make([]int, n+1)
	for i := range all {
		all[i] = i
	}

	c.X(n).H(n)
	for q := 0; q < n; q++ {
		c.H(q)
	}
	c.Compose(oracle, all, nil)
	for q := 0; q < n; q++ {
		c.H(q)
	}
	for q := 0; q < n; q++ {
		c.Measure(q, q)
	}
	return c, c.Err()
}

// Result is the outcome of a recovery run.
type Result struct {
	Secret    string         `json:"secret"`
	Recovered string         `json:"recovered"`
	Queries   int            `json:"queries"`
	Counts    quantum.Counts `json:"counts"`
}

// Verified reports whether the recovered string equals the secret.
func (r *Result) Verified() bool {
	return r.Recovered == r.Secret
}

// Recover runs the algorithm on sim and reads the secret from the most
// frequent outcome. A single oracle query is needed regardless of width.
func Recover(ctx context.Context, sim quantum.Simulator, s Secret, shots int) (*Result, error) {
	c, err := BuildCircuit(s)
	if err != nil {
		return nil, err
	}

	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "bernstein-vazirani")
	}

	recovered, _ := counts.Mode()
	return &Result{
		Secret:    s.String(),
		Recovered: recovered,
		Queries:   1,
		Counts:    counts,
	}, nil
}
