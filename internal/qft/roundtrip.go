package qft

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// RoundTripCircuit prepares the basis state bits, applies the forward and
// then the inverse transform, and measures every qubit. bits is read like a
// counts key: the right-most character is qubit 0.
func RoundTripCircuit(bits string) (*quantum.Circuit, error) {
	if err := quantum.ValidateBitString(bits); err != nil {
		return nil, err
	}
	n := len(bits)
	if err := checkSize(n); err != nil {
		return nil, err
	}

	c, err := quantum.NewCircuit(n, n)
	if err != nil {
		return nil, err
	}
	c.Name = fmt.Sprintf("qft-roundtrip-%d", n)
	for q := 0; q < n; q++ {
		if bits[n-1-q] == '1' {
			c.X(q)
		}
	}
	if err := Apply(c, register(n)); err != nil {
		return nil, err
	}
	if err := ApplyInverse(c, register(n)); err != nil {
		return nil, err
	}
	c.MeasureAll()
	return c, c.Err()
}

// RoundTrip is the result of running RoundTripCircuit.
type RoundTrip struct {
	Input  string         `json:"input"`
	Output string         `json:"output"`
	Counts quantum.Counts `json:"counts"`
}

// Identity reports whether every shot returned the input.
func (r *RoundTrip) Identity() bool {
	return len(r.Counts) == 1 && r.Output == r.Input
}

// RunRoundTrip executes RoundTripCircuit on sim.
func RunRoundTrip(ctx context.Context, sim quantum.Simulator, bits string, shots int) (*RoundTrip, error) {
	c, err := RoundTripCircuit(bits)
	if err != nil {
		return nil, err
	}
	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "qft round trip")
	}
	out, _ := counts.Mode()
	return &RoundTrip{Input: bits, Output: out, Counts: counts}, nil
}
