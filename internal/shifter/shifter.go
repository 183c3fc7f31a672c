// Package shifter rotates a bit register by one position using a chain of
// adjacent SWAPs, the way a hardware shift register moves its bits.
package shifter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// Direction selects which way bits move.
type Direction int

const (
	// Left moves every bit one place towards the front; the first bit wraps
	// to the end.
	Left Direction = iota
	// Right moves every bit one place towards the end; the last bit wraps to
	// the front.
	Right
)

// ErrInvalidDirection is returned for any direction other than Left or Right.
var ErrInvalidDirection = errors.New("invalid direction")

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is Left or Right.
func (d Direction) Valid() bool {
	return d == Left || d == Right
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() (Direction, error) {
	switch d {
	case Left:
		return Right, nil
	case Right:
		return Left, nil
	default:
		return d, pkgerrors.Wrapf(ErrInvalidDirection, "%v", d)
	}
}

// ParseDirection accepts "left"/"l" and "right"/"r" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	default:
		return 0, pkgerrors.Wrapf(ErrInvalidDirection, "%q: must be left or right", s)
	}
}

// SwapSequence lists the string positions exchanged, in order, to rotate a
// width-long register one place in direction d.
func SwapSequence(width int, d Direction) ([][2]int, error) {
	if !d.Valid() {
		return nil, pkgerrors.Wrapf(ErrInvalidDirection, "%v", d)
	}
	if width < 1 {
		return nil, pkgerrors.Errorf("register width must be positive, got %d", width)
	}

	swaps := make([][2]int, 0, width-1)
	if d == Left {
		for i := 0; i < width-1; i++ {
			swaps = append(swaps, [2]int{i, i + 1})
		}
	} else {
		for i := width - 1; i > 0; i-- {
			swaps = append(swaps, [2]int{i, i - 1})
		}
	}
	return swaps, nil
}

// Rotate shifts bits one place in direction d by applying SwapSequence.
// "1011" rotated Right is "1101"; rotated Left it is "0111".
func Rotate(bits string, d Direction) (string, error) {
	if err := quantum.ValidateBitString(bits); err != nil {
		return "", err
	}
	swaps, err := SwapSequence(len(bits), d)
	if err != nil {
		return "", err
	}

	reg := []byte(bits)
	for _, s := range swaps {
		reg[s[0]], reg[s[1]] = reg[s[1]], reg[s[0]]
	}
	return string(reg), nil
}

// qubitFor maps string position i to a qubit so that the measured outcome
// string reads in the same order as the input.
func qubitFor(width, i int) int {
	return width - 1 - i
}

// BuildCircuit prepares bits with X gates, applies the swap chain and
// measures every qubit.
func BuildCircuit(bits string, d Direction) (*quantum.Circuit, error) {
	parsed, err := quantum.ParseBits(bits)
	if err != nil {
		return nil, err
	}
	swaps, err := SwapSequence(len(parsed), d)
	if err != nil {
		return nil, err
	}

	width := len(parsed)
	c, err := quantum.NewCircuit(width, width)
	if err != nil {
		return nil, err
	}
	c.Name = "shift-" + d.String()

	for i, b := range parsed {
		if b == quantum.One {
			c.X(qubitFor(width, i))
		}
	}
	for _, s := range swaps {
		c.Swap(qubitFor(width, s[0]), qubitFor(width, s[1]))
	}
	c.MeasureAll()

	return c, c.Err()
}

// Result is the outcome of a simulated rotation.
type Result struct {
	Input     string         `json:"input"`
	Direction string         `json:"direction"`
	Output    string         `json:"output"`
	Expected  string         `json:"expected"`
	Counts    quantum.Counts `json:"counts"`
}

// Verified reports whether the simulated register matches the classical
// rotation.
func (r *Result) Verified() bool {
	return r.Output == r.Expected
}

// Run rotates bits on sim and reads the register back from the most frequent
// outcome.
func Run(ctx context.Context, sim quantum.Simulator, bits string, d Direction, shots int) (*Result, error) {
	expected, err := Rotate(bits, d)
	if err != nil {
		return nil, err
	}
	c, err := BuildCircuit(bits, d)
	if err != nil {
		return nil, err
	}

	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "shift register")
	}

	output, _ := counts.Mode()
	return &Result{
		Input:     bits,
		Direction: d.String(),
		Output:    output,
		Expected:  expected,
		Counts:    counts,
	}, nil
}
