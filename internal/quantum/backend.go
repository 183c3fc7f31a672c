package quantum

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ErrInvalidShots is returned for a shot count below one.
var ErrInvalidShots = errors.New("shots must be at least 1")

// Simulator executes a circuit and samples its measured outcomes.
type Simulator interface {
	// Name returns the name of the backend
	Name() string

	// Run executes c shots times and returns the outcome histogram over the
	// classical register.
	Run(ctx context.Context, c *Circuit, shots int) (Counts, error)
}

// SimulatorFunc adapts a plain function to the Simulator interface.
type SimulatorFunc func(ctx context.Context, c *Circuit, shots int) (Counts, error)

// Name returns "func".
func (f SimulatorFunc) Name() string { return "func" }

// Run calls f.
func (f SimulatorFunc) Run(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	return f(ctx, c, shots)
}

// CheckRunnable validates the arguments every Simulator receives.
func CheckRunnable(c *Circuit, shots int) error {
	if c == nil {
		return pkgerrors.Wrap(ErrInvalidCircuit, "nil circuit")
	}
	if err := c.Err(); err != nil {
		return err
	}
	if c.NumClbits() == 0 {
		return pkgerrors.Wrap(ErrInvalidCircuit, "circuit has no classical register to sample")
	}
	if shots < 1 {
		return pkgerrors.Wrapf(ErrInvalidShots, "got %d", shots)
	}
	return nil
}

// Execute runs c on sim and checks the returned counts against the circuit's
// classical register width and the requested shots.
func Execute(ctx context.Context, sim Simulator, c *Circuit, shots int) (Counts, error) {
	if err := CheckRunnable(c, shots); err != nil {
		return nil, err
	}

	counts, err := sim.Run(ctx, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s: run", sim.Name())
	}
	if err := counts.Validate(shots, c.NumClbits()); err != nil {
		return nil, pkgerrors.Wrapf(err, "%s: result", sim.Name())
	}
	return counts, nil
}
