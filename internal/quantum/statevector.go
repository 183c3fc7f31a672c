package quantum

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stateVector holds 2^n amplitudes; qubit q is bit q of the basis index.
type stateVector struct {
	amps []complex128
}

func newStateVector(numQubits int) *stateVector {
	amps := make([]complex128, 1<<numQubits)
	amps[0] = 1
	return &stateVector{amps: amps}
}

func (s *stateVector) apply(op Op) {
	switch op.Gate {
	case GateH:
		s.applyH(op.Qubits[0])
	case GateX:
		s.applyX(op.Qubits[0])
	case GateZ:
		s.applyPhase(op.Qubits[0], -1)
	case GateP:
		s.applyPhase(op.Qubits[0], cmplx.Exp(complex(0, op.Param)))
	case GateRY:
		s.applyRY(op.Qubits[0], op.Param)
	case GateCP:
		s.applyCP(op.Qubits[0], op.Qubits[1], cmplx.Exp(complex(0, op.Param)))
	case GateCX:
		s.applyCX(op.Qubits[0], op.Qubits[1])
	case GateSwap:
		s.applySwap(-1, op.Qubits[0], op.Qubits[1])
	case GateCSwap:
		s.applySwap(op.Qubits[0], op.Qubits[1], op.Qubits[2])
	}
}

func (s *stateVector) applyH(q int) {
	bit := 1 << q
	f := complex(1/math.Sqrt2, 0)
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			a, b := s.amps[i], s.amps[j]
			s.amps[i] = f * (a + b)
			s.amps[j] = f * (a - b)
		}
	}
}

func (s *stateVector) applyX(q int) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

func (s *stateVector) applyPhase(q int, phase complex128) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit != 0 {
			s.amps[i] *= phase
		}
	}
}

func (s *stateVector) applyRY(q int, theta float64) {
	bit := 1 << q
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			a, b := s.amps[i], s.amps[j]
			s.amps[i] = c*a - sn*b
			s.amps[j] = sn*a + c*b
		}
	}
}

func (s *stateVector) applyCP(control, target int, phase complex128) {
	mask := 1<<control | 1<<target
	for i := range s.amps {
		if i&mask == mask {
			s.amps[i] *= phase
		}
	}
}

func (s *stateVector) applyCX(control, target int) {
	cBit, tBit := 1<<control, 1<<target
	for i := range s.amps {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// applySwap exchanges qubits a and b; control < 0 means unconditional.
func (s *stateVector) applySwap(control, a, b int) {
	aBit, bBit := 1<<a, 1<<b
	cBit := 0
	if control >= 0 {
		cBit = 1 << control
	}
	for i := range s.amps {
		if i&cBit != cBit {
			continue
		}
		if i&aBit != 0 && i&bBit == 0 {
			j := i&^aBit | bBit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// measure collapses qubit q and returns the observed bit.
func (s *stateVector) measure(q int, r float64) Bit {
	bit := 1 << q
	p1 := 0.0
	for i, a := range s.amps {
		if i&bit != 0 {
			p1 += real(a)*real(a) + imag(a)*imag(a)
		}
	}

	outcome := Zero
	norm := 1 - p1
	if r < p1 || norm < 1e-12 {
		outcome = One
		norm = p1
	}

	scale := complex(1/math.Sqrt(norm), 0)
	for i := range s.amps {
		if (i&bit != 0) == (outcome == One) {
			s.amps[i] *= scale
		} else {
			s.amps[i] = 0
		}
	}
	return outcome
}

// cumulative returns the running sum of basis-state probabilities.
func (s *stateVector) cumulative() []float64 {
	cum := make([]float64, len(s.amps))
	total := 0.0
	for i, a := range s.amps {
		total += real(a)*real(a) + imag(a)*imag(a)
		cum[i] = total
	}
	return cum
}

// LocalSimulator is an in-process dense state-vector sampler. It has no noise
// model and performs no transpilation; gates run exactly as listed.
type LocalSimulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// LocalOption configures a LocalSimulator.
type LocalOption func(*LocalSimulator)

// WithSeed makes sampling reproducible.
func WithSeed(seed int64) LocalOption {
	return func(s *LocalSimulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) LocalOption {
	return func(s *LocalSimulator) { s.logger = logger }
}

// NewLocalSimulator creates a sampler seeded from the clock unless WithSeed
// is given.
func NewLocalSimulator(opts ...LocalOption) *LocalSimulator {
	s := &LocalSimulator{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the backend name.
func (s *LocalSimulator) Name() string { return "local-statevector" }

// Run executes c. Circuits whose measurements are all terminal are evolved
// once and sampled; otherwise every shot is simulated with collapse.
func (s *LocalSimulator) Run(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	if err := CheckRunnable(c, shots); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var (
		counts Counts
		err    error
	)
	if c.MeasurementsTerminal() {
		counts, err = s.sample(ctx, c, shots)
	} else {
		counts, err = s.perShot(ctx, c, shots)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("circuit executed",
		zap.String("circuit", c.Name),
		zap.Int("qubits", c.NumQubits()),
		zap.Int("ops", c.Len()),
		zap.Int("shots", shots),
		zap.Int("outcomes", len(counts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return counts, nil
}

func (s *LocalSimulator) sample(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	state := newStateVector(c.NumQubits())

	// clbitSource[k] is the qubit last measured into clbit k, or -1.
	clbitSource := make([]int, c.NumClbits())
	for i := range clbitSource {
		clbitSource[i] = -1
	}
	for _, op := range c.ops {
		if op.Gate == GateMeasure {
			clbitSource[op.Clbit] = op.Qubits[0]
			continue
		}
		state.apply(op)
	}

	cum := state.cumulative()
	total := cum[len(cum)-1]
	counts := Counts{}
	key := make([]byte, c.NumClbits())

	for shot := 0; shot < shots; shot++ {
		if shot%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		idx := sort.SearchFloat64s(cum, s.rng.Float64()*total)
		if idx >= len(cum) {
			idx = len(cum) - 1
		}
		for k, q := range clbitSource {
			key[len(key)-1-k] = '0'
			if q >= 0 && idx&(1<<q) != 0 {
				key[len(key)-1-k] = '1'
			}
		}
		counts[string(key)]++
	}
	return counts, nil
}

func (s *LocalSimulator) perShot(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	counts := Counts{}
	key := make([]byte, c.NumClbits())

	for shot := 0; shot < shots; shot++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range key {
			key[i] = '0'
		}
		state := newStateVector(c.NumQubits())
		for _, op := range c.ops {
			if op.Gate != GateMeasure {
				state.apply(op)
				continue
			}
			if state.measure(op.Qubits[0], s.rng.Float64()) == One {
				key[len(key)-1-op.Clbit] = '1'
			} else {
				key[len(key)-1-op.Clbit] = '0'
			}
		}
		counts[string(key)]++
	}
	return counts, nil
}
