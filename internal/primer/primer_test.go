package primer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

func TestLessons(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(3))

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			l, err := Lookup(name)
			if err != nil {
				t.Fatal(err)
			}
			result, err := l.Run(context.Background(), sim, 1000)
			if err != nil {
				t.Fatal(err)
			}
			if !result.Consistent() {
				t.Errorf("unexpected outcomes %v, allowed %v", result.Counts, result.Expected)
			}
			if result.Counts.Shots() != 1000 {
				t.Errorf("expected 1000 shots, got %d", result.Counts.Shots())
			}
		})
	}
}

func TestSuperpositionIsBalanced(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(11))
	l, _ := Lookup("superposition")

	result, err := l.Run(context.Background(), sim, 4000)
	if err != nil {
		t.Fatal(err)
	}
	if p := result.Counts.Probability("0"); math.Abs(p-0.5) > 0.05 {
		t.Errorf("P(0) = %.3f, want about 0.5", p)
	}
}

func TestHadamardTwiceIsIdentity(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(1))
	l, _ := Lookup("hadamard-twice")

	result, err := l.Run(context.Background(), sim, 500)
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts["0"] != 500 {
		t.Errorf("expected every shot to return 0, got %v", result.Counts)
	}
}

func TestGHZ(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(5))

	for n := 2; n <= 6; n++ {
		result, err := RunGHZ(context.Background(), sim, n, 400)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if !result.Consistent() {
			t.Errorf("n=%d: unexpected outcomes %v", n, result.Counts)
		}
		if len(result.Counts) != 2 {
			t.Errorf("n=%d: expected both GHZ outcomes, got %v", n, result.Counts)
		}
	}

	if _, err := GHZ(1); !errors.Is(err, quantum.ErrInvalidCircuit) {
		t.Errorf("GHZ(1): expected ErrInvalidCircuit, got %v", err)
	}
	if _, err := GHZ(quantum.MaxQubits + 1); err == nil {
		t.Error("expected error above MaxQubits")
	}
}

func TestBellPairShape(t *testing.T) {
	c, err := BellPair()
	if err != nil {
		t.Fatal(err)
	}
	ops := c.Ops()
	if ops[0].Gate != quantum.GateH || ops[1].Gate != quantum.GateCX {
		t.Errorf("unexpected gate order %v", ops)
	}
	if c.Name != "bell" {
		t.Errorf("expected name bell, got %s", c.Name)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("teleport"); !errors.Is(err, ErrUnknownLesson) {
		t.Errorf("expected ErrUnknownLesson, got %v", err)
	}
}

func TestConsistent(t *testing.T) {
	r := &Result{Counts: quantum.Counts{"00": 3, "11": 5, "01": 0}, Expected: GHZOutcomes(2)}
	if !r.Consistent() {
		t.Error("zero-count outcomes should not count as observed")
	}
	r.Counts["10"] = 1
	if r.Consistent() {
		t.Error("expected inconsistency for outcome 10")
	}
}
