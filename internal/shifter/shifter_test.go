package shifter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

func TestRotateDocumentedExample(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		direction Direction
		expected  string
	}{
		{"Right rotate", "1011", Right, "1101"},
		{"Left rotate", "1011", Left, "0111"},
		{"Single bit", "1", Right, "1"},
		{"Two bits", "10", Left, "01"},
		{"All zeros", "0000", Right, "0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rotate(tt.input, tt.direction)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Rotate(%q, %v) = %q, want %q", tt.input, tt.direction, got, tt.expected)
			}
		})
	}
}

func TestRotateRoundTrip(t *testing.T) {
	for v := 0; v < 16; v++ {
		bits := fmt.Sprintf("%04b", v)
		for _, d := range []Direction{Left, Right} {
			rotated, err := Rotate(bits, d)
			if err != nil {
				t.Fatal(err)
			}
			back, _ := d.Opposite()
			restored, err := Rotate(rotated, back)
			if err != nil {
				t.Fatal(err)
			}
			if restored != bits {
				t.Errorf("rotate(rotate(%s, %v), %v) = %s", bits, d, back, restored)
			}
		}
	}
}

func TestRotateInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		direction Direction
		wantErr   error
	}{
		{"Unknown direction", "1011", Direction(7), ErrInvalidDirection},
		{"Negative direction", "1011", Direction(-1), ErrInvalidDirection},
		{"Empty register", "", Left, quantum.ErrInvalidBitString},
		{"Non-binary register", "10x1", Right, quantum.ErrInvalidBitString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rotate(tt.input, tt.direction)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		input   string
		want    Direction
		wantErr bool
	}{
		{"left", Left, false},
		{"RIGHT", Right, false},
		{" r ", Right, false},
		{"l", Left, false},
		{"up", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDirection(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDirection) {
					t.Errorf("expected ErrInvalidDirection, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseDirection(%q) = %v, %v", tt.input, got, err)
			}
		})
	}
}

func TestSwapSequence(t *testing.T) {
	swaps, err := SwapSequence(4, Right)
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]int{{3, 2}, {2, 1}, {1, 0}}
	if fmt.Sprint(swaps) != fmt.Sprint(want) {
		t.Errorf("SwapSequence(4, Right) = %v, want %v", swaps, want)
	}

	if _, err := SwapSequence(0, Left); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := Direction(3).Opposite(); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("Opposite of invalid direction: %v", err)
	}
}

func TestRunOnSimulator(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(1))

	for v := 0; v < 16; v++ {
		bits := fmt.Sprintf("%04b", v)
		for _, d := range []Direction{Left, Right} {
			result, err := Run(context.Background(), sim, bits, d, 8)
			if err != nil {
				t.Fatalf("Run(%s, %v): %v", bits, d, err)
			}
			if !result.Verified() {
				t.Errorf("Run(%s, %v) read %s, expected %s", bits, d, result.Output, result.Expected)
			}
			if len(result.Counts) != 1 {
				t.Errorf("basis-state shift should be deterministic, got %v", result.Counts)
			}
		}
	}
}

func TestRunRejectsInvalidDirectionBeforeExecuting(t *testing.T) {
	called := false
	stub := quantum.SimulatorFunc(func(ctx context.Context, c *quantum.Circuit, shots int) (quantum.Counts, error) {
		called = true
		return nil, nil
	})

	if _, err := Run(context.Background(), stub, "1011", Direction(9), 1); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}
	if called {
		t.Error("simulator should not be called for invalid input")
	}
}
