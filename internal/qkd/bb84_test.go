package qkd

import (
	"context"
	"errors"
	"testing"

	"github.com/jaskrrish/Go-QLab/internal/qkd/crypto"
	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

func mustBases(t *testing.T, s string) []Basis {
	t.Helper()
	b, err := ParseBases(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func mustBits(t *testing.T, s string) []quantum.Bit {
	t.Helper()
	b, err := quantum.ParseBits(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestParseBases(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"+x+x", false},
		{"XX++", false},
		{"", true},
		{"+-x", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			bases, err := ParseBases(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBasis) {
					t.Errorf("expected ErrInvalidBasis, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(bases) != len(tt.input) {
				t.Errorf("got %d bases", len(bases))
			}
		})
	}

	if got := FormatBases(mustBases(t, "+X")); got != "+x" {
		t.Errorf("FormatBases = %q", got)
	}
}

func TestCompareBases(t *testing.T) {
	tests := []struct {
		name       string
		aliceBases string
		bobBases   string
		aliceBits  string
		bobBits    string
		want       string
	}{
		{"All agree", "+x+x", "+x+x", "1010", "1010", "1111"},
		{"None agree", "++xx", "xx++", "1010", "0110", "0000"},
		{"Mixed", "+x+xx+", "++xxx+", "101100", "111001", "100111"},
		{"Bit values do not matter", "+", "+", "1", "0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := CompareBases(mustBases(t, tt.aliceBases), mustBases(t, tt.bobBases),
				mustBits(t, tt.aliceBits), mustBits(t, tt.bobBits))
			if err != nil {
				t.Fatal(err)
			}
			if len(flags) != len(tt.aliceBases) {
				t.Fatalf("output length %d, want %d", len(flags), len(tt.aliceBases))
			}
			for i, f := range flags {
				if f != Match && f != Mismatch {
					t.Errorf("position %d: unexpected flag %d", i, f)
				}
			}
			if got := FormatAgreements(flags); got != tt.want {
				t.Errorf("flags = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompareBasesValidation(t *testing.T) {
	bases := mustBases(t, "+x+")
	bits := mustBits(t, "101")

	t.Run("Length mismatch", func(t *testing.T) {
		for _, args := range [][4]int{{2, 3, 3, 3}, {3, 2, 3, 3}, {3, 3, 2, 3}, {3, 3, 3, 2}} {
			_, err := CompareBases(bases[:args[0]], bases[:args[1]], bits[:args[2]], bits[:args[3]])
			if !errors.Is(err, ErrLengthMismatch) {
				t.Errorf("lengths %v: expected ErrLengthMismatch, got %v", args, err)
			}
		}
	})

	t.Run("Invalid basis", func(t *testing.T) {
		bad := []Basis{Rectilinear, Basis('?'), Diagonal}
		if _, err := CompareBases(bases, bad, bits, bits); !errors.Is(err, ErrInvalidBasis) {
			t.Errorf("expected ErrInvalidBasis, got %v", err)
		}
	})

	t.Run("Invalid bit", func(t *testing.T) {
		bad := []quantum.Bit{0, 2, 1}
		if _, err := CompareBases(bases, bases, bits, bad); !errors.Is(err, quantum.ErrInvalidBitString) {
			t.Errorf("expected ErrInvalidBitString, got %v", err)
		}
	})
}

func TestBasisReconciliation(t *testing.T) {
	sifted, err := BasisReconciliation(mustBases(t, "+x+xx+"), mustBases(t, "++xxx+"),
		mustBits(t, "101100"), mustBits(t, "111001"))
	if err != nil {
		t.Fatal(err)
	}

	if got := quantum.FormatBits(sifted.AliceKey); got != "1100" {
		t.Errorf("alice key = %s, want 1100", got)
	}
	if got := quantum.FormatBits(sifted.BobKey); got != "1001" {
		t.Errorf("bob key = %s, want 1001", got)
	}
	want := []int{0, 3, 4, 5}
	for i := range want {
		if sifted.Indices[i] != want[i] {
			t.Errorf("indices = %v, want %v", sifted.Indices, want)
			break
		}
	}
}

func TestTransmissionCircuit(t *testing.T) {
	ctx := context.Background()
	sim := quantum.NewLocalSimulator(quantum.WithSeed(1))

	t.Run("Matching bases deliver Alice's bits", func(t *testing.T) {
		bits := mustBits(t, "0101")
		bases := mustBases(t, "++xx")
		c, err := TransmissionCircuit(bits, bases, bases, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		counts, err := quantum.Execute(ctx, sim, c, 20)
		if err != nil {
			t.Fatal(err)
		}
		// clbit 0 is the right-most character
		if counts["1010"] != 20 {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("Flips invert the bit in either basis", func(t *testing.T) {
		bits := mustBits(t, "0101")
		bases := mustBases(t, "+x+x")
		c, err := TransmissionCircuit(bits, bases, bases, nil, []bool{true, true, true, true})
		if err != nil {
			t.Fatal(err)
		}
		counts, err := quantum.Execute(ctx, sim, c, 20)
		if err != nil {
			t.Fatal(err)
		}
		if counts["0101"] != 20 {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("Eve in the wrong basis randomises Bob", func(t *testing.T) {
		c, err := TransmissionCircuit(mustBits(t, "0"), mustBases(t, "+"), mustBases(t, "+"), mustBases(t, "x"), nil)
		if err != nil {
			t.Fatal(err)
		}
		if c.NumClbits() != 2 {
			t.Fatalf("expected Bob and Eve clbits, got %d", c.NumClbits())
		}
		counts, err := quantum.Execute(ctx, sim, c, 2000)
		if err != nil {
			t.Fatal(err)
		}
		bob, _ := counts.Marginal(0)
		if p := bob.Probability("1"); p < 0.4 || p > 0.6 {
			t.Errorf("Bob should see a 50/50 outcome, got P(1)=%.3f", p)
		}
	})

	t.Run("Invalid batches", func(t *testing.T) {
		bits := make([]quantum.Bit, quantum.MaxQubits+1)
		bases := make([]Basis, quantum.MaxQubits+1)
		if _, err := TransmissionCircuit(bits, bases, bases, nil, nil); !errors.Is(err, quantum.ErrInvalidCircuit) {
			t.Errorf("oversized batch: %v", err)
		}
		if _, err := TransmissionCircuit(mustBits(t, "01"), mustBases(t, "+"), mustBases(t, "++"), nil, nil); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("misaligned batch: %v", err)
		}
	})
}

func TestBB84Protocol(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(10))
	bb84, err := NewBB84Protocol(sim, 256, WithSeed(10))
	if err != nil {
		t.Fatal(err)
	}

	result, err := bb84.PerformKeyExchange(context.Background())
	if err != nil {
		t.Fatalf("Key exchange failed: %v", err)
	}

	if !result.Secure {
		t.Fatalf("Expected secure key, but got: %s", result.Message)
	}
	if result.FinalKeyLength != 256 || len(result.Key) != 32 {
		t.Errorf("Expected a 256-bit key, got %d bits in %d bytes", result.FinalKeyLength, len(result.Key))
	}
	if result.QBER != 0 {
		t.Errorf("Expected zero QBER on a noiseless channel, got %.2f%%", result.QBER*100)
	}
	if result.Transmitted != 1024 || result.RawKeyLength < 400 || result.RawKeyLength > 624 {
		t.Errorf("unexpected sifting statistics %+v", result)
	}
}

func TestBB84DetectsEavesdropper(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(20))
	bb84, err := NewBB84Protocol(sim, 256, WithSeed(20), WithEavesdropper(true))
	if err != nil {
		t.Fatal(err)
	}

	result, err := bb84.PerformKeyExchange(context.Background())
	if err != nil {
		t.Fatalf("Key exchange failed: %v", err)
	}

	// Intercept-resend introduces about 25% errors in the sifted key.
	if result.Secure || result.Key != nil {
		t.Error("Expected insecure key with an eavesdropper on the line")
	}
	if result.QBER <= bb84.QBERThreshold() {
		t.Errorf("QBER %.2f%% should exceed the threshold", result.QBER*100)
	}
	if !result.Eavesdropped || result.EveAgreement < 0.6 || result.EveAgreement > 0.9 {
		t.Errorf("Eve should know about 75%% of the sifted bits, got %.2f", result.EveAgreement)
	}
	t.Logf("QBER with eavesdropper: %.2f%%", result.QBER*100)
}

func TestBB84WithNoiseAndPostProcessing(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(30))
	bb84, err := NewBB84Protocol(sim, 64,
		WithSeed(30),
		WithChannelNoise(0.02),
		WithOversampling(16),
		WithPostProcessing(crypto.SHA3_256Method),
	)
	if err != nil {
		t.Fatal(err)
	}

	result, err := bb84.PerformKeyExchange(context.Background())
	if err != nil {
		t.Fatalf("Key exchange failed: %v", err)
	}

	if result.QBER > bb84.QBERThreshold() {
		t.Fatalf("QBER %.2f%% unexpectedly above threshold", result.QBER*100)
	}
	if !result.Secure {
		t.Fatalf("Expected reconciled key, got: %s", result.Message)
	}
	if len(result.Key) != 8 || result.DisclosedBits == 0 {
		t.Errorf("unexpected result %+v", result)
	}
	t.Logf("QBER with 2%% channel noise: %.2f%%, disclosed %d", result.QBER*100, result.DisclosedBits)
}

func TestBB84HighNoise(t *testing.T) {
	sim := quantum.NewLocalSimulator(quantum.WithSeed(40))
	bb84, err := NewBB84Protocol(sim, 256, WithSeed(40), WithChannelNoise(0.3))
	if err != nil {
		t.Fatal(err)
	}

	result, err := bb84.PerformKeyExchange(context.Background())
	if err != nil {
		t.Fatalf("Key exchange failed: %v", err)
	}
	if result.Secure {
		t.Errorf("Expected insecure key at 30%% noise, QBER %.2f%%", result.QBER*100)
	}
}

func TestEstimateQBERDiscardsTheSampledBits(t *testing.T) {
	bb84, _ := NewBB84Protocol(quantum.NewLocalSimulator(), 8, WithSeed(1))
	bb84.SetSampleSize(0.5)

	sifted := &SiftedKey{
		AliceKey: mustBits(t, "0000000000"),
		BobKey:   mustBits(t, "1100000011"),
		Indices:  []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	}

	qber, sampled, err := bb84.EstimateQBER(sifted)
	if err != nil {
		t.Fatal(err)
	}
	if len(sampled) != 5 {
		t.Fatalf("expected 5 sampled positions, got %v", sampled)
	}

	errs := 0
	for _, idx := range sampled {
		if sifted.BobKey[idx] == quantum.One {
			errs++
		}
	}
	if qber != float64(errs)/5 {
		t.Errorf("QBER %.2f does not match the sampled positions %v", qber, sampled)
	}

	rest := RemoveSampledBits(sifted, sampled)
	if rest.Len() != 5 {
		t.Fatalf("expected 5 remaining bits, got %d", rest.Len())
	}
	for _, idx := range rest.Indices {
		for _, s := range sampled {
			if idx == s {
				t.Errorf("sampled position %d was kept", idx)
			}
		}
	}

	if _, _, err := bb84.EstimateQBER(&SiftedKey{}); !errors.Is(err, ErrEmptySiftedKey) {
		t.Errorf("expected ErrEmptySiftedKey, got %v", err)
	}
}

func TestNewBB84ProtocolValidation(t *testing.T) {
	sim := quantum.NewLocalSimulator()

	tests := []struct {
		name string
		sim  quantum.Simulator
		n    int
		opts []Option
	}{
		{"Nil simulator", nil, 8, nil},
		{"Zero key length", sim, 0, nil},
		{"Negative noise", sim, 8, []Option{WithChannelNoise(-0.1)}},
		{"Unknown hash", sim, 8, []Option{WithPostProcessing("MD5")}},
		{"Oversampling above limit", sim, 8, []Option{WithOversampling(MaxOversampling + 1)}},
		{"Oversampling that overflows", sim, 4096, []Option{WithOversampling(1 << 51)}},
		{"Too many qubits", sim, MaxTransmittedQubits/2 + 1, []Option{WithOversampling(2)}},
		{"Huge key length", sim, MaxTransmittedQubits + 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBB84Protocol(tt.sim, tt.n, tt.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewBB84ProtocolQubitBudget(t *testing.T) {
	sim := quantum.NewLocalSimulator()

	if _, err := NewBB84Protocol(sim, MaxTransmittedQubits/MaxOversampling, WithOversampling(MaxOversampling)); err != nil {
		t.Errorf("largest allowed exchange rejected: %v", err)
	}
	_, err := NewBB84Protocol(sim, MaxTransmittedQubits/MaxOversampling+1, WithOversampling(MaxOversampling))
	if !errors.Is(err, ErrTooManyQubits) {
		t.Errorf("expected ErrTooManyQubits, got %v", err)
	}
}

func TestBB84SimulatorFailure(t *testing.T) {
	boom := errors.New("backend down")
	stub := quantum.SimulatorFunc(func(ctx context.Context, c *quantum.Circuit, shots int) (quantum.Counts, error) {
		return nil, boom
	})

	bb84, _ := NewBB84Protocol(stub, 8, WithSeed(1))
	if _, err := bb84.PerformKeyExchange(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected backend error, got %v", err)
	}
}
